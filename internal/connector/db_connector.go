package connector

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Supported database/sql drivers
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
)

// DatabaseConnector handles database connection and query execution
type DatabaseConnector struct {
	Driver   string
	Host     string
	User     string
	Password string
	Database string
	Port     string
	Path     string
	DB       *sql.DB
	Logger   *logrus.Logger
}

// NewDatabaseConnector creates a MySQL connector, falling back to MYSQL_* environment variables
func NewDatabaseConnector(host, user, password, database, port string, logger *logrus.Logger) *DatabaseConnector {
	if host == "" {
		host = getEnvOrDefault("MYSQL_HOST", "localhost")
	}
	if user == "" {
		user = getEnvOrDefault("MYSQL_USER", "root")
	}
	if password == "" {
		password = getEnvOrDefault("MYSQL_PASSWORD", "")
	}
	if database == "" {
		database = getEnvOrDefault("MYSQL_DATABASE", "")
	}
	if port == "" {
		port = getEnvOrDefault("MYSQL_PORT", "3306")
	}

	return &DatabaseConnector{
		Driver:   DriverMySQL,
		Host:     host,
		User:     user,
		Password: password,
		Database: database,
		Port:     port,
		Logger:   logger,
	}
}

// NewSQLiteConnector creates a connector for a SQLite database file.
// An empty path falls back to SQLITE_PATH, then to an in-memory database.
func NewSQLiteConnector(path string, logger *logrus.Logger) *DatabaseConnector {
	if path == "" {
		path = getEnvOrDefault("SQLITE_PATH", ":memory:")
	}
	return &DatabaseConnector{
		Driver: DriverSQLite,
		Path:   path,
		Logger: logger,
	}
}

// NewWithDB wraps an already opened database handle
func NewWithDB(db *sql.DB, driver string, logger *logrus.Logger) *DatabaseConnector {
	return &DatabaseConnector{
		Driver: driver,
		DB:     db,
		Logger: logger,
	}
}

// DSN returns the data source name for the configured driver
func (dc *DatabaseConnector) DSN() (string, error) {
	switch dc.Driver {
	case DriverMySQL, "":
		if dc.Database == "" {
			return "", fmt.Errorf("database name must be provided either as an argument or as MYSQL_DATABASE environment variable")
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true", dc.User, dc.Password, dc.Host, dc.Port, dc.Database), nil
	case DriverSQLite:
		if dc.Path == ":memory:" {
			return ":memory:", nil
		}
		return fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", dc.Path), nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", dc.Driver)
	}
}

// Connect establishes a connection to the database
func (dc *DatabaseConnector) Connect(ctx context.Context) error {
	if dc.Driver == "" {
		dc.Driver = DriverMySQL
	}
	dsn, err := dc.DSN()
	if err != nil {
		return err
	}

	db, err := sql.Open(dc.Driver, dsn)
	if err != nil {
		dc.Logger.Errorf("Error opening %s database: %v", dc.Driver, err)
		return err
	}
	if dc.Driver == DriverSQLite {
		// SQLite allows a single writer, and an in-memory database lives on one connection
		db.SetMaxOpenConns(1)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		dc.Logger.Errorf("Error pinging %s database: %v", dc.Driver, err)
		db.Close()
		return err
	}

	dc.DB = db
	dc.Logger.Infof("Connected to %s database: %s", dc.Driver, dc.name())
	return nil
}

func (dc *DatabaseConnector) name() string {
	if dc.Driver == DriverSQLite {
		return dc.Path
	}
	return dc.Database
}

// Disconnect closes the database connection
func (dc *DatabaseConnector) Disconnect() {
	if dc.DB != nil {
		err := dc.DB.Close()
		if err != nil {
			dc.Logger.Errorf("Error closing database connection: %v", err)
		} else {
			dc.Logger.Infof("%s connection closed", dc.Driver)
		}
		dc.DB = nil
	}
}

// ExecuteQuery executes a SQL query and returns the rows as column maps
func (dc *DatabaseConnector) ExecuteQuery(ctx context.Context, query string, params ...interface{}) ([]map[string]interface{}, error) {
	if dc.DB == nil {
		if err := dc.Connect(ctx); err != nil {
			return nil, err
		}
	}

	rows, err := dc.DB.QueryContext(ctx, query, params...)
	if err != nil {
		dc.Logger.Errorf("Error executing query: %v", err)
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		dc.Logger.Errorf("Error getting columns: %v", err)
		return nil, err
	}

	var results []map[string]interface{}

	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range columns {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			dc.Logger.Errorf("Error scanning row: %v", err)
			return nil, err
		}

		row := make(map[string]interface{})
		for i, col := range columns {
			// Convert []byte to string for text fields
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}

		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		dc.Logger.Errorf("Error iterating rows: %v", err)
		return nil, err
	}

	return results, nil
}

// ExecuteStatement executes a SQL statement and returns the number of affected rows
func (dc *DatabaseConnector) ExecuteStatement(ctx context.Context, query string, params ...interface{}) (int64, error) {
	if dc.DB == nil {
		if err := dc.Connect(ctx); err != nil {
			return 0, err
		}
	}

	result, err := dc.DB.ExecContext(ctx, query, params...)
	if err != nil {
		dc.Logger.Errorf("Error executing statement: %v", err)
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		dc.Logger.Errorf("Error getting affected rows: %v", err)
		return 0, err
	}

	return affected, nil
}

// getEnvOrDefault gets an environment variable or returns a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
