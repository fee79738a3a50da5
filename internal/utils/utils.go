package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/schema-designer/internal/analyzer"
	"github.com/vitebski/schema-designer/internal/config"
	"github.com/vitebski/schema-designer/internal/store"
	"github.com/vitebski/schema-designer/pkg/models"
)

// SetupLogging configures the logging system
func SetupLogging(logLevel string) *logrus.Logger {
	// Create a new logger
	logger := logrus.New()

	// Get log level from environment variable or parameter
	levelStr := logLevel
	if levelStr == "" {
		levelStr = os.Getenv("LOG_LEVEL")
		if levelStr == "" {
			levelStr = "info"
		}
	}

	// Parse log level
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}

	// Configure logger
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetOutput(os.Stdout)

	logger.Debugf("Logging configured with level: %s", level)
	return logger
}

// LoadEnvironmentVariables loads environment variables from .env file and
// reports whether the variables required by STORE_BACKEND are present
func LoadEnvironmentVariables(envFile string, logger *logrus.Logger) bool {
	// Check if a sample .env file exists but not the actual .env file
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		sampleEnvFile := envFile + ".sample"
		if _, err := os.Stat(sampleEnvFile); err == nil {
			logger.Infof("No %s file found, but %s exists. Consider copying %s to %s and updating it.",
				envFile, sampleEnvFile, sampleEnvFile, envFile)
		}
	}

	// Load environment variables from .env file if it exists
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			logger.Warningf("Error loading %s file: %v", envFile, err)
		} else {
			logger.Infof("Loaded environment variables from %s", envFile)
		}
	} else {
		logger.Debugf("No %s file found, using existing environment variables", envFile)
	}

	// Check for the variables the selected backend needs
	backend := os.Getenv("STORE_BACKEND")
	var missingVars []string
	for _, v := range config.RequiredVariables(backend) {
		if os.Getenv(v) == "" {
			missingVars = append(missingVars, v)
		}
	}

	if len(missingVars) > 0 {
		logger.Warningf("Missing required environment variables for the %s backend: %s", backend, strings.Join(missingVars, ", "))
		logger.Info("These can be provided via environment variables or a .env file")
		return false
	}

	// Log the store related variables (for debugging)
	if logger.IsLevelEnabled(logrus.DebugLevel) {
		for _, env := range os.Environ() {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) != 2 || !isStoreVariable(parts[0]) {
				continue
			}
			if isSecret(parts[0]) {
				logger.Debugf("%s=********", parts[0])
			} else {
				logger.Debugf("%s=%s", parts[0], parts[1])
			}
		}
	}

	return true
}

func isStoreVariable(name string) bool {
	for _, prefix := range []string{"STORE_", "BADGER_", "MYSQL_", "SQLITE_", "POSTGRES_", "REDIS_", "AUTOSAVE_"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func isSecret(name string) bool {
	return strings.HasSuffix(name, "_PASSWORD") || name == "POSTGRES_URL"
}

// GetEnvInt gets an integer value from environment variable
func GetEnvInt(varName string, defaultValue int) int {
	value := os.Getenv(varName)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

// ValidateConnectionParams validates MySQL connection parameters
func ValidateConnectionParams(host, user, password, database, port string, logger *logrus.Logger) bool {
	if host == "" {
		logger.Error("Database host is required")
		return false
	}

	if user == "" {
		logger.Error("Database user is required")
		return false
	}

	if password == "" { // Empty password is allowed
		logger.Warning("Database password is empty")
	}

	if database == "" {
		logger.Error("Database name is required")
		return false
	}

	if _, err := strconv.Atoi(port); err != nil {
		logger.Errorf("Invalid port number: %s", port)
		return false
	}

	return true
}

// PrintSummary prints a summary of the seeding process
func PrintSummary(w io.Writer, requested int, created []models.SchemaRecord, failed map[string]error) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 50))
	fmt.Fprintln(w, "SCHEMA SEEDING SUMMARY")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintf(w, "Schemas requested: %d\n", requested)
	fmt.Fprintf(w, "Successfully created schemas: %d\n", len(created))
	fmt.Fprintf(w, "Failed schemas: %d\n", len(failed))

	tables := 0
	for _, record := range created {
		for _, node := range record.Nodes {
			if node.IsTable() {
				tables++
			}
		}
	}
	fmt.Fprintf(w, "Total tables created: %d\n", tables)

	if len(failed) > 0 {
		fmt.Fprintln(w, "\nFailed schemas:")
		names := make([]string, 0, len(failed))
		for name := range failed {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "  - %s: %v\n", name, failed[name])
		}
	}

	fmt.Fprintln(w, strings.Repeat("=", 50))
}

// PrintSchemaList prints one line per schema, newest first
func PrintSchemaList(w io.Writer, records []models.SchemaRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No schemas found")
		return
	}

	stats := analyzer.Dashboard(records)
	fmt.Fprintf(w, "%-36s  %-30s  %6s  %-20s\n", "ID", "NAME", "TABLES", "LAST MODIFIED")
	for _, record := range records {
		tables := 0
		for _, node := range record.Nodes {
			if node.IsTable() {
				tables++
			}
		}
		fmt.Fprintf(w, "%-36s  %-30s  %6d  %-20s\n", record.ID, record.Name, tables, record.LastModified.Format(time.DateTime))
	}
	fmt.Fprintf(w, "\n%d schemas (%d shared), %d tables, %d relationships\n",
		stats.TotalSchemas, stats.SharedSchemas, stats.TotalTables, stats.TotalRelationships)
}

// PrintSchemaAnalysis prints a detailed analysis of a designed schema
func PrintSchemaAnalysis(w io.Writer, name string, report analyzer.Report) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 80))
	fmt.Fprintf(w, "SCHEMA ANALYSIS REPORT: %s\n", name)
	fmt.Fprintln(w, strings.Repeat("=", 80))

	// Basic statistics
	fmt.Fprintln(w, "\n1. BASIC STATISTICS")
	fmt.Fprintf(w, "   Total tables: %d\n", report.Tables)
	fmt.Fprintf(w, "   Relationships: %d\n", report.Relationships)
	fmt.Fprintf(w, "   Tables with foreign keys: %d\n", report.TablesWithKeys)
	fmt.Fprintf(w, "   Color links: %d\n", report.ColorLinks)
	if report.DanglingEdges > 0 {
		fmt.Fprintf(w, "   Dangling edges (dropped on save): %d\n", report.DanglingEdges)
	}

	// Table categories
	counts := make(map[string]int)
	for _, entry := range report.CreationOrder {
		counts[entry.Category]++
	}
	fmt.Fprintln(w, "\n2. TABLE CATEGORIES")
	for _, category := range []models.TableCategory{models.Standalone, models.Dependent, models.ManyToMany, models.Circular} {
		fmt.Fprintf(w, "   %s tables: %d\n", category, counts[category.String()])
	}

	// Circular dependencies
	if len(report.Circular) > 0 {
		fmt.Fprintln(w, "\n3. CIRCULAR DEPENDENCIES")
		fmt.Fprintf(w, "   Tables involved: %s\n", strings.Join(report.Circular, ", "))
		if len(report.CircularPairs) > 0 {
			fmt.Fprintln(w, "\n   Direct circular dependencies:")
			for _, dep := range report.CircularPairs {
				if len(dep) >= 2 {
					fmt.Fprintf(w, "     %s <-> %s\n", dep[0], dep[1])
				}
			}
		}
	}

	// Many-to-many tables
	if len(report.ManyToMany) > 0 {
		fmt.Fprintln(w, "\n4. MANY-TO-MANY RELATIONSHIP TABLES")
		fmt.Fprintf(w, "   Tables: %s\n", strings.Join(report.ManyToMany, ", "))
	}

	// Table creation order
	fmt.Fprintln(w, "\n5. RECOMMENDED TABLE CREATION ORDER")
	for i, entry := range report.CreationOrder {
		fmt.Fprintf(w, "   %3d. %s (%s)\n", i+1, entry.Name, entry.Category)
	}

	fmt.Fprintln(w, "\n"+strings.Repeat("=", 80))
}

// VerifyStoredSchemas checks that every created schema can be read back
// from the store. It returns the ids that are missing or unreadable.
func VerifyStoredSchemas(ctx context.Context, st store.Store, ownerID string, records []models.SchemaRecord, logger *logrus.Logger) (bool, []string) {
	logger.Infof("Verifying that %d schema(s) can be read back...", len(records))

	var missing []string
	for _, record := range records {
		stored, err := st.ReadSchema(ctx, ownerID, record.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			logger.Warningf("Schema %s was not found", record.ID)
			missing = append(missing, record.ID)
		case err != nil:
			logger.Warningf("Could not read schema %s: %v", record.ID, err)
			missing = append(missing, record.ID)
		case len(stored.Nodes) != len(record.Nodes):
			logger.Warningf("Schema %s has %d/%d nodes", record.ID, len(stored.Nodes), len(record.Nodes))
			missing = append(missing, record.ID)
		}
	}

	if len(missing) == 0 {
		logger.Info("Verification successful: all schemas were stored")
		return true, nil
	}
	logger.Errorf("Verification failed: %d schemas are missing or incomplete", len(missing))
	return false, missing
}

// PrintVerificationResults prints the results of the schema verification
func PrintVerificationResults(w io.Writer, missing []string, total int) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 50))
	fmt.Fprintln(w, "SCHEMA VERIFICATION RESULTS")
	fmt.Fprintln(w, strings.Repeat("=", 50))

	if len(missing) == 0 {
		fmt.Fprintf(w, "✅ All %d schema(s) were stored\n", total)
		fmt.Fprintln(w, strings.Repeat("=", 50))
		return
	}

	fmt.Fprintf(w, "❌ %d of %d schemas are missing or incomplete:\n", len(missing), total)
	for _, id := range missing {
		fmt.Fprintf(w, "  - %s\n", id)
	}
	fmt.Fprintln(w, strings.Repeat("=", 50))
}
