package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vitebski/schema-designer/internal/analyzer"
	"github.com/vitebski/schema-designer/internal/config"
	"github.com/vitebski/schema-designer/internal/designer"
	"github.com/vitebski/schema-designer/internal/exporter"
	"github.com/vitebski/schema-designer/internal/generator"
	"github.com/vitebski/schema-designer/internal/populator"
	"github.com/vitebski/schema-designer/internal/sanitizer"
	"github.com/vitebski/schema-designer/internal/server"
	"github.com/vitebski/schema-designer/internal/store"
	"github.com/vitebski/schema-designer/internal/utils"
	"github.com/vitebski/schema-designer/pkg/models"
)

func main() {
	var (
		envFile  string
		logLevel string
		logger   *logrus.Logger
	)

	rootCmd := &cobra.Command{
		Use:   "schema-designer",
		Short: "A visual database schema designer backend",
		Long: `Schema Designer

A Go service that stores visually designed database schemas, autosaves
every edit with undo/redo history, and exports schemas as SQL or JSON.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Setup logging
			logger = utils.SetupLogging(logLevel)

			// Load environment variables
			utils.LoadEnvironmentVariables(envFile, logger)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&envFile, "env-file", "e", ".env", "Path to .env file")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		serveCommand(&logger),
		exportCommand(&logger),
		analyzeCommand(&logger),
		listCommand(&logger),
		seedCommand(&logger),
	)

	// Execute
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// openBackend loads the configuration and opens the store it selects
func openBackend(ctx context.Context, logger *logrus.Logger) (*config.Config, store.Backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if cfg.StoreBackend == config.BackendMySQL &&
		!utils.ValidateConnectionParams(cfg.MySQLHost, cfg.MySQLUser, cfg.MySQLPassword, cfg.MySQLDatabase, cfg.MySQLPort, logger) {
		return nil, nil, errors.New("invalid MySQL connection parameters")
	}

	backend, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, backend, nil
}

func serveCommand(logger **logrus.Logger) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := *logger
			ctx := cmd.Context()

			cfg, backend, err := openBackend(ctx, log)
			if err != nil {
				return err
			}
			defer backend.Close()
			if port != "" {
				cfg.Port = port
			}

			manager := designer.NewManager(backend, designer.Options{
				QuietPeriod: cfg.AutosaveQuiet,
				SaveTimeout: cfg.AutosaveTimeout,
			}, log)

			presence, _ := backend.(store.Presence)
			if presence == nil {
				log.Info("Presence tracking disabled, set REDIS_ADDR to enable it")
			}

			srv := server.NewServer(manager, presence, log).HTTPServer(cfg.Port)
			errCh := make(chan error, 1)
			go func() {
				log.Infof("Server listening on %s", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-quit:
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("http server error: %w", err)
				}
			}

			log.Info("Shutting down server gracefully ...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second+cfg.AutosaveTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Errorf("Server shutdown: %v", err)
			}
			if err := manager.CloseAll(shutdownCtx); err != nil {
				log.Errorf("Failed to flush open schemas: %v", err)
				return err
			}
			log.Info("Server exiting")
			return nil
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (default: PORT or 8080)")
	return cmd
}

// schemaSource selects a schema from a JSON file or from the store
type schemaSource struct {
	input    string
	schemaID string
	owner    string
}

func (s *schemaSource) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&s.input, "input", "i", "", "Path to a schema JSON file (nodes and edges)")
	cmd.Flags().StringVarP(&s.schemaID, "schema-id", "s", "", "Id of a stored schema")
	cmd.Flags().StringVarP(&s.owner, "owner", "o", "", "Owner of the stored schema")
}

func (s *schemaSource) load(ctx context.Context, logger *logrus.Logger) (*models.SchemaRecord, error) {
	switch {
	case s.input != "":
		data, err := os.ReadFile(s.input)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", s.input, err)
		}
		var record models.SchemaRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", s.input, err)
		}
		return &record, nil

	case s.schemaID != "":
		if s.owner == "" {
			return nil, errors.New("--owner is required with --schema-id")
		}
		_, backend, err := openBackend(ctx, logger)
		if err != nil {
			return nil, err
		}
		defer backend.Close()
		return backend.ReadSchema(ctx, s.owner, s.schemaID)

	default:
		return nil, errors.New("one of --input or --schema-id is required")
	}
}

func exportCommand(logger **logrus.Logger) *cobra.Command {
	var (
		source schemaSource
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a schema as SQL or JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := *logger
			f, err := exporter.ParseFormat(format)
			if err != nil {
				return err
			}
			record, err := source.load(cmd.Context(), log)
			if err != nil {
				return err
			}

			if dangling := sanitizer.DanglingEdges(record.Nodes, record.Edges); dangling > 0 {
				log.Warningf("Dropping %d dangling edge(s)", dangling)
			}
			g := sanitizer.SanitizeGraph(record.Graph())
			doc, err := exporter.Export(record.Name, f, g.Nodes, g.Edges)
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), doc.Content)
				return err
			}
			if err := os.WriteFile(output, []byte(doc.Content), 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			log.Infof("Exported %s to %s", doc.FileName, output)
			return nil
		},
	}

	source.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "sql", "Export format (sql or json)")
	cmd.Flags().StringVar(&output, "output", "", "Output file (default: stdout)")
	return cmd
}

func analyzeCommand(logger **logrus.Logger) *cobra.Command {
	var source schemaSource

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Print the table categories and creation order of a schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := *logger
			record, err := source.load(cmd.Context(), log)
			if err != nil {
				return err
			}
			report := analyzer.NewSchemaAnalyzer(log).Analyze(record.Graph())
			name := record.Name
			if name == "" {
				name = models.DefaultSchemaName
			}
			utils.PrintSchemaAnalysis(cmd.OutOrStdout(), name, report)
			return nil
		},
	}

	source.register(cmd)
	return cmd
}

func listCommand(logger **logrus.Logger) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the schemas of an owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := *logger
			ctx := cmd.Context()
			_, backend, err := openBackend(ctx, log)
			if err != nil {
				return err
			}
			defer backend.Close()

			records, err := designer.NewManager(backend, designer.Options{}, log).List(ctx, owner)
			if err != nil {
				return err
			}
			utils.PrintSchemaList(cmd.OutOrStdout(), records)
			return nil
		},
	}

	cmd.Flags().StringVarP(&owner, "owner", "o", "", "Owner whose schemas are listed")
	cmd.MarkFlagRequired("owner")
	return cmd
}

func seedCommand(logger **logrus.Logger) *cobra.Command {
	var (
		owner      string
		count      int
		tables     int
		seed       int64
		maxRetries int
		verify     bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create sample schemas for an owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := *logger
			ctx := cmd.Context()
			_, backend, err := openBackend(ctx, log)
			if err != nil {
				return err
			}
			defer backend.Close()

			manager := designer.NewManager(backend, designer.Options{}, log)
			schemaPopulator := populator.NewSchemaPopulator(
				manager,
				generator.NewDataGenerator(seed, log),
				count,
				tables,
				maxRetries,
				log,
			)

			log.Infof("Seeding %d schema(s) for %s...", count, owner)
			success := schemaPopulator.Populate(ctx, owner)
			utils.PrintSummary(cmd.OutOrStdout(), count, schemaPopulator.Created, schemaPopulator.Failed)

			verificationSuccess := true
			if verify {
				var missing []string
				verificationSuccess, missing = utils.VerifyStoredSchemas(ctx, backend, owner, schemaPopulator.Created, log)
				utils.PrintVerificationResults(cmd.OutOrStdout(), missing, len(schemaPopulator.Created))
			}

			if !success || !verificationSuccess {
				return errors.New("seeding did not complete")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&owner, "owner", "o", "", "Owner of the created schemas")
	cmd.Flags().IntVarP(&count, "count", "c", utils.GetEnvInt("SEED_SCHEMAS", 3), "Number of schemas to create")
	cmd.Flags().IntVarP(&tables, "tables", "t", generator.DefaultTables, "Number of tables per schema")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed for reproducible schemas (0 draws a random one)")
	cmd.Flags().IntVarP(&maxRetries, "max-retries", "m", 3, "Maximum number of retries when a write fails")
	cmd.Flags().BoolVarP(&verify, "verify", "v", false, "Read every created schema back from the store")
	cmd.MarkFlagRequired("owner")
	return cmd
}
