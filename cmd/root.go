// file: cmd/root.go
// version: 1.0.0
// guid: 2a8c4e0f-6b3d-4f9a-b1e7-4c0a6e2f8d5b

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jdfalk/coverfetch/internal/config"
	"github.com/jdfalk/coverfetch/internal/covers"
	"github.com/jdfalk/coverfetch/internal/database"
	"github.com/jdfalk/coverfetch/internal/ratelimit"
	"github.com/jdfalk/coverfetch/internal/server"
	"github.com/jdfalk/coverfetch/internal/storage"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string
var databasePath string
var databaseType string
var enableSQLite bool
var coversDir string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "coverfetch",
	Short: "Resolve book cover images from external catalogs",
	Long: `Coverfetch determines the best cover image for each book in its
database by querying Google Books and Open Library in priority order,
validating candidate images, and recording every outcome so repeated runs
never redo wasted work.`,
}

// resolveCmd represents the resolve command
var resolveCmd = &cobra.Command{
	Use:   "resolve <book-id>",
	Short: "Resolve the cover for one book",
	Long:  `Run the source cascade for a single book and print the outcome.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := initStore(); err != nil {
			return err
		}
		defer database.CloseStore()

		resolver, _, err := buildResolutionStack()
		if err != nil {
			return err
		}

		force, _ := cmd.Flags().GetBool("force")
		trigger := covers.TriggerAuto
		if force {
			trigger = covers.TriggerUserRetry
		}

		result, err := resolver.Resolve(cmd.Context(), args[0], force, trigger)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		fmt.Println(string(out))
		return nil
	},
}

// backfillCmd represents the backfill command
var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Resolve covers for books that still need one",
	Long: `Select books with unset, pending, or missing covers and resolve
each in turn, throttled to respect the external APIs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := initStore(); err != nil {
			return err
		}
		defer database.CloseStore()

		_, backfiller, err := buildResolutionStack()
		if err != nil {
			return err
		}

		opts := covers.NewBackfillOptions()
		if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
			opts.Limit = limit
		}
		if minDays, _ := cmd.Flags().GetInt("min-days"); minDays > 0 {
			opts.MinDaysSinceAttempt = minDays
		}
		if retryRecent, _ := cmd.Flags().GetBool("retry-recent"); retryRecent {
			opts.SkipRecentFailures = false
		}
		if user, _ := cmd.Flags().GetString("user"); user != "" {
			opts.UserID = &user
		}

		var bar *progressbar.ProgressBar
		opts.OnProgress = func(processed, total int) {
			if bar == nil {
				bar = progressbar.Default(int64(total), "resolving covers")
			}
			_ = bar.Set(processed)
		}

		report, err := backfiller.Run(cmd.Context(), opts)
		if err != nil {
			return err
		}

		fmt.Printf("\nProcessed: %d\nSuccess:   %d\nFailed:    %d\nSkipped:   %d\n",
			report.Processed, report.Success, report.Failed, report.Skipped)
		return nil
	},
}

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the cover resolution API server",
	Long:  `Start the HTTP server exposing cover resolution and backfill endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := initStore(); err != nil {
			return err
		}
		defer database.CloseStore()

		fmt.Printf("Using database: %s (%s)\n", config.AppConfig.DatabasePath, config.AppConfig.DatabaseType)

		// Fill configuration gaps from the YAML file next to the database
		if err := config.LoadConfigFromFile(); err != nil {
			fmt.Printf("Warning: could not load config file: %v\n", err)
		}

		resolver, backfiller, err := buildResolutionStack()
		if err != nil {
			return err
		}

		srv := server.NewServer(database.GlobalStore, resolver, backfiller)
		if config.AppConfig.StorageBackend == "local" {
			srv.ServeCoverFiles("/covers", config.AppConfig.CoversDir)
		}

		cfg := server.ServerConfig{
			Port:         "8080",
			Host:         "localhost",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		if port := cmd.Flag("port").Value.String(); port != "" {
			cfg.Port = port
		}
		if host := cmd.Flag("host").Value.String(); host != "" {
			cfg.Host = host
		}
		if rt := cmd.Flag("read-timeout").Value.String(); rt != "" {
			if d, err := time.ParseDuration(rt); err == nil {
				cfg.ReadTimeout = d
			}
		}
		if wt := cmd.Flag("write-timeout").Value.String(); wt != "" {
			if d, err := time.ParseDuration(wt); err == nil {
				cfg.WriteTimeout = d
			}
		}
		if it := cmd.Flag("idle-timeout").Value.String(); it != "" {
			if d, err := time.ParseDuration(it); err == nil {
				cfg.IdleTimeout = d
			}
		}

		return srv.Start(cfg)
	},
}

// initStore initializes the database from the resolved configuration.
func initStore() error {
	if err := database.InitializeStore(config.AppConfig.DatabaseType, config.AppConfig.DatabasePath, config.AppConfig.EnableSQLite); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// buildResolutionStack assembles the limiter, sources, validator, blob
// store, resolver, and backfiller over the global store.
func buildResolutionStack() (*covers.Resolver, *covers.Backfiller, error) {
	store := database.GlobalStore
	limiter := ratelimit.New(store)
	googleBooks := covers.NewGoogleBooksSource(limiter)
	if key := config.AppConfig.APIKeys.GoogleBooks; key != "" {
		googleBooks.SetAPIKey(key)
	}
	sources := []covers.Source{
		googleBooks,
		covers.NewOpenLibrarySource(limiter),
	}

	blobs, err := buildBlobStore()
	if err != nil {
		return nil, nil, err
	}

	resolver := covers.NewResolver(store, sources, covers.NewValidator(), blobs)
	return resolver, covers.NewBackfiller(store, resolver), nil
}

// buildBlobStore picks the blob backend from configuration. A nil store is
// valid and disables the CDN relay.
func buildBlobStore() (storage.BlobStore, error) {
	cfg := config.AppConfig
	switch cfg.StorageBackend {
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 storage backend requires s3_bucket")
		}
		return storage.NewS3Store(context.Background(), cfg.S3Bucket, cfg.S3PublicBaseURL)
	case "local", "":
		if cfg.CoversDir == "" {
			return nil, nil
		}
		baseURL := cfg.PublicBaseURL
		if baseURL == "" {
			baseURL = fmt.Sprintf("http://%s:%d/covers", cfg.Host, cfg.Port)
		}
		return storage.NewLocalStore(cfg.CoversDir, baseURL), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s (supported: local, s3, none)", cfg.StorageBackend)
	}
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.coverfetch.yaml)")
	rootCmd.PersistentFlags().StringVar(&databasePath, "db", "coverfetch.pebble", "path to database (default: coverfetch.pebble for PebbleDB)")
	rootCmd.PersistentFlags().StringVar(&databaseType, "db-type", "pebble", "database type: pebble (default) or sqlite")
	rootCmd.PersistentFlags().BoolVar(&enableSQLite, "enable-sqlite3-i-know-the-risks", false, "enable SQLite3 database (WARNING: cross-compilation issues, PebbleDB recommended)")
	rootCmd.PersistentFlags().StringVar(&coversDir, "covers-dir", "covers", "directory for relayed cover images (local storage backend)")

	viper.BindPFlag("database_path", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("database_type", rootCmd.PersistentFlags().Lookup("db-type"))
	viper.BindPFlag("enable_sqlite3_i_know_the_risks", rootCmd.PersistentFlags().Lookup("enable-sqlite3-i-know-the-risks"))
	viper.BindPFlag("covers_dir", rootCmd.PersistentFlags().Lookup("covers-dir"))

	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(serveCmd)

	// Command specific flags
	resolveCmd.Flags().Bool("force", false, "refresh even if an ok cover record exists")

	backfillCmd.Flags().Int("limit", covers.DefaultBackfillLimit, "maximum number of books to process")
	backfillCmd.Flags().Int("min-days", covers.DefaultMinDaysSince, "skip books attempted within this many days")
	backfillCmd.Flags().Bool("retry-recent", false, "also retry books attempted recently")
	backfillCmd.Flags().String("user", "", "only process books belonging to this user")

	serveCmd.Flags().String("port", "8080", "port to run the web server on")
	serveCmd.Flags().String("host", "localhost", "host to bind the web server to")
	serveCmd.Flags().String("read-timeout", "15s", "read timeout (e.g. 15s, 1m)")
	serveCmd.Flags().String("write-timeout", "15s", "write timeout (e.g. 15s, 1m)")
	serveCmd.Flags().String("idle-timeout", "60s", "idle timeout (e.g. 60s, 2m)")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".coverfetch")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}

	// Ensure database directory exists
	if databasePath != "" {
		dbDir := filepath.Dir(databasePath)
		if dbDir != "." {
			if err := os.MkdirAll(dbDir, 0755); err != nil {
				fmt.Printf("Error creating database directory: %v\n", err)
			}
		}
	}

	config.InitConfig()
}
