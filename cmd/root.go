package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/faceguard/internal/config"
	"github.com/andresmejia3/faceguard/internal/logging"
	"github.com/andresmejia3/faceguard/internal/store"
)

const defaultDBURL = "postgres://localhost:5432/faceguard"

var (
	// Cfg is the resolved configuration shared by subcommands
	Cfg *config.Config
	// Log is the root logger
	Log zerolog.Logger
	// DB is the gallery store; nil when running with --memory
	DB *store.Store

	cfgFile    string
	dbURL      string
	logLevel   string
	memoryOnly bool
	logCloser  io.Closer
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "faceguard",
	Short:   "Face enrollment, matching and dual-camera liveness console",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return err
		}

		var err error
		Log, logCloser, err = logging.New(Cfg.Log)
		if err != nil {
			return err
		}

		if memoryOnly {
			Log.Info().Msg("running without a database, the gallery lives in memory only")
			return nil
		}
		url := Cfg.Database.URL
		if dbURL != "" {
			url = dbURL
		}
		if url == "" {
			// Fallback to local default if nothing is configured
			url = defaultDBURL
		}
		DB, err = store.New(cmd.Context(), url)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// The command context may already be cancelled (Ctrl+C); closing still needs a live one.
			DB.Close(context.Background())
		}
		if logCloser != nil {
			logCloser.Close()
		}
	},
}

// initConfig loads .env (optional), the config file and the environment, then applies flags.
func initConfig() error {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	Cfg = cfg
	return nil
}

// requireDB stops commands that have nothing to work on without the store.
func requireDB(what string) {
	if DB == nil {
		fmt.Fprintf(os.Stderr, "❌ %s needs the gallery database; run without --memory\n", what)
		os.Exit(1)
	}
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (.toml, .yaml or .yml)")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string (default: "+defaultDBURL+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&memoryOnly, "memory", false, "Keep the gallery in memory only (no database)")
}
