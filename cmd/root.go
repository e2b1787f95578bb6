package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/aist/internal/config"
	"github.com/andresmejia3/aist/internal/store"
	"github.com/andresmejia3/aist/internal/utils"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// cfg is loaded once per invocation in PersistentPreRunE
	cfg = config.Default()

	// db is opened lazily by commands that need Postgres
	db *store.Store

	configPath string
	dbURL      string
	logLevel   string
	galleryRef string
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "aist",
	Short:   "Face recognition, unlocking and object watching over live cameras",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			utils.Die("Failed to load config "+configPath, err, nil)
		}
		cfg = loaded

		// Flags beat the file and the environment
		if dbURL != "" {
			cfg.Database.URL = dbURL
		}
		if logLevel != "" {
			cfg.Logs.Level = logLevel
		}
		if galleryRef != "" {
			cfg.Gallery = galleryRef
		}

		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			db.Close()
			db = nil
		}
	},
}

// openStore connects to Postgres on first use.
func openStore(ctx context.Context) (*store.Store, error) {
	if db != nil {
		return db, nil
	}
	s, err := store.New(ctx, cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db = s
	return db, nil
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
	cobra.OnInitialize(func() {
		// A missing .env is fine
		_ = godotenv.Load()
	})

	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "PostgreSQL connection string (default: $DATABASE_URL, $POSTGRES_*, postgres://localhost:5432/aist)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Diagnostic log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&galleryRef, "gallery", "", "Gallery snapshot file (default from config: core.gob)")
}
