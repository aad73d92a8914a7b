package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"coffeeleaf/internal/config"
	"coffeeleaf/internal/history"
	"coffeeleaf/internal/identity"
	"coffeeleaf/internal/logger"
	"coffeeleaf/internal/session"
	"coffeeleaf/internal/storage"
)

var (
	userID  string
	verbose bool

	cfg     *config.Config
	backend storage.Backend
	store   *session.Store
)

var rootCmd = &cobra.Command{
	Use:   "leafctl",
	Short: "Inspect and maintain coffeeleaf session storage",
	Long: `leafctl works directly against the storage backend configured for the
server (STORAGE_BACKEND and friends, read from the environment or .env).

Commands act on the guest namespace unless --user is given.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(".env"); err != nil && verbose {
			log.Printf("Warning: .env file not found: %v", err)
		}
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		lg := logger.NewNop()
		if verbose {
			if lg, err = logger.New(cfg.LogMode); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
		}
		backend, err = storage.Open(storage.Options{
			Kind:       string(cfg.StorageBackend),
			FilePath:   cfg.StorageFilePath,
			SQLitePath: cfg.SQLitePath,
			Redis: storage.RedisOptions{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			},
		})
		if err != nil {
			return fmt.Errorf("open %s storage: %w", cfg.StorageBackend, err)
		}
		store = session.New(backend, lg, session.WithScanLimit(cfg.ScanHistoryLimit))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if backend == nil {
			return nil
		}
		return backend.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "user id (blank means the guest namespace)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log storage activity")
}

func namespace() identity.Namespace {
	return identity.ForUser(userID)
}

func loadCatalog() (*history.Catalog, error) {
	return history.LoadCatalog(cfg.DiseaseCatalogPath)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
