package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"coffeeleaf/internal/analytics"
	"coffeeleaf/internal/auth"
	"coffeeleaf/internal/config"
	"coffeeleaf/internal/history"
	"coffeeleaf/internal/httpapi"
	"coffeeleaf/internal/llm"
	"coffeeleaf/internal/logger"
	"coffeeleaf/internal/memory"
	"coffeeleaf/internal/scheduler"
	"coffeeleaf/internal/session"
	"coffeeleaf/internal/storage"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	lg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer lg.Sync()

	backend, err := storage.Open(storage.Options{
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
		lg.Fatal("failed to open storage", "backend", cfg.StorageBackend, "error", err)
	}
	defer backend.Close()

	catalog, err := history.LoadCatalog(cfg.DiseaseCatalogPath)
	if err != nil {
		lg.Fatal("failed to load disease catalog", "path", cfg.DiseaseCatalogPath, "error", err)
	}

	store := session.New(backend, lg, session.WithScanLimit(cfg.ScanHistoryLimit))
	mem := memory.NewService(store, lg, memory.WithInteractionLimit(cfg.InteractionHistoryLimit))

	if cfg.JWTSecret == "" && !cfg.GuestAccess {
		lg.Fatal("nothing to serve: set JWT_SECRET for accounts or GUEST_ACCESS=true for a single-device server")
	}
	if cfg.GuestAccess {
		lg.Warn("GUEST_ACCESS enabled, unauthenticated callers share the guest namespace")
	}
	users, tokens := newAccounts(cfg, lg)

	var reporter *analytics.Reporter
	if cfg.OpenAIAPIKey != "" {
		reporter = analytics.NewReporter(llm.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel), lg)
	} else {
		lg.Warn("OPENAI_API_KEY not set, farm reports disabled")
	}

	sched := scheduler.New(lg)
	if err := sched.Add("reconcile-orphans", cfg.ReconcileSchedule, func(ctx context.Context) error {
		n, err := store.ReconcileAll(ctx)
		if n > 0 {
			lg.Info("orphaned message logs removed", "count", n)
		}
		return err
	}); err != nil {
		lg.Fatal("failed to schedule reconciliation", "error", err)
	}
	sched.Start()
	defer sched.Stop()

	router := httpapi.NewRouter(httpapi.Deps{
		Store:    store,
		Memory:   mem,
		Users:    users,
		Tokens:   tokens,
		Catalog:  catalog,
		Reporter: reporter,
		Log:      lg,

		GuestAccess: cfg.GuestAccess,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		lg.Info("http server listening", "addr", cfg.HTTPAddr, "storage", cfg.StorageBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("graceful shutdown failed", "error", err)
	}
}

// newAccounts returns nil services when JWT_SECRET is unset; the API then
// serves only the guest namespace.
func newAccounts(cfg *config.Config, lg *logger.Logger) (*auth.Service, *auth.Tokens) {
	if cfg.JWTSecret == "" {
		lg.Warn("JWT_SECRET not set, accounts disabled")
		return nil, nil
	}
	repo, err := auth.NewFileRepository(cfg.UsersFilePath)
	if err != nil {
		lg.Fatal("failed to init users repo", "path", cfg.UsersFilePath, "error", err)
	}
	users, err := auth.NewWithRepo(repo)
	if err != nil {
		lg.Fatal("failed to init auth", "error", err)
	}
	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		lg.Fatal("failed to init tokens", "error", err)
	}
	return users, tokens
}
