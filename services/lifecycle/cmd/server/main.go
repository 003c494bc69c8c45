package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nexuscrm/nexus/pkg/authn"
	"github.com/nexuscrm/nexus/pkg/db"
	"github.com/nexuscrm/nexus/pkg/domain"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/api"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/store"
)

func main() {
	cfg := loadConfig()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, closeFn, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer closeFn()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.New(backend, api.WithLogger(logger), api.WithMaxBodyBytes(int64(cfg.MaxBodyBytes))).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("lifecycle service listening", "port", cfg.Port, "memory_store", cfg.MemoryStore)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("serve", "err", err)
		os.Exit(1)
	}
}

// openBackend connects to Postgres, or builds a throwaway in-memory store when
// NEXUS_STORE=memory. The memory store prints a single all-scopes dev token.
func openBackend(ctx context.Context, cfg config, logger *slog.Logger) (api.Backend, func(), error) {
	if cfg.MemoryStore {
		mem := store.NewMemory()
		token, hash, err := authn.NewToken()
		if err != nil {
			return nil, nil, err
		}
		mem.AddCredential(domain.Actor{ID: "usr_dev", Type: domain.ActorUser}, hash, nil)
		logger.Warn("using in-memory store; data is lost on exit", "dev_token", token)
		return mem, func() {}, nil
	}

	pool, err := db.Connect(ctx, db.Options{DSN: cfg.DatabaseURL, MaxConns: int32(cfg.MaxConns)})
	if err != nil {
		return nil, nil, err
	}
	st := store.New(pool)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := st.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return st, pool.Close, nil
}
