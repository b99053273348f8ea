// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Shivanand-hulikatti/ppi-ladder/internal/config"
	"github.com/Shivanand-hulikatti/ppi-ladder/internal/database"
	"github.com/Shivanand-hulikatti/ppi-ladder/internal/handler"
	"github.com/Shivanand-hulikatti/ppi-ladder/internal/model"
	"github.com/Shivanand-hulikatti/ppi-ladder/internal/obslog"
	"github.com/Shivanand-hulikatti/ppi-ladder/internal/rating"
	"github.com/Shivanand-hulikatti/ppi-ladder/internal/repository"
	"github.com/Shivanand-hulikatti/ppi-ladder/internal/service"
	"github.com/Shivanand-hulikatti/ppi-ladder/internal/worker"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := obslog.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("ladder stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Open the store ────────────────────────────────────────────────
	var store repository.Store
	switch cfg.Store {
	case config.StoreMemory:
		log.Warn("using in-memory store; state is lost on exit")
		store = repository.NewMemoryStore(nil)
	default:
		pool, err := database.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			return err
		}
		log.Info("connected to postgres", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.Name))
		store = repository.NewPostgresStore(pool)
	}

	// ── 2. Wire up layers ────────────────────────────────────────────────
	gameSvc := service.NewGameService(store, rating.New(cfg.RatingK), log)
	userSvc := service.NewUserService(store)
	rankingSvc := service.NewRankingService(store)

	if len(cfg.Users) > 0 {
		created, err := userSvc.SeedUsers(ctx, seedUsers(cfg.Users))
		if err != nil {
			return err
		}
		log.Info("seeded users", zap.Int("configured", len(cfg.Users)), zap.Int("created", created))
	}

	router := handler.NewRouter(
		handler.NewGameHandler(gameSvc, log),
		handler.NewUserHandler(userSvc, rankingSvc, log),
		log,
		cfg.GatewayToken,
	)

	// ── 3. Background auto-start ─────────────────────────────────────────
	if cfg.StartInterval > 0 {
		starter, err := worker.NewStarter(gameSvc, cfg.StartInterval, log)
		if err != nil {
			return err
		}
		starter.Start()
		defer func() {
			if err := starter.Stop(); err != nil {
				log.Warn("stop auto-start worker", zap.Error(err))
			}
		}()
	}

	// ── 4. Start server with graceful shutdown ───────────────────────────
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func seedUsers(in []config.SeedUser) []model.User {
	out := make([]model.User, len(in))
	for i, u := range in {
		out[i] = model.User{
			ID:            u.ID,
			Nickname:      u.Nickname,
			Email:         u.Email,
			PPI:           u.PPI,
			TicketBalance: u.Tickets,
		}
		if u.ProfilePictureURL != "" {
			pic := u.ProfilePictureURL
			out[i].ProfilePictureURL = &pic
		}
	}
	return out
}
