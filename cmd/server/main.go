package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/yLucasx3/gh-economy/internal/auth"
	"github.com/yLucasx3/gh-economy/internal/config"
	"github.com/yLucasx3/gh-economy/internal/limit"
	"github.com/yLucasx3/gh-economy/internal/metrics"
	"github.com/yLucasx3/gh-economy/internal/store"
	"github.com/yLucasx3/gh-economy/internal/trade"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Identity resolution ---
	verifier := auth.NewJWTVerifier(cfg.TokenSecret)

	// --- Purchase limits ---
	limiter := limit.NewPurchaseLimiter(cfg.MaxPerAnnouncement, cfg.MaxPerItem)

	// --- Presence hub ---
	hub := trade.NewPresenceHub(st)
	go hub.Run()

	// --- Trade service ---
	tradeSvc := trade.NewService(st, limiter, hub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"gh-economy"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(verifier))

		// WebSocket endpoint for presence and trade events.
		r.Get("/ws", hub.HandleWS)

		// Announcements.
		r.Get("/announcements", tradeSvc.ListAnnouncements)
		r.Post("/announcements", tradeSvc.CreateAnnouncement)
		r.Get("/announcements/{announcementID}", tradeSvc.GetAnnouncement)

		// Trade execution.
		r.Post("/trades", tradeSvc.AskTrade)

		// Transaction queries.
		r.Get("/transactions/pending", tradeSvc.ListPendingTransactions)
		r.Get("/transactions/{transactionID}", tradeSvc.GetTransaction)
		r.Post("/transactions/{transactionID}/reject", tradeSvc.RejectTransaction)

		// User queries.
		r.Get("/users/online", tradeSvc.ListOnlineUsers)
		r.Get("/wallet", tradeSvc.GetWallet)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("gh-economy listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down gh-economy...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("gh-economy stopped")
}
