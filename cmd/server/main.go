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

	"github.com/lanebid/auction-engine/internal/archive"
	"github.com/lanebid/auction-engine/internal/auction"
	"github.com/lanebid/auction-engine/internal/httpapi"
	"github.com/lanebid/auction-engine/internal/metrics"
	"github.com/lanebid/auction-engine/internal/seed"
	"github.com/lanebid/auction-engine/internal/simulator"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Seed catalog ---
	catalog := seed.Default()
	if path := os.Getenv("SEED_FILE"); path != "" {
		loaded, err := seed.Load(path)
		if err != nil {
			slog.Error("seed catalog failed", "path", path, "err", err)
			os.Exit(1)
		}
		catalog = loaded
		slog.Info("seed catalog loaded", "path", path,
			"vehicles", len(catalog.Vehicles), "bidders", len(catalog.Bidders))
	}

	// --- Archive ---
	var store archive.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		store = archive.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			store = archive.NewCachedStore(store, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory archive (records will not persist)")
		store = archive.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Auction engine ---
	advanceDelay := auction.DefaultAdvanceDelay
	if raw := os.Getenv("ADVANCE_DELAY"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			slog.Error("invalid ADVANCE_DELAY", "value", raw, "err", err)
			os.Exit(1)
		}
		advanceDelay = d
	}

	engine, err := auction.NewEngine(auction.Config{
		Vehicles:     catalog.VehicleModels(),
		Bidders:      catalog.BidderModels(),
		AdvanceDelay: advanceDelay,
		Recorder:     store,
	})
	if err != nil {
		slog.Error("engine construction failed", "err", err)
		os.Exit(1)
	}
	defer engine.Close()

	// --- WebSocket hub ---
	wsHub := httpapi.NewWSHub(engine.Snapshot)
	go wsHub.Run()
	engine.Subscribe(wsHub.HandleEvent)

	// --- Simulated bidder traffic ---
	simCtx, stopSim := context.WithCancel(context.Background())
	defer stopSim()
	if os.Getenv("SIMULATOR") == "1" {
		sim := simulator.New(engine, simulator.Config{})
		go sim.Run(simCtx)
		slog.Info("bid stream simulator enabled")
	}

	// --- HTTP router ---
	api := httpapi.NewServer(engine, store, wsHub)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	api.Register(r)

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("auction engine listening", "port", port)
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

	slog.Info("shutting down auction engine...")
	stopSim()
	engine.Close()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("auction engine stopped")
}
