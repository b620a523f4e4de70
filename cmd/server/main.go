package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cdr.dev/slog"
	"cdr.dev/slog/sloggers/sloghuman"

	"github.com/corkboard-dev/corkboard/internal/api"
	"github.com/corkboard-dev/corkboard/internal/maintenance"
	"github.com/corkboard-dev/corkboard/internal/persist"
	"github.com/corkboard-dev/corkboard/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.Make(sloghuman.Sink(os.Stderr))
	if os.Getenv("CORKBOARD_VERBOSE") != "" {
		logger = logger.Leveled(slog.LevelDebug)
	}

	dbPath := os.Getenv("CORKBOARD_DB_PATH")
	if dbPath == "" {
		dbPath = "./data/corkboard.db"
	}

	store, err := persist.NewSQLiteStore(dbPath)
	if err != nil {
		logger.Fatal(ctx, "database init failed", slog.Error(err))
	}
	defer store.Close()

	hub := ws.NewHub(store, logger)
	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(hubCtx)
	}()

	sweeper := maintenance.New(store, hub, maintenance.DefaultConfig(), logger)
	sweeper.Start()
	defer sweeper.Stop()

	router := api.New(hub, store, logger).Routes()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: corsMiddleware(router),
	}

	go func() {
		<-ctx.Done()
		logger.Info(context.Background(), "shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "http shutdown failed", slog.Error(err))
		}

		// Rooms flush their snapshots as the hub winds down.
		stopHub()
		<-hubDone
	}()

	logger.Info(ctx, "corkboard server starting",
		slog.F("port", port),
		slog.F("db_path", dbPath),
	)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal(ctx, "server failed", slog.Error(err))
	}
	<-hubDone
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
