/*
main.go - Finance ledger server entry point

STARTUP SEQUENCE:
  1. Load .env (if present) and parse flags
  2. Pick the storage backend (sqlite file, sqlite :memory:, or pure memory)
  3. Wire the handler and router
  4. Serve with graceful shutdown

CONFIGURATION:
  Flags (override environment):
    -port    HTTP server port          (env PORT, default 8080)
    -db      SQLite database path      (env DB_PATH, default finance.db)
             ":memory:" for in-memory SQLite
    -memory  Use the in-process map backend instead of SQLite.
             Single-process only; state is lost on exit.

  Environment:
    LOG_LEVEL, LOG_FILE, LOG_NO_COLOR  (see logging package)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM: stop accepting connections, drain active requests
  (30s), close the store, exit.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/5123082-wq/collabstep-pro-sub006/api"
	"github.com/5123082-wq/collabstep-pro-sub006/finance"
	memstore "github.com/5123082-wq/collabstep-pro-sub006/finance/store"
	"github.com/5123082-wq/collabstep-pro-sub006/logging"
	"github.com/5123082-wq/collabstep-pro-sub006/store/sqlite"
)

func main() {
	_ = godotenv.Load()
	log := logging.New()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DB_PATH", "finance.db"), "SQLite database path (\":memory:\" for in-memory)")
	useMemory := flag.Bool("memory", false, "use the in-process backend instead of SQLite (single process only)")
	flag.Parse()

	var repo finance.Repository
	if *useMemory {
		repo = memstore.NewMemory()
		log.Warn("using in-memory backend: state is process-local and not persisted")
	} else {
		store, err := sqlite.New(*dbPath)
		if err != nil {
			log.WithError(err).Fatal("failed to initialize database")
		}
		defer store.Close()
		repo = store
		log.WithField("db", *dbPath).Info("sqlite backend ready")
	}

	handler := api.NewHandler(repo, log)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("finance ledger listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("forced shutdown")
	}
	log.Info("stopped")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}
