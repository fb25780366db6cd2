package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/chargemirror/internal/config"
	"github.com/MrJamesThe3rd/chargemirror/internal/database"
	mirrorHttp "github.com/MrJamesThe3rd/chargemirror/internal/http"
	chargesHandler "github.com/MrJamesThe3rd/chargemirror/internal/http/charges"
	keysApiHandler "github.com/MrJamesThe3rd/chargemirror/internal/http/keys"
	syncHandler "github.com/MrJamesThe3rd/chargemirror/internal/http/sync"
	"github.com/MrJamesThe3rd/chargemirror/internal/keys"
	keysStore "github.com/MrJamesThe3rd/chargemirror/internal/keys/store"
	"github.com/MrJamesThe3rd/chargemirror/internal/ledger"
	ledgerStore "github.com/MrJamesThe3rd/chargemirror/internal/ledger/store"
	"github.com/MrJamesThe3rd/chargemirror/internal/mirror"
	"github.com/MrJamesThe3rd/chargemirror/internal/upstream"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(cfg.NewLogger())

	horizon, err := cfg.HorizonTime()
	if err != nil {
		slog.Error("invalid sync horizon", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.ConnectionString())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(context.Background(), db); err != nil {
		slog.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	upstreamClient := upstream.New(cfg.Upstream.BaseURL, cfg.Upstream.Timeout)

	var (
		ledgerService = ledger.NewService(ledgerStore.New(db))
		keysService   = keys.NewService(keysStore.New(db))
		syncEngine    = mirror.NewEngine(upstreamClient, ledgerService, keysService, mirror.Options{
			Horizon:  horizon,
			Lookback: cfg.Sync.Lookback,
		})
	)

	var (
		chargesH = chargesHandler.NewHandler(ledgerService, keysService)
		syncH    = syncHandler.NewHandler(syncEngine)
		keysH    = keysApiHandler.NewHandler(keysService, upstreamClient)
	)

	router := mirrorHttp.New(chargesH, syncH, keysH)

	port := fmt.Sprintf(":%d", cfg.App.Port)
	slog.Info("starting server", "port", port)

	if err := http.ListenAndServe(port, router); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
