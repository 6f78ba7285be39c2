package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"adsio/internal/app"
	"adsio/internal/config"
)

func main() {
	cfg := config.Load()
	wl, err := config.LoadWatchlist(cfg.WatchlistPath)
	if err != nil {
		log.Printf("watchlist: %v", err)
	} else {
		cfg = cfg.ApplyOverrides(wl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	defer application.Close()

	if err := application.Run(ctx); err != nil {
		log.Fatalf("run: %v", err)
	}
}
