package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fjod/storefront/internal/app"
	"github.com/fjod/storefront/internal/config"
	"github.com/fjod/storefront/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root, closeApp := newRootCmd(openApp)
	err := root.ExecuteContext(ctx)
	if cerr := closeApp(context.Background()); cerr != nil {
		fmt.Fprintln(os.Stderr, "error: failed to close:", cerr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return app.New(ctx, cfg, log)
}
