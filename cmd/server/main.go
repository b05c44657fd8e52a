package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	log "github.com/charmbracelet/log"

	"github.com/stellarpay/starbridge/infra/initializer"
	"github.com/stellarpay/starbridge/infra/telegram"
	"github.com/stellarpay/starbridge/pkg/config"
	"github.com/stellarpay/starbridge/pkg/service/monitor"
	"github.com/stellarpay/starbridge/webapi"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	logger := slog.Default()
	cfg, err := config.Load(".env")
	if err != nil {
		return fmt.Errorf("failed to load application configuration: %w", err)
	}

	deps, err := initializer.InitializeDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The Kafka bus consumes asynchronously; the in-memory bus dispatches
	// inline and has no loop to start.
	if starter, ok := deps.Bus.(interface{ Start(context.Context) }); ok {
		starter.Start(ctx)
	}

	// Background monitors.
	pollers := []*monitor.Poller{
		deps.TxMonitor.Poller,
		deps.DepositMonitor.Poller,
		monitor.NewPoller("settlement", cfg.Monitors.SettlementInterval, logger, func(ctx context.Context) {
			deps.Settlements.ProcessCycle(ctx)
		}),
		monitor.NewPoller("order-sweep", cfg.Monitors.SweepInterval, logger, func(ctx context.Context) {
			if err := deps.Orders.Sweep(ctx, cfg.Monitors.BatchSize); err != nil {
				logger.Error("order sweep failed", "error", err)
			}
		}),
		monitor.NewPoller("deposit-expiry", cfg.Monitors.ExpiryInterval, logger, func(ctx context.Context) {
			deps.DepositMonitor.ExpireOverdue(ctx)
		}),
	}
	for _, p := range pollers {
		p.Start(ctx)
	}
	defer func() {
		for _, p := range pollers {
			p.Stop()
		}
	}()

	if cfg.Telegram.Enabled {
		bot, err := telegram.New(cfg.Telegram.BotToken, deps.Payments, logger)
		if err != nil {
			return fmt.Errorf("failed to create telegram bot: %w", err)
		}
		go bot.Start(ctx)
	}

	fiberApp := webapi.NewApp(deps.Conversions, deps.Orders, deps.Payments, cfg)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("starting server",
		"env", cfg.Env,
		"address", addr,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- fiberApp.Listen(addr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return fiberApp.Shutdown()
	case err := <-errCh:
		return err
	}
}
