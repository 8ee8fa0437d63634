// Command walletsync keeps Solana and Ethereum wallet snapshots in sync for
// the trading dashboard. Browser wallets are reached through the page bridge,
// fixed addresses through watch-only providers.
//
// Usage:
//
//	walletsync -config config.yaml
//	walletsync -setup (interactive wizard, writes the config and starts)
//	walletsync -debug (development logging)
//
// Optional environment variables, also read from .env:
//
//	ETHERSCAN_API_KEY, SOLANA_RPC_URL, ETHEREUM_RPC_URL
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/vadiminshakov/walletsync/config"
	"github.com/vadiminshakov/walletsync/internal"
	"github.com/vadiminshakov/walletsync/internal/setup"
)

func main() {
	flags := config.GetFlags()

	if flags.Setup {
		if err := setup.RunTUI(flags.ConfigPath); err != nil {
			log.Fatal(err)
		}
	}

	logger, err := newLogger(flags.Debug)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	conf, err := config.Load(flags.ConfigPath)
	if err != nil {
		logger.Fatal("failed to get configuration", zap.String("path", flags.ConfigPath), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := internal.NewApp(ctx, conf, logger)
	if err != nil {
		logger.Fatal("failed to create walletsync", zap.Error(err))
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		logger.Error("walletsync stopped with error", zap.Error(err))
		return
	}
	logger.Info("walletsync stopped")
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
