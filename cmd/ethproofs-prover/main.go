package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/ethproofs/ethproofs-prover/internal/config"
	"github.com/ethproofs/ethproofs-prover/internal/inputbuilder"
	"github.com/ethproofs/ethproofs-prover/internal/supervisor"
)

func main() {
	cfg := config.Config{}
	if _, err := flags.Parse(&cfg); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		log.Fatalf("failed to parse flags: %v", err)
	}

	logger, err := newLogger(cfg.Dev)
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	buildInput := inputbuilder.ShellFunc(cfg.InputBuilderPath)

	sup, err := supervisor.New(ctx, cfg, buildInput, logger)
	if err != nil {
		logger.Fatal("failed to initialize supervisor", zap.Error(err))
	}
	defer func() {
		if err := sup.Close(); err != nil {
			logger.Error("failed to close supervisor", zap.Error(err))
		}
	}()

	logger.Info("starting ethproofs-prover", zap.Int("health_port", cfg.HealthPort), zap.Bool("dev", cfg.Dev))
	if err := sup.Run(ctx); err != nil {
		logger.Error("supervisor exited with error", zap.Error(err))
	}
	logger.Info("ethproofs-prover stopped")
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
