// Package main provides the labcustody binary.
//
// labcustody is a cryptographic custody layer for medical lab reports: it
// encrypts each report into a hybrid envelope (AES-256-GCM content key
// wrapped per-recipient with RSA-OAEP), signs it with the issuing lab's
// key, and appends its lifecycle (publish, share, unshare, update, revoke)
// to an append-only event ledger. It exposes that operations surface over
// a small HTTP API for local exercise and end-to-end testing.
//
// Usage:
//
//	labcustody [flags]
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/apscustody/labcustody/internal/config"
	"github.com/apscustody/labcustody/internal/httpapi"
	"github.com/apscustody/labcustody/internal/service"
)

// version is set at build time via -ldflags.
var version = "0.1.0-dev"

func main() {
	cfg, err := config.Parse(os.Args[1:], version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "labcustody: %v\n", err)
		os.Exit(1)
	}

	if cfg.ShowVersion {
		fmt.Printf("labcustody %s\n", version)
		os.Exit(0)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "labcustody: configuring logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()

	svc, err := service.New(cfg, log)
	if err != nil {
		log.Errorw("failed to initialise service", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	handler := httpapi.New(svc, log)
	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // the ledger-tail SSE endpoint streams indefinitely
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Infow("labcustody listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Infow("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Errorw("error during shutdown", "error", err)
			os.Exit(1)
		}
	case err := <-errCh:
		log.Errorw("server exited with error", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}
