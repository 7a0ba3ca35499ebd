package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unkn0wn-root/querycache"
	"github.com/unkn0wn-root/querycache/internal/config"
	"github.com/unkn0wn-root/querycache/internal/logging"
	"github.com/unkn0wn-root/querycache/internal/mockserver"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.App.LogBackend, cfg.App.Debug)
	if err != nil {
		return err
	}
	defer log.Sync()

	srv := &http.Server{
		Addr: cfg.Mock.Addr,
		Handler: mockserver.New(mockserver.Options{
			Count:    cfg.Mock.Books,
			Seed:     cfg.Mock.Seed,
			FailRate: cfg.Mock.FailRate,
			Logger:   log,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("mock backend listening", querycache.Fields{
			"addr":      cfg.Mock.Addr,
			"books":     cfg.Mock.Books,
			"fail_rate": cfg.Mock.FailRate,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	log.Info("shutting down", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
