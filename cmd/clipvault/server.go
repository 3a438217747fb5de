package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/clipvault/internal/api"
	"github.com/kalambet/clipvault/internal/config"
	"github.com/kalambet/clipvault/internal/index"
	"github.com/kalambet/clipvault/internal/indexsync"
	"github.com/kalambet/clipvault/internal/search"
	"github.com/kalambet/clipvault/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the clipvault server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "clipvault version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("closing storage", "error", err)
		}
	}()

	// Open (or create) the search index.
	idx, err := index.Open(cfg.Index.Path)
	if err != nil {
		return fmt.Errorf("opening search index: %w", err)
	}
	defer func() {
		if err := idx.Close(); err != nil {
			slog.Error("closing search index", "error", err)
		}
	}()

	// Wire the sync machinery: durable queue, single dispatcher, sweeper.
	queue := indexsync.NewQueue(store)
	dispatcher := indexsync.NewDispatcher(queue, store, idx)
	sweeper := indexsync.NewSweeper(store, idx, queue)
	reindexer := indexsync.NewReindexer(store, idx)
	searcher := search.NewSearcher(idx, store)

	bg, bgCtx := errgroup.WithContext(ctx)
	bg.Go(func() error {
		dispatcher.Run(bgCtx)
		return nil
	})
	bg.Go(func() error {
		sweeper.Run(bgCtx)
		return nil
	})

	handler := api.NewHandler(api.AppDeps{
		Store:   store,
		Queue:   queue,
		Search:  searcher,
		Reindex: reindexer,
		Token:   cfg.Admin.Token,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("clipvault listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout, then stop the background tasks and
	// the queue pump once no producers remain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownErr := srv.Shutdown(shutdownCtx)

	stop()
	bg.Wait()
	queue.Close()

	return shutdownErr
}
