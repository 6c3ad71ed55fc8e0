package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sitegen/core"
	"strconv"
	"syscall"
	"time"
)

func initializeFsWatcher(ctx *core.Context) (*core.FileWatcherListener, error) {
	watcher, err := core.NewFileWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	ctx.FileWatcher = watcher

	if err := watcher.Start(ctx.Config.Paths.Posts, ctx.Config.Paths.Books); err != nil {
		return nil, fmt.Errorf("failed to start file watcher: %w", err)
	}

	listener, err := core.RegisterFileWatcherListener(watcher, ctx, ctx.Config.Watch.Debounce())
	if err != nil {
		watcher.Stop()
		return nil, fmt.Errorf("failed to register file watcher listener: %w", err)
	}
	return listener, nil
}

// initialBuild runs all generators before watching. Failures are logged so
// that fixing the content triggers the next rebuild.
func initialBuild(ctx *core.Context) {
	if _, err := ctx.Build(core.TriggerBuild); err != nil {
		core.Error("initial build failed", "error", err)
	}
}

func waitForSignal() os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)
	return <-quit
}

// Watch builds once and then rebuilds affected artifacts on every change
// until interrupted
func Watch(ctx *core.Context) error {
	initialBuild(ctx)

	listener, err := initializeFsWatcher(ctx)
	if err != nil {
		return err
	}
	defer ctx.FileWatcher.Stop()
	defer listener.Stop()

	core.Info("watching for changes", "roots", ctx.FileWatcher.Roots(), "debounce", ctx.Config.Watch.Debounce())

	sig := waitForSignal()
	core.Info("stopping watcher", "signal", sig.String())
	return nil
}

// Serve watches the content roots and runs the preview server
func Serve(ctx *core.Context) error {
	initialBuild(ctx)

	listener, err := initializeFsWatcher(ctx)
	if err != nil {
		return err
	}
	defer ctx.FileWatcher.Stop()
	defer listener.Stop()

	health := core.GlobalHealthChecker
	core.RegisterDefaultHealthChecks(health, ctx)

	rm := core.NewRouterManager()
	if err := rm.InitializeRouter(ctx, health); err != nil {
		return fmt.Errorf("failed to set up routes: %w", err)
	}
	defer rm.Stop()

	monitoringCtx, cancelMonitoring := context.WithCancel(context.Background())
	defer cancelMonitoring()

	go core.GlobalMetrics.StartMetricsCollector(monitoringCtx, time.Minute)
	go health.StartPeriodicChecks(monitoringCtx, 60*time.Second)

	addr := net.JoinHostPort(ctx.Config.Server.Hostname, strconv.Itoa(ctx.Config.Server.Port))
	server := &http.Server{
		Addr:         addr,
		Handler:      rm.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		core.Info("starting preview server", "addr", "http://"+addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serverErr:
		return fmt.Errorf("failed to start server: %w", err)
	case sig := <-quit:
		core.Info("shutting down server", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	core.Info("server exited")
	return nil
}
