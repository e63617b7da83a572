package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"estimo/infrastructure/grpc/server"
	"estimo/infrastructure/httpapi"
	"estimo/infrastructure/storage"
	"estimo/internal"
	"estimo/runtime"
	"estimo/runtime/workers"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run keeps every defer (database close first of all) on the exit path.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, log, ctx))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Engine & Supervision
	registry := runtime.NewRegistry()
	notifier := runtime.NewNotifier(log, registry, config.CommitBuffer, config.ListenerBuffer, config.SinkTimeout)
	repository := storage.NewRoomRepository(db, log, notifier)
	sup := workers.NewSupervisor(log).WithRestartDelay(config.RestartDelay)
	engine := runtime.NewEngine(log, repository, notifier, sup).
		WithPolicies(config.VotePolicy(), config.JoinPolicy()).
		WithSessionPolicy(config.SessionPolicy())

	heartbeat := workers.NewHeartbeatWorker(log, config.HeartbeatEvery, func() (int, int, int) {
		pending, capacity := notifier.Pending()
		watchers := 0
		for _, n := range registry.Watchers() {
			watchers += n
		}
		return pending, capacity, watchers
	})
	sup.Add(heartbeat)

	engineDone := make(chan struct{})
	go func() {
		engine.Start(ctx)
		close(engineDone)
	}()

	errChan := make(chan error, 3)

	// 4. gRPC
	listener, err := net.Listen("tcp", config.GRPCAddr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", config.GRPCAddr(), err)
	}
	grpcServer := server.NewGRPCServer(log, engine)
	go func() {
		log.Info("Starting gRPC server", "address", config.GRPCAddr(), "at", time.Now().UTC())
		if err := grpcServer.Serve(listener); err != nil && !stderrors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 5. HTTP API & inspector
	httpServer := &http.Server{
		Addr:              config.HTTPAddr(),
		Handler:           httpapi.NewRouter(log, engine, config.GinMode),
		ReadHeaderTimeout: 5 * time.Second,
	}
	debugServer := internal.NewDebugServer(log, config.DebugAddr(), repository, func() map[string]any {
		beat := heartbeat.Latest()
		return map[string]any{
			"Pid":        beat.Pid,
			"Status":     beat.Status,
			"CPU":        fmt.Sprintf("%.1f%%", beat.CPUPercent),
			"RSS":        fmt.Sprintf("%d MiB", beat.RSSBytes>>20),
			"Goroutines": beat.Goroutines,
			"Commits":    fmt.Sprintf("%d/%d", beat.PendingCommits, beat.CommitCapacity),
			"Sampled":    beat.At.Format(time.TimeOnly),
		}
	}, registry.Watchers)

	for _, srv := range []*http.Server{httpServer, debugServer} {
		go func() {
			log.Info("Starting HTTP server", "address", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("HTTP server %s error: %w", srv.Addr, err)
			}
		}()
	}

	// 6. Wait for Stop or Error
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case runErr = <-errChan:
		log.Error("Server failure, shutting down", "error", runErr)
	}

	// 7. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	_ = debugServer.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
	engine.Stop()
	<-engineDone
	log.Info("Program stopped cleanly")

	return runErr
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG)
	} else {
		options = options.WithLoggingLevel(badger.WARNING)
	}
	return options
}
