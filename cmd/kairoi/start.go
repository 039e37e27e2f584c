package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chachacholly/kairoi/internal/api"
	"github.com/chachacholly/kairoi/internal/config"
	"github.com/chachacholly/kairoi/internal/events"
	"github.com/chachacholly/kairoi/internal/execution"
	"github.com/chachacholly/kairoi/internal/lock"
	"github.com/chachacholly/kairoi/internal/log"
	"github.com/chachacholly/kairoi/internal/processor"
	"github.com/chachacholly/kairoi/internal/redislink"
	"github.com/chachacholly/kairoi/internal/runner"
	"github.com/chachacholly/kairoi/internal/storage"
	"github.com/chachacholly/kairoi/internal/store"
)

// bridgeStopTimeout bounds the wait for the bridge after detach. A Redis
// read blocks for up to two seconds before it sees cancellation.
const bridgeStopTimeout = 15 * time.Second

// hostBridge is the job store side of the pipe.
type hostBridge interface {
	Run(ctx context.Context) error
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configFlag := fs.String("config", defaultConfigPath, configFlagUsage)
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	configPath, err := resolveConfigPath(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitError
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitError
	}

	log.Setup(cfg.Service.LogLevel)
	log.Info("kairoi starting", "version", version, "config", configPath, "service", cfg.Service.Name)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg)
}

// serve runs the dispatcher until ctx is cancelled or a component fails, and
// returns the process exit code.
func serve(parent context.Context, cfg *config.Config) int {
	logger := log.WithComponent("main")

	pidLock, err := lock.AcquirePIDLock(cfg.Lock.Path)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", cfg.Lock.Path, "error", err)
		return exitError
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", cfg.Lock.Path)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	pipe := execution.NewPipe()
	hub := events.NewHub(0)

	shell := runner.NewShellRunner(runner.ShellConfig{
		Interpreter: cfg.Runners.Shell.Interpreter,
		Timeout:     cfg.Runners.Shell.Timeout,
		KillGrace:   cfg.Runners.Shell.KillGrace,
	})
	dispatcher := runner.NewDispatcher(shell, runner.NewQueuePublisher())
	proc := processor.New(pipe, dispatcher, processor.Config{
		TickRate:         cfg.Dispatch.TickRate,
		CompletionBuffer: cfg.Dispatch.CompletionBuffer,
	}, hub)

	var (
		bridge   hostBridge
		apiStore api.RequestStore
	)
	switch cfg.Link.Backend {
	case config.BackendSQLite:
		db, err := storage.OpenSQLite(ctx, cfg.Link.SQLite.Path)
		if err != nil {
			logger.Error("failed to open database", "path", cfg.Link.SQLite.Path, "error", err)
			return exitError
		}
		defer db.Close()
		logger.Info("database opened", "path", cfg.Link.SQLite.Path)

		st := store.New(db)
		n, err := st.RecoverOrphaned(ctx)
		if err != nil {
			logger.Error("failed to recover interrupted requests", "error", err)
			return exitError
		}
		if n > 0 {
			logger.Warn("marked interrupted requests failed", "count", n)
		}
		bridge = store.NewBridge(st, pipe, store.BridgeConfig{
			PollInterval: cfg.Link.SQLite.PollInterval,
			BatchSize:    cfg.Link.SQLite.BatchSize,
		})
		apiStore = st

	case config.BackendRedis:
		rcfg := redisConfig(cfg)
		client, err := redislink.NewClient(ctx, rcfg)
		if err != nil {
			logger.Error("failed to connect to redis", "addr", rcfg.Addr, "error", err)
			return exitError
		}
		defer client.Close()
		bridge = redislink.NewBridge(client, pipe, rcfg)
	}

	errCh := make(chan error, 2)
	bridgeDone := make(chan struct{})
	go func() {
		defer close(bridgeDone)
		if err := bridge.Run(ctx); err != nil {
			errCh <- fmt.Errorf("link: %w", err)
		}
	}()

	if cfg.API.Enabled && apiStore != nil {
		apiServer := api.New(api.Config{
			Listen: cfg.API.Listen,
			APIKey: cfg.API.Auth.APIKey,
		}, apiStore, proc, hub, log.WithComponent("api"))
		go func() {
			if err := apiServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	procDone := proc.Start(ctx)

	logger.Info("kairoi running (press Ctrl+C to stop)", "backend", cfg.Link.Backend, "tick_rate", cfg.Dispatch.TickRate)

	code := exitOK
	select {
	case <-parent.Done():
		logger.Info("shutdown requested")
		cancel()
		<-procDone
	case err := <-procDone:
		if parent.Err() == nil {
			code = exitCodeFor(err)
		}
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		code = exitError
		cancel()
		<-procDone
	}

	shutdown(logger, pipe, bridgeDone)
	logger.Info("kairoi stopped", "exit_code", code, "stats", proc.Stats())
	return code
}

// shutdown detaches the loop's outbound side once the loop has stopped. The
// bridge then records the last responses, requeues requests the loop never
// took and returns.
func shutdown(logger *slog.Logger, pipe *execution.Pipe, bridgeDone <-chan struct{}) {
	pipe.Detach()
	select {
	case <-bridgeDone:
	case <-time.After(bridgeStopTimeout):
		logger.Warn("link bridge did not stop in time", "timeout", bridgeStopTimeout)
	}
}

// exitCodeFor maps the dispatch loop's result to a process exit code.
func exitCodeFor(err error) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return exitOK
	case errors.Is(err, processor.ErrChannelDisconnected):
		return exitFatal
	default:
		return exitError
	}
}

func redisConfig(cfg *config.Config) redislink.Config {
	r := cfg.Link.Redis
	return redislink.Config{
		Addr:            r.Addr,
		Password:        r.Password,
		DB:              r.DB,
		RequestsStream:  r.RequestsStream,
		ResponsesStream: r.ResponsesStream,
		Group:           r.Group,
		Consumer:        r.Consumer,
	}
}
