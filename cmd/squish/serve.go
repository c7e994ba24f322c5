package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"squish/internal/deps"
	"squish/internal/history"
	"squish/internal/jobs"
	"squish/internal/logging"
	"squish/internal/preview"
	"squish/internal/services/ffmpeg"
	"squish/internal/sidecar"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var socketFlag string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the transcode sidecar",
		Long: "Serve answers line-delimited JSON requests on stdin/stdout until the\n" +
			"stream closes. With --socket it listens on a unix socket instead and\n" +
			"serves one client at a time.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx, socketFlag)
		},
	}

	cmd.Flags().StringVar(&socketFlag, "socket", "", "Listen on a unix socket instead of stdin/stdout")
	return cmd
}

func runServe(cmdCtx context.Context, ctx *commandContext, socketPath string) error {
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another squish instance is already running (lock %s)", cfg.LockPath())
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("squish-%s.log", runID))
	// Stdout carries the protocol stream, so logs go to stderr and the
	// run log only.
	logger, err := logging.New(logging.Options{
		Level:            ctx.logLevel(cfg),
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stderr", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
	})
	if err != nil {
		_ = lock.Unlock()
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("release instance lock", logging.Error(err))
		}
	}()
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		logger.Warn("update squish.log link", logging.Error(err))
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "squish-*.log", Exclude: []string{logPath}},
	)

	pidPath := filepath.Join(cfg.Paths.StateDir, "squish.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.Open(cfg.HistoryDBPath())
		if err != nil {
			logger.Error("open history store", logging.Error(err))
			return err
		}
		defer store.Close()
		if cfg.History.Keep > 0 {
			if err := store.Prune(signalCtx, cfg.History.Keep); err != nil {
				logger.Warn("prune history", logging.Error(err))
			}
		}
	}

	runner, err := ffmpeg.NewRunner(cfg.FFmpegBinary(), ffmpeg.WithLogger(logger))
	if err != nil {
		return err
	}
	estimator, err := preview.NewEstimator(runner, cfg.FFprobeBinary(), preview.WithLogger(logger))
	if err != nil {
		return err
	}
	coordinatorOpts := []jobs.Option{jobs.WithLogger(logger)}
	if store != nil {
		coordinatorOpts = append(coordinatorOpts, jobs.WithRecorder(store))
	}
	coordinator, err := jobs.NewCoordinator(runner, estimator, cfg.Paths.WorkDir, cfg.FFprobeBinary(), coordinatorOpts...)
	if err != nil {
		return err
	}
	defer coordinator.Close()

	deps.TakeSnapshot(signalCtx, cfg.FFmpegBinary(), cfg.FFprobeBinary(), cfg.Paths.WorkDir).Log(logger)

	serverOpts := []sidecar.Option{sidecar.WithLogger(logger)}
	if store != nil {
		serverOpts = append(serverOpts, sidecar.WithHistory(store))
	}
	server, err := sidecar.NewServer(coordinator, sidecar.Info{
		Version:       version,
		FFmpegBinary:  cfg.FFmpegBinary(),
		FFprobeBinary: cfg.FFprobeBinary(),
		WorkDir:       cfg.Paths.WorkDir,
	}, serverOpts...)
	if err != nil {
		return err
	}

	logger.Info("squish sidecar starting",
		logging.String("version", version),
		logging.Int("pid", os.Getpid()),
		logging.String("log_path", logPath))

	if socketPath != "" {
		err := server.ListenAndServe(signalCtx, socketPath)
		logger.Info("squish sidecar shutting down")
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(signalCtx, os.Stdin, os.Stdout)
	}()
	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("protocol stream failed", logging.Error(err))
			return err
		}
		logger.Info("protocol stream closed")
	case <-signalCtx.Done():
		// A signal cannot unblock the stdin read; exit without waiting
		// for EOF.
		logger.Info("squish sidecar shutting down")
	}
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "squish.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err == nil {
		return nil
	}
	return fmt.Errorf("link log pointer for %s", target)
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
