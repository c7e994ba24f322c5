package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"squish/internal/config"
	"squish/internal/history"
	"squish/internal/jobs"
	"squish/internal/logging"
	"squish/internal/preview"
	"squish/internal/services/ffmpeg"
)

func newTranscodeCommand(ctx *commandContext) *cobra.Command {
	var outputFlag string
	var noProgress bool
	flags := &encodeFlags{}

	cmd := &cobra.Command{
		Use:   "transcode FILE",
		Short: "Compress a video into a new file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranscode(cmd, ctx, args[0], outputFlag, flags, noProgress)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Destination path for the finished file")
	_ = cmd.MarkFlagRequired("output")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")
	return cmd
}

func runTranscode(cmd *cobra.Command, ctx *commandContext, inputArg, outputArg string, flags *encodeFlags, noProgress bool) error {
	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.newLogger()
	if err != nil {
		return err
	}
	input, err := config.ExpandPath(inputArg)
	if err != nil {
		return err
	}
	output, err := config.ExpandPath(outputArg)
	if err != nil {
		return err
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
	if cfg.History.Enabled {
		store, err := history.Open(cfg.HistoryDBPath())
		if err != nil {
			logger.Warn("history unavailable for this run", logging.Error(err))
		} else {
			defer store.Close()
			coordinatorOpts = append(coordinatorOpts, jobs.WithRecorder(store))
		}
	}
	coordinator, err := jobs.NewCoordinator(runner, estimator, cfg.Paths.WorkDir, cfg.FFprobeBinary(), coordinatorOpts...)
	if err != nil {
		return err
	}
	defer coordinator.Close()

	var bar *progressbar.ProgressBar
	if !noProgress && shouldColorize(cmd.ErrOrStderr()) {
		bar = newProgressBar("Encoding")
		dispose := coordinator.Events().Subscribe(func(evt jobs.Event) {
			if evt.Type == jobs.EventProgress {
				_ = bar.Set(int(evt.Fraction * 100))
			}
		})
		defer dispose()
	}

	result, err := coordinator.RunTranscode(signalCtx, jobs.TranscodeRequest{
		Input:   input,
		Options: flags.options(cfg, output),
	})
	if err != nil {
		finishProgress(bar, false)
		return err
	}
	if result.Outcome == jobs.OutcomeAborted {
		// The only abort source here is the signal handler.
		finishProgress(bar, false)
		return signalCtx.Err()
	}
	finishProgress(bar, true)

	if err := coordinator.Commit(result.OutputPath, output); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Wrote %s\n", output)
	if result.InputBytes > 0 && result.OutputBytes > 0 {
		ratio := float64(result.OutputBytes) / float64(result.InputBytes) * 100
		fmt.Fprintf(out, "%s in, %s out (%.1f%% of original) in %s\n",
			formatBytes(result.InputBytes),
			formatBytes(result.OutputBytes),
			ratio,
			formatSeconds(float64(result.DurationMS)/1000))
	}
	return nil
}
