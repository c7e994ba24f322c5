package main

import (
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"squish/internal/config"
	"squish/internal/preview"
	"squish/internal/services/ffmpeg"
	"squish/internal/tempfile"
)

func newEstimateCommand(ctx *commandContext) *cobra.Command {
	var samples int
	var sampleSeconds float64
	var jsonOut bool
	var noProgress bool
	flags := &encodeFlags{}

	cmd := &cobra.Command{
		Use:   "estimate FILE",
		Short: "Predict the compressed size without a full encode",
		Long: "Estimate encodes short samples spread across the file and extrapolates\n" +
			"the finished size from their compression ratio.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEstimate(cmd, ctx, args[0], flags, samples, sampleSeconds, jsonOut, noProgress)
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVar(&samples, "samples", 0, "Number of sample windows (default from config)")
	cmd.Flags().Float64Var(&sampleSeconds, "sample-seconds", 0, "Seconds per sample window (default from config)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the estimate as JSON")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")
	return cmd
}

func runEstimate(cmd *cobra.Command, ctx *commandContext, inputArg string, flags *encodeFlags, samples int, sampleSeconds float64, jsonOut, noProgress bool) error {
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

	runner, err := ffmpeg.NewRunner(cfg.FFmpegBinary(), ffmpeg.WithLogger(logger))
	if err != nil {
		return err
	}
	estimator, err := preview.NewEstimator(runner, cfg.FFprobeBinary(), preview.WithLogger(logger))
	if err != nil {
		return err
	}
	files := tempfile.NewManager(cfg.Paths.WorkDir, logger)
	defer files.Cleanup()

	if samples <= 0 {
		samples = cfg.Preview.SampleCount
	}
	if sampleSeconds <= 0 {
		sampleSeconds = cfg.Preview.SampleSeconds
	}

	var bar *progressbar.ProgressBar
	if !noProgress && !jsonOut && shouldColorize(cmd.ErrOrStderr()) {
		bar = newProgressBar("Sampling")
	}

	estimate, err := estimator.EstimateSize(signalCtx, files, preview.EstimateRequest{
		Input:         input,
		Options:       flags.options(cfg, ""),
		SampleCount:   samples,
		SampleSeconds: sampleSeconds,
		OnProgress: func(fraction float64) {
			if bar != nil {
				_ = bar.Set(int(fraction * 100))
			}
		},
	})
	finishProgress(bar, err == nil)
	if err != nil {
		return err
	}
	if jsonOut {
		return writeJSON(cmd, estimate)
	}

	p := message.NewPrinter(language.English)
	out := cmd.OutOrStdout()
	p.Fprintf(out, "Predicted size: %s (%d bytes)\n", formatBytes(estimate.PredictedBytes), estimate.PredictedBytes)
	p.Fprintf(out, "Range:          %s to %s\n", formatBytes(estimate.LowBytes), formatBytes(estimate.HighBytes))
	p.Fprintf(out, "Confidence:     %s (%d samples, %.1fs encoded)\n",
		estimate.Confidence, estimate.SampleCount, estimate.SampledSeconds)
	return nil
}
