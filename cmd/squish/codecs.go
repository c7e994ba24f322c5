package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"squish/internal/deps"
)

func newCodecsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "codecs",
		Short: "List supported codecs and encoder availability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			snapshot := deps.TakeSnapshot(cmd.Context(), cfg.FFmpegBinary(), cfg.FFprobeBinary(), cfg.Paths.WorkDir)
			if jsonOut {
				return writeJSON(cmd, snapshot)
			}

			out := cmd.OutOrStdout()
			rows := make([][]string, 0, len(snapshot.Encoders))
			for _, enc := range snapshot.Encoders {
				rows = append(rows, []string{
					enc.ID,
					enc.DisplayName,
					enc.Encoder,
					strings.Join(enc.Containers, ", "),
					yesNo(enc.Hardware),
					yesNo(enc.Available),
				})
			}
			fmt.Fprintln(out, renderTable([]string{"Codec", "Name", "Encoder", "Containers", "Hardware", "Available"}, rows))

			colorize := shouldColorize(os.Stdout)
			if snapshot.FFmpeg.Available {
				detail := fmt.Sprintf("%d of %d encoders available", snapshot.AvailableEncoderCount(), len(snapshot.Encoders))
				if snapshot.FFmpegVersion != "" {
					detail = fmt.Sprintf("version %s, %s", snapshot.FFmpegVersion, detail)
				}
				fmt.Fprintln(out, renderStatusLine("ffmpeg", statusOK, detail, colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("ffmpeg", statusWarn, snapshot.FFmpeg.Detail, colorize))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the dependency snapshot as JSON")
	return cmd
}
