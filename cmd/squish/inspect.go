package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"squish/internal/config"
	"squish/internal/media/ffprobe"
)

func newInspectCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Probe a media file and summarize its streams",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			result, err := ffprobe.Inspect(cmd.Context(), cfg.FFprobeBinary(), path)
			if err != nil {
				return err
			}
			summary := result.Summarize()
			if jsonOut {
				return writeJSON(cmd, summary)
			}
			renderInspectSummary(cmd.OutOrStdout(), summary, shouldColorize(os.Stdout))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the summary as JSON")
	return cmd
}

// renderInspectSummary writes the summary in a terminal-friendly layout;
// tables when interactive is set, one stream per line otherwise.
func renderInspectSummary(out io.Writer, summary ffprobe.Summary, interactive bool) {
	fmt.Fprintln(out, summary.Path)
	fmt.Fprintln(out, renderDetailLine("Container", summary.Container))
	fmt.Fprintln(out, renderDetailLine("Duration", formatSeconds(summary.DurationSeconds)))
	fmt.Fprintln(out, renderDetailLine("Size", formatBytes(summary.SizeBytes)))
	if summary.BitRate > 0 {
		fmt.Fprintln(out, renderDetailLine("Bit rate", fmt.Sprintf("%s kb/s", humanize.Comma(summary.BitRate/1000))))
	}
	fmt.Fprintln(out, renderDetailLine("Subtitles", strconv.Itoa(summary.SubtitleCount)))

	if interactive {
		renderStreamTables(out, summary)
		return
	}
	renderStreamLines(out, summary)
}

func renderStreamTables(out io.Writer, summary ffprobe.Summary) {
	if len(summary.Video) > 0 {
		rows := make([][]string, 0, len(summary.Video))
		for i, v := range summary.Video {
			rows = append(rows, []string{
				strconv.Itoa(i + 1), v.Codec, formatResolution(v.Width, v.Height), formatFPS(v.FPS),
			})
		}
		fmt.Fprintln(out, renderTable([]string{"#", "Video", "Resolution", "FPS"}, rows, 0, 3))
	}
	if len(summary.Audio) > 0 {
		rows := make([][]string, 0, len(summary.Audio))
		for i, a := range summary.Audio {
			rows = append(rows, []string{
				strconv.Itoa(i + 1), a.Codec, strconv.Itoa(a.Channels), a.ChannelLayout,
			})
		}
		fmt.Fprintln(out, renderTable([]string{"#", "Audio", "Channels", "Layout"}, rows, 0, 2))
	}
}

func renderStreamLines(out io.Writer, summary ffprobe.Summary) {
	for i, v := range summary.Video {
		fmt.Fprintf(out, "video %d: %s %s %sfps\n", i+1, v.Codec, formatResolution(v.Width, v.Height), formatFPS(v.FPS))
	}
	for i, a := range summary.Audio {
		line := fmt.Sprintf("audio %d: %s %dch", i+1, a.Codec, a.Channels)
		if a.ChannelLayout != "" {
			line += " " + a.ChannelLayout
		}
		fmt.Fprintln(out, line)
	}
}

func formatResolution(width, height int) string {
	if width <= 0 || height <= 0 {
		return "-"
	}
	return fmt.Sprintf("%dx%d", width, height)
}

func formatFPS(fps float64) string {
	if fps <= 0 {
		return "-"
	}
	text := strconv.FormatFloat(fps, 'f', 2, 64)
	text = strings.TrimRight(text, "0")
	return strings.TrimRight(text, ".")
}
