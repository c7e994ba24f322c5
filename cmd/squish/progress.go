package main

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
)

// newProgressBar builds a 0-100 bar on stderr, leaving stdout for command
// output.
func newProgressBar(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(100,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "▐",
			BarEnd:        "▌",
		}),
	)
}

// finishProgress closes out the bar: filled on success, frozen where it
// stopped otherwise.
func finishProgress(bar *progressbar.ProgressBar, complete bool) {
	if bar == nil {
		return
	}
	if complete {
		_ = bar.Finish()
	} else {
		_ = bar.Exit()
	}
	fmt.Fprintln(os.Stderr)
}
