package main

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// newProgressBar renders bundlerOptions.verbose per-module progress (spec
// §6.1), grounded on vjache-cie's use of schollz/progressbar/v3 for its
// own long-running scans. When verbose is off, the bar writes nowhere.
func newProgressBar(total int, verbose bool) *progressbar.ProgressBar {
	if !verbose {
		return progressbar.NewOptions(total, progressbar.OptionSetWriter(io.Discard))
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("bundling"),
		progressbar.OptionShowCount(),
	)
}
