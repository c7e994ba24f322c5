// Package preview produces playable sample encodes and size estimates.
//
// A preview slices a window out of the source by stream copy, encodes just
// that slice with the requested options, and extrapolates the full-file
// size from the compression ratio the slice achieved. Multi-window
// estimates spread several slices across the source for a steadier ratio.
// Confidence reflects how much of the source the samples covered; the
// low/high band widens as confidence drops.
package preview
