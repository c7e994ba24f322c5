// Package config loads, normalizes, and validates Squish configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob the
// sidecar and CLI need, so work directories, tool binaries, and encoding
// defaults are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical codec names, and clear validation errors.
package config
