// Package services defines shared utilities consumed by the job pipeline and
// the external tool clients under it.
//
// Key responsibilities:
//   - Structured error markers plus the Wrap helper that tag failures for
//     classification (validation vs tool failure vs cancellation).
//   - The default summary mapping used when a failure crosses the sidecar
//     protocol without a more specific message.
//
// Subpackages hold the clients for the external binaries squish drives.
package services
