// Package util provides formatting helpers for updateflow log lines.
//
// Key components:
//   - FormatDuration: Renders a duration as "1 hour, 2 minutes, 3 seconds".
//   - FormatBytes: Renders a byte count with a binary unit.
//   - FormatProgress: Renders download progress.
//
// Usage example:
//
//	log.Info("Next resume in " + util.FormatDuration(time.Until(next)))
package util
