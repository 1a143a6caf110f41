package mux

import (
	"io"

	"github.com/hashicorp/go-hclog"
)

// newNoOpHCLogger creates a no-op hclog.Logger that discards ffmpeg output.
func newNoOpHCLogger() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "ffmpeg",
		Level:  hclog.Off,
		Output: io.Discard,
	})
}

// NewHCLogger creates an hclog.Logger for ffmpeg output that writes to w.
// w should be the process's shared log writer.
func NewHCLogger(w io.Writer, level hclog.Level) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "ffmpeg",
		Level:  level,
		Output: w,
	})
}
