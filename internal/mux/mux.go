// Package mux combines an audio and a video track into one container.
package mux

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/hashicorp/go-hclog"
)

// DefaultFFmpegPath is looked up on PATH.
const DefaultFFmpegPath = "ffmpeg"

// Muxer stream-copies two finished inputs into output.
type Muxer interface {
	Mux(ctx context.Context, videoPath, audioPath, outputPath string) error
}

// FFmpeg runs the ffmpeg binary as the muxer.
type FFmpeg struct {
	path   string
	logger hclog.Logger
}

// NewFFmpeg creates an FFmpeg muxer. An empty path uses DefaultFFmpegPath;
// a nil logger discards ffmpeg's output.
func NewFFmpeg(path string, logger hclog.Logger) *FFmpeg {
	if path == "" {
		path = DefaultFFmpegPath
	}
	if logger == nil {
		logger = newNoOpHCLogger()
	}
	return &FFmpeg{path: path, logger: logger}
}

// Args returns the ffmpeg arguments for one mux.
func Args(videoPath, audioPath, outputPath string) []string {
	return []string{
		"-y",
		"-loglevel", "error",
		"-i", videoPath,
		"-i", audioPath,
		"-c", "copy",
		outputPath,
	}
}

// Mux runs ffmpeg and waits for it. A non-zero exit is an error.
func (f *FFmpeg) Mux(ctx context.Context, videoPath, audioPath, outputPath string) error {
	cmd := exec.CommandContext(ctx, f.path, Args(videoPath, audioPath, outputPath)...)

	// ffmpeg only writes to stderr at -loglevel error, so every line is an error.
	cmd.Stderr = f.logger.StandardWriter(&hclog.StandardLoggerOptions{
		ForceLevel: hclog.Error,
	})

	f.logger.Debug("running", "command", cmd.String())

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", f.path, err)
	}
	return nil
}
