// Package orchestrator drives one or more videos through resolve, assemble and mux.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/agleyzer/dashfetch/internal/artifact"
	"github.com/agleyzer/dashfetch/internal/failure"
	"github.com/agleyzer/dashfetch/internal/governor"
	"github.com/agleyzer/dashfetch/internal/metrics"
	"github.com/agleyzer/dashfetch/internal/mux"
	"github.com/agleyzer/dashfetch/internal/parser"
	"github.com/agleyzer/dashfetch/internal/scheduler"
	"github.com/agleyzer/dashfetch/internal/track"
	"github.com/agleyzer/dashfetch/internal/video"
)

// DefaultVideoWorkers is the top-level fan-out when none is configured.
const DefaultVideoWorkers = 10

// Resolver turns a source reference into a manifest.
type Resolver interface {
	Resolve(ctx context.Context, sourceRef string) (*parser.Manifest, error)
}

// TrackAssembler produces the finalized file for one track.
type TrackAssembler interface {
	AssembleTrack(ctx context.Context, t track.Track, trackFile string) (string, error)
}

// Orchestrator processes videos end to end.
type Orchestrator struct {
	resolver  Resolver
	assembler TrackAssembler
	muxer     mux.Muxer
	gov       *governor.Governor
	layout    artifact.Layout
	metrics   *metrics.Metrics
	logger    *slog.Logger

	completed atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
}

// New creates an Orchestrator.
func New(resolver Resolver, assembler TrackAssembler, muxer mux.Muxer, gov *governor.Governor, layout artifact.Layout, m *metrics.Metrics, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		resolver:  resolver,
		assembler: assembler,
		muxer:     muxer,
		gov:       gov,
		layout:    layout,
		metrics:   m,
		logger:    logger,
	}
}

// Run processes every request on a pool of workers. One video's failure
// does not stop the others; the returned error lists every failed video.
func (o *Orchestrator) Run(ctx context.Context, reqs []video.Request, workers int) error {
	if workers <= 0 {
		workers = DefaultVideoWorkers
	}

	jobs := make([]scheduler.Job, 0, len(reqs))
	for _, req := range reqs {
		jobs = append(jobs, func() error {
			if err := o.ProcessVideo(ctx, req); err != nil {
				o.failed.Add(1)
				o.logFailure(req, err)
				return fmt.Errorf("video %q: %w", req.Name, err)
			}
			return nil
		})
	}

	return scheduler.RunParallel(jobs, workers)
}

// ProcessVideo produces combined/<name>.mp4 for req. An existing output is
// left untouched. If muxing fails the track files are kept so a re-run
// only repeats the mux.
func (o *Orchestrator) ProcessVideo(ctx context.Context, req video.Request) error {
	combined := o.layout.Combined(req.Name)

	if combined.Finalized() {
		o.logger.Info("video already exists, skipping", "path", combined.Final)
		o.skipped.Add(1)
		o.metrics.IncSkipped("video")
		return nil
	}

	o.logger.Info("starting video", "name", req.Name)

	m, err := o.resolver.Resolve(ctx, req.SourceRef)
	if err != nil {
		o.metrics.IncFailures("resolve")
		return err
	}

	audio, vid, err := m.Lowest()
	if err != nil {
		o.metrics.IncFailures("resolve")
		return failure.Resolution(m.URL, err)
	}

	o.logger.Debug("selected tracks",
		"name", req.Name,
		"video_bitrate", vid.Bitrate,
		"video_segments", len(vid.Segments),
		"audio_bitrate", audio.Bitrate,
		"audio_segments", len(audio.Segments),
	)

	var videoPath, audioPath string
	err = scheduler.RunParallel([]scheduler.Job{
		func() (err error) {
			videoPath, err = o.assembler.AssembleTrack(ctx, vid, vid.Filename(req.Name))
			return err
		},
		func() (err error) {
			audioPath, err = o.assembler.AssembleTrack(ctx, audio, audio.Filename(req.Name))
			return err
		},
	}, 2)
	if err != nil {
		return fmt.Errorf("assemble tracks: %w", err)
	}

	err = o.gov.Do(ctx, governor.HeavyIO, func() error {
		if err := combined.ClearPending(); err != nil {
			return failure.Mux(combined.Pending, err)
		}

		o.logger.Info("combining video and audio", "path", combined.Final)

		if err := o.muxer.Mux(ctx, videoPath, audioPath, combined.Pending); err != nil {
			return failure.Mux(combined.Pending, err)
		}
		if err := combined.Commit(); err != nil {
			return failure.Mux(combined.Final, err)
		}
		return nil
	})
	if err != nil {
		o.metrics.IncFailures("mux")
		return err
	}

	for _, p := range []string{videoPath, audioPath} {
		if err := (artifact.Artifact{Final: p}).Remove(); err != nil {
			o.logger.Warn("failed to remove track", "error", err)
		}
	}

	o.completed.Add(1)
	o.metrics.IncVideosCompleted()
	o.logger.Info("completed video", "path", combined.Final)

	return nil
}

// Stats returns progress counters and permit occupancy.
func (o *Orchestrator) Stats() map[string]interface{} {
	return map[string]interface{}{
		"videos_completed":  o.completed.Load(),
		"videos_skipped":    o.skipped.Load(),
		"videos_failed":     o.failed.Load(),
		"network_permits":   o.gov.InUse(governor.Network),
		"network_capacity":  o.gov.Capacity(governor.Network),
		"heavy_io_permits":  o.gov.InUse(governor.HeavyIO),
		"heavy_io_capacity": o.gov.Capacity(governor.HeavyIO),
	}
}

func (o *Orchestrator) logFailure(req video.Request, err error) {
	attrs := []any{
		"name", req.Name,
		"stage", failure.Stage(err),
		"error", err,
	}

	var fe *failure.Error
	if errors.As(err, &fe) {
		if fe.URL != "" {
			attrs = append(attrs, "url", fe.URL)
		}
		if fe.Path != "" {
			attrs = append(attrs, "path", fe.Path)
		}
	}

	o.logger.Error("video failed", attrs...)
}
