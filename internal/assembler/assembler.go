// Package assembler builds one track file from its init blob and segments.
package assembler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/agleyzer/dashfetch/internal/artifact"
	"github.com/agleyzer/dashfetch/internal/failure"
	"github.com/agleyzer/dashfetch/internal/governor"
	"github.com/agleyzer/dashfetch/internal/metrics"
	"github.com/agleyzer/dashfetch/internal/scheduler"
	"github.com/agleyzer/dashfetch/internal/segment"
	"github.com/agleyzer/dashfetch/internal/track"
)

// SegmentFetcher downloads one segment to its finalized path.
type SegmentFetcher interface {
	FetchSegment(ctx context.Context, url, trackFile string, index, total int) error
}

// Assembler fetches a track's segments and concatenates them in order.
type Assembler struct {
	fetcher SegmentFetcher
	gov     *governor.Governor
	layout  artifact.Layout
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates an Assembler.
func New(fetcher SegmentFetcher, gov *governor.Governor, layout artifact.Layout, m *metrics.Metrics, logger *slog.Logger) *Assembler {
	return &Assembler{
		fetcher: fetcher,
		gov:     gov,
		layout:  layout,
		metrics: m,
		logger:  logger,
	}
}

// AssembleTrack produces parts/<trackFile> and returns its path.
// An existing finalized track is returned as-is. A failed segment fetch
// aborts before anything is combined.
func (a *Assembler) AssembleTrack(ctx context.Context, t track.Track, trackFile string) (string, error) {
	art := a.layout.Track(trackFile)

	if art.Finalized() {
		a.logger.Info("track already exists, skipping", "path", art.Final)
		a.metrics.IncSkipped("track")
		return art.Final, nil
	}

	total := len(t.Segments)
	jobs := make([]scheduler.Job, 0, total)
	for _, seg := range t.Segments {
		url := t.SegmentURL(seg)
		jobs = append(jobs, func() error {
			return a.fetcher.FetchSegment(ctx, url, trackFile, seg.Index, total)
		})
	}

	// The network permit is the real bound, one worker per segment is safe.
	if err := scheduler.RunParallel(jobs, total); err != nil {
		return "", fmt.Errorf("fetch %s segments for %s: %w", t.Kind, trackFile, err)
	}

	err := a.gov.Do(ctx, governor.HeavyIO, func() error {
		a.logger.Info("combining segments", "track", trackFile, "kind", t.Kind.String(), "segments", total)
		return a.combine(art, t.InitData, trackFile, t.Segments)
	})
	if err != nil {
		a.metrics.IncFailures("assemble")
		return "", err
	}

	a.cleanup(trackFile, t.Segments)
	a.metrics.IncTracksAssembled()

	return art.Final, nil
}

// combine writes initData followed by every segment file in slice order.
func (a *Assembler) combine(art artifact.Artifact, initData []byte, trackFile string, segments []segment.Segment) error {
	w, err := art.Begin()
	if err != nil {
		return failure.Assembly(art.Pending, err)
	}

	if _, err := w.Write(initData); err != nil {
		w.Close()
		return failure.Assembly(art.Pending, fmt.Errorf("write init data: %w", err))
	}

	for _, seg := range segments {
		path := a.layout.Segment(trackFile, seg.Index).Final
		if err := appendFile(w, path); err != nil {
			w.Close()
			return failure.Assembly(path, err)
		}
	}

	if err := w.Commit(); err != nil {
		return failure.Assembly(art.Final, err)
	}
	return nil
}

// cleanup removes segment files that have been folded into the track.
func (a *Assembler) cleanup(trackFile string, segments []segment.Segment) {
	for _, seg := range segments {
		if err := a.layout.Segment(trackFile, seg.Index).Remove(); err != nil {
			a.logger.Warn("failed to remove segment", "error", err)
		}
	}
}

func appendFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open segment: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("copy segment: %w", err)
	}
	return nil
}
