// Package fetcher downloads individual media segments to disk.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/agleyzer/dashfetch/internal/artifact"
	"github.com/agleyzer/dashfetch/internal/failure"
	"github.com/agleyzer/dashfetch/internal/governor"
	"github.com/agleyzer/dashfetch/internal/metrics"
)

// DefaultTimeout bounds a single segment request.
const DefaultTimeout = 2 * time.Minute

// Fetcher downloads segments into the layout's segments directory.
type Fetcher struct {
	client  *http.Client
	gov     *governor.Governor
	layout  artifact.Layout
	metrics *metrics.Metrics
	logger  *slog.Logger
	timeout time.Duration
}

// New creates a Fetcher. A nil client uses http.DefaultClient;
// a non-positive timeout uses DefaultTimeout.
func New(client *http.Client, gov *governor.Governor, layout artifact.Layout, m *metrics.Metrics, timeout time.Duration, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		client:  client,
		gov:     gov,
		layout:  layout,
		metrics: m,
		logger:  logger,
		timeout: timeout,
	}
}

// FetchSegment downloads url into the finalized segment file for (trackFile, index).
// It is a no-op when that file already exists. On failure the pending file is
// left on disk; the next call discards it and starts over.
func (f *Fetcher) FetchSegment(ctx context.Context, url, trackFile string, index, total int) error {
	art := f.layout.Segment(trackFile, index)

	if art.Finalized() {
		f.logger.Debug("segment already exists, skipping", "path", art.Final)
		f.metrics.IncSegmentsSkipped()
		return nil
	}

	// Opened while holding the network permit so that "open for write"
	// never exceeds the permit's capacity.
	var w *artifact.Writer
	err := f.gov.Do(ctx, governor.Network, func() error {
		var err error
		w, err = art.Begin()
		if err != nil {
			return err
		}

		f.logger.Info("downloading segment",
			"path", art.Final,
			"segment", fmt.Sprintf("%d/%d", index+1, total),
		)

		if err := f.download(ctx, url, w); err != nil {
			w.Close()
			return err
		}
		return w.Close()
	})
	if err != nil {
		f.metrics.IncFailures("fetch")
		return failure.Fetch(index, url, art.Pending, err)
	}

	if err := art.Commit(); err != nil {
		f.metrics.IncFailures("fetch")
		return failure.Fetch(index, url, art.Final, err)
	}

	f.metrics.IncSegmentsFetched(w.Written())
	return nil
}

func (f *Fetcher) download(ctx context.Context, url string, w io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch segment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("failed to fetch segment: HTTP %d", resp.StatusCode)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("write segment: %w", err)
	}
	return nil
}
