package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/agleyzer/dashfetch/internal/artifact"
	"github.com/agleyzer/dashfetch/internal/failure"
	"github.com/agleyzer/dashfetch/internal/playlist"
	"github.com/agleyzer/dashfetch/internal/scheduler"
	"github.com/agleyzer/dashfetch/internal/track"
	"github.com/agleyzer/dashfetch/internal/video"
)

// Plan resolves every request and writes, per selected track, an HLS media
// playlist and its init blob under plans/. Nothing is downloaded.
func (o *Orchestrator) Plan(ctx context.Context, reqs []video.Request) error {
	jobs := make([]scheduler.Job, 0, len(reqs))
	for _, req := range reqs {
		jobs = append(jobs, func() error {
			if err := o.planVideo(ctx, req); err != nil {
				o.logFailure(req, err)
				return fmt.Errorf("video %q: %w", req.Name, err)
			}
			return nil
		})
	}
	return scheduler.RunSequential(jobs)
}

func (o *Orchestrator) planVideo(ctx context.Context, req video.Request) error {
	m, err := o.resolver.Resolve(ctx, req.SourceRef)
	if err != nil {
		return err
	}

	audio, vid, err := m.Lowest()
	if err != nil {
		return failure.Resolution(m.URL, err)
	}

	for _, t := range []track.Track{vid, audio} {
		if err := o.writePlan(t, t.Filename(req.Name)); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) writePlan(t track.Track, trackFile string) error {
	playlistArt, initArt := o.layout.Plan(trackFile)

	content, err := playlist.Encode(t, filepath.Base(initArt.Final))
	if err != nil {
		return err
	}

	if err := writeArtifact(initArt, t.InitData); err != nil {
		return err
	}
	if err := writeArtifact(playlistArt, []byte(content)); err != nil {
		return err
	}

	o.logger.Info("wrote plan",
		"path", playlistArt.Final,
		"kind", t.Kind.String(),
		"bitrate", t.Bitrate,
		"segments", len(t.Segments),
	)
	return nil
}

// writeArtifact leaves an already finalized artifact untouched.
func writeArtifact(a artifact.Artifact, data []byte) error {
	if a.Finalized() {
		return nil
	}

	w, err := a.Begin()
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write %s: %w", a.Pending, err)
	}
	return w.Commit()
}
