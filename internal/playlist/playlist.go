// Package playlist renders resolved tracks as HLS VOD media playlists.
//
// The playlists are a dry-run plan: they list every segment a download
// would fetch, in order, so a plan can be inspected or played with stock
// HLS tooling before any bytes are downloaded.
package playlist

import (
	"fmt"
	"math"

	"github.com/grafov/m3u8"

	"github.com/agleyzer/dashfetch/internal/track"
)

// Encode returns a VOD media playlist for t. initURI is written as the
// EXT-X-MAP so players prepend the init blob.
func Encode(t track.Track, initURI string) (string, error) {
	capacity := uint(len(t.Segments))
	if capacity == 0 {
		capacity = 1
	}

	p, err := m3u8.NewMediaPlaylist(0, capacity)
	if err != nil {
		return "", fmt.Errorf("create playlist: %w", err)
	}
	p.MediaType = m3u8.VOD

	if initURI != "" {
		p.SetDefaultMap(initURI, 0, 0)
	}

	targetDuration := 0.0
	for _, seg := range t.Segments {
		if err := p.Append(t.SegmentURL(seg), seg.Duration, ""); err != nil {
			return "", fmt.Errorf("append segment %d: %w", seg.Index, err)
		}
		targetDuration = math.Max(targetDuration, math.Ceil(seg.Duration))
	}
	p.TargetDuration = targetDuration

	p.Close()

	return p.String(), nil
}
