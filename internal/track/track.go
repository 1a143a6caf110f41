// Package track defines data structures for the audio and video streams of a manifest.
package track

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/agleyzer/dashfetch/internal/segment"
)

// Kind identifies which stream a track carries.
type Kind int

const (
	// Audio is an audio-only stream.
	Audio Kind = iota
	// Video is a video-only stream.
	Video
)

func (k Kind) String() string {
	switch k {
	case Audio:
		return "audio"
	case Video:
		return "video"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Extension returns the file extension used for an assembled track of this kind.
func (k Kind) Extension() string {
	if k == Audio {
		return ".m4a"
	}
	return ".m4v"
}

// Track represents one logical stream assembled from an init blob plus ordered segments.
type Track struct {
	// Kind is the stream type
	Kind Kind

	// BaseURL is the absolute URL segment URLs are appended to
	BaseURL string

	// InitData is the decoded initialization segment, written before any media segment
	InitData []byte

	// Bitrate is the average bitrate in bits per second
	Bitrate int64

	// Segments are in manifest order
	Segments []segment.Segment
}

// Filename returns the per-track filename for an output stem.
func (t Track) Filename(name string) string {
	return name + t.Kind.Extension()
}

// SegmentURL returns the absolute URL of seg.
func (t Track) SegmentURL(seg segment.Segment) string {
	return t.BaseURL + seg.URL
}

// Lowest returns the track with the smallest bitrate.
// Ties go to the track that appears first.
func Lowest(tracks []Track) (Track, error) {
	if len(tracks) == 0 {
		return Track{}, fmt.Errorf("no tracks to choose from")
	}

	sorted := slices.Clone(tracks)
	slices.SortStableFunc(sorted, func(a, b Track) int {
		return cmp.Compare(a.Bitrate, b.Bitrate)
	})

	return sorted[0], nil
}
