// Package segment defines data structures for fetched media segments.
package segment

// Segment represents a single byte-range chunk of a media track.
type Segment struct {
	// Index is the position in the manifest's segment list.
	// It fixes both the concatenation order and the on-disk filename.
	Index int

	// URL is the segment location relative to the track's base URL
	URL string

	// Duration is the segment duration in seconds, zero when the manifest omits it
	Duration float64
}
