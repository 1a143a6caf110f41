package artifact

import (
	"fmt"
	"path/filepath"
)

const (
	partialSuffix = ".~partial"

	segmentsDir = "segments"
	partsDir    = "parts"
	combinedDir = "combined"
	plansDir    = "plans"
)

// Layout maps logical artifacts to paths under Root.
type Layout struct {
	Root string
}

// NewLayout returns a Layout rooted at root, or the working directory if root is empty.
func NewLayout(root string) Layout {
	if root == "" {
		root = "."
	}
	return Layout{Root: root}
}

// Segment returns the artifact for segment index of trackFile.
// On-disk numbering starts at 1.
func (l Layout) Segment(trackFile string, index int) Artifact {
	final := filepath.Join(l.Root, segmentsDir, fmt.Sprintf("%s.segment.%d", trackFile, index+1))
	return Artifact{Final: final, Pending: final + partialSuffix}
}

// Track returns the artifact for an assembled track file.
func (l Layout) Track(trackFile string) Artifact {
	final := filepath.Join(l.Root, partsDir, trackFile)
	return Artifact{Final: final, Pending: final + partialSuffix}
}

// Combined returns the artifact for a video's muxed output.
// The pending name keeps an .mp4 extension so the muxer can infer the container.
func (l Layout) Combined(name string) Artifact {
	final := filepath.Join(l.Root, combinedDir, name+".mp4")
	return Artifact{Final: final, Pending: final + partialSuffix + ".mp4"}
}

// Plan returns the artifacts for a track's exported playlist and init blob.
func (l Layout) Plan(trackFile string) (playlist, init Artifact) {
	base := filepath.Join(l.Root, plansDir, trackFile)
	playlist = Artifact{Final: base + ".m3u8", Pending: base + ".m3u8" + partialSuffix}
	init = Artifact{Final: base + ".init", Pending: base + ".init" + partialSuffix}
	return playlist, init
}
