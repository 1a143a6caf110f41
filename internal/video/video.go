// Package video defines the caller-supplied description of one requested output.
package video

import (
	"fmt"
	"strings"
)

// Request asks for one combined output file.
type Request struct {
	// Name is the output stem, e.g. "a320" produces combined/a320.mp4
	Name string `json:"name"`

	// SourceRef is either a public video URL or a direct master manifest URL
	SourceRef string `json:"url"`
}

// Validate checks that the request can be used to build output paths.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("video name is required")
	}
	if r.Name == "." || r.Name == ".." {
		return fmt.Errorf("invalid video name %q", r.Name)
	}
	if strings.ContainsAny(r.Name, "/\\\x00") {
		return fmt.Errorf("video name %q must not contain path separators", r.Name)
	}
	if strings.TrimSpace(r.SourceRef) == "" {
		return fmt.Errorf("video %q: url is required", r.Name)
	}
	return nil
}
