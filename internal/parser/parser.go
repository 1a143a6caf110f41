// Package parser resolves video references into track manifests.
package parser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/agleyzer/dashfetch/internal/failure"
	"github.com/agleyzer/dashfetch/internal/segment"
	"github.com/agleyzer/dashfetch/internal/track"
)

const (
	// DefaultPlayerURL is the host serving per-video player configs.
	DefaultPlayerURL = "https://player.vimeo.com"

	publicPrefix = "https://vimeo.com/"
	fallbackCDN  = "akfire_interconnect_quic"
)

// Manifest contains the resolved tracks of one video.
type Manifest struct {
	// URL is the master manifest location the tracks were resolved against
	URL string

	Audio []track.Track
	Video []track.Track
}

// Lowest returns the cheapest audio and video tracks.
func (m *Manifest) Lowest() (audio, video track.Track, err error) {
	if audio, err = track.Lowest(m.Audio); err != nil {
		return track.Track{}, track.Track{}, fmt.Errorf("audio: %w", err)
	}
	if video, err = track.Lowest(m.Video); err != nil {
		return track.Track{}, track.Track{}, fmt.Errorf("video: %w", err)
	}
	return audio, video, nil
}

// Resolver fetches and parses master manifests.
type Resolver struct {
	client    *http.Client
	playerURL string
}

// NewResolver creates a Resolver. A nil client gets a 30 second timeout;
// an empty playerURL uses DefaultPlayerURL.
func NewResolver(client *http.Client, playerURL string) *Resolver {
	if client == nil {
		client = &http.Client{
			Timeout: 30 * time.Second,
		}
	}
	if playerURL == "" {
		playerURL = DefaultPlayerURL
	}
	return &Resolver{
		client:    client,
		playerURL: strings.TrimSuffix(playerURL, "/"),
	}
}

// IsPublicVideo reports whether ref is a public page URL rather than a manifest URL.
func IsPublicVideo(ref string) bool {
	return strings.HasPrefix(ref, publicPrefix)
}

// Resolve turns a source reference into a Manifest.
// All errors are resolution failures.
func (r *Resolver) Resolve(ctx context.Context, sourceRef string) (*Manifest, error) {
	masterURL := sourceRef
	if IsPublicVideo(sourceRef) {
		u, err := r.masterURLForPublicVideo(ctx, sourceRef)
		if err != nil {
			return nil, failure.Resolution(sourceRef, err)
		}
		masterURL = u
	}

	body, err := r.get(ctx, masterURL)
	if err != nil {
		return nil, failure.Resolution(masterURL, fmt.Errorf("failed to fetch manifest: %w", err))
	}

	m, err := ParseMaster(body, masterURL)
	if err != nil {
		return nil, failure.Resolution(masterURL, err)
	}
	return m, nil
}

// playerConfig is the subset of the player config document we read.
type playerConfig struct {
	Request struct {
		Files struct {
			Dash struct {
				DefaultCDN string `json:"default_cdn"`
				CDNs       map[string]struct {
					URL string `json:"url"`
				} `json:"cdns"`
			} `json:"dash"`
		} `json:"files"`
	} `json:"request"`
}

// masterURLForPublicVideo looks up the master manifest URL of
// https://vimeo.com/<id>[/<hash>] through the player config endpoint.
func (r *Resolver) masterURLForPublicVideo(ctx context.Context, publicURL string) (string, error) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(publicURL, publicPrefix), "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return "", fmt.Errorf("no video id in %q", publicURL)
	}

	configURL := fmt.Sprintf("%s/video/%s/config", r.playerURL, url.PathEscape(parts[0]))
	if len(parts) > 1 && parts[1] != "" {
		configURL += "?h=" + url.QueryEscape(parts[1])
	}

	body, err := r.get(ctx, configURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch player config: %w", err)
	}

	var cfg playerConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		return "", fmt.Errorf("failed to parse player config: %w", err)
	}

	dash := cfg.Request.Files.Dash
	if len(dash.CDNs) == 0 {
		return "", fmt.Errorf("player config lists no dash cdns")
	}

	for _, name := range []string{dash.DefaultCDN, fallbackCDN} {
		if cdn, ok := dash.CDNs[name]; ok && cdn.URL != "" {
			return cdn.URL, nil
		}
	}

	names := make([]string, 0, len(dash.CDNs))
	for name := range dash.CDNs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if u := dash.CDNs[name].URL; u != "" {
			return u, nil
		}
	}
	return "", fmt.Errorf("player config lists no usable dash cdn")
}

type masterDoc struct {
	BaseURL string     `json:"base_url"`
	Video   []trackDoc `json:"video"`
	Audio   []trackDoc `json:"audio"`
}

type trackDoc struct {
	BaseURL     string       `json:"base_url"`
	AvgBitrate  int64        `json:"avg_bitrate"`
	InitSegment string       `json:"init_segment"`
	Segments    []segmentDoc `json:"segments"`
}

type segmentDoc struct {
	URL   string  `json:"url"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// ParseMaster parses a master manifest fetched from masterURL.
func ParseMaster(data []byte, masterURL string) (*Manifest, error) {
	var doc masterDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if len(doc.Video) == 0 {
		return nil, fmt.Errorf("manifest contains no video tracks")
	}
	if len(doc.Audio) == 0 {
		return nil, fmt.Errorf("manifest contains no audio tracks")
	}

	base, err := resolveURL(masterURL, doc.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base URL: %w", err)
	}

	m := &Manifest{URL: masterURL}

	for i, td := range doc.Video {
		t, err := buildTrack(track.Video, base, td)
		if err != nil {
			return nil, fmt.Errorf("video track %d: %w", i, err)
		}
		m.Video = append(m.Video, t)
	}

	for i, td := range doc.Audio {
		t, err := buildTrack(track.Audio, base, td)
		if err != nil {
			return nil, fmt.Errorf("audio track %d: %w", i, err)
		}
		m.Audio = append(m.Audio, t)
	}

	return m, nil
}

func buildTrack(kind track.Kind, base string, td trackDoc) (track.Track, error) {
	baseURL, err := resolveURL(base, td.BaseURL)
	if err != nil {
		return track.Track{}, fmt.Errorf("failed to resolve track base URL: %w", err)
	}

	initData, err := base64.StdEncoding.DecodeString(td.InitSegment)
	if err != nil {
		return track.Track{}, fmt.Errorf("failed to decode init segment: %w", err)
	}

	segments := make([]segment.Segment, 0, len(td.Segments))
	for i, sd := range td.Segments {
		duration := 0.0
		if sd.End > sd.Start {
			duration = sd.End - sd.Start
		}
		segments = append(segments, segment.Segment{
			Index:    i,
			URL:      sd.URL,
			Duration: duration,
		})
	}

	return track.Track{
		Kind:     kind,
		BaseURL:  baseURL,
		InitData: initData,
		Bitrate:  td.AvgBitrate,
		Segments: segments,
	}, nil
}

func (r *Resolver) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// resolveURL resolves a possibly relative URL against a base URL.
func resolveURL(baseURL, relativeURL string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	rel, err := url.Parse(relativeURL)
	if err != nil {
		return "", fmt.Errorf("invalid relative URL: %w", err)
	}

	// Resolve the relative URL against the base
	resolved := base.ResolveReference(rel)
	return resolved.String(), nil
}
