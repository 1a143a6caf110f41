package parser

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agleyzer/dashfetch/internal/failure"
)

func masterJSON(initVideo, initAudio string) string {
	return fmt.Sprintf(`{
  "clip_id": "d7e8f4ab",
  "base_url": "../",
  "video": [
    {"id": "v-hi", "base_url": "hi/chop/", "avg_bitrate": 5000000, "init_segment": %[1]q,
     "segments": [{"start": 0, "end": 6, "url": "segment-1.m4s"}]},
    {"id": "v-lo", "base_url": "lo/chop/", "avg_bitrate": 2000000, "init_segment": %[1]q,
     "segments": [{"start": 0, "end": 6, "url": "segment-1.m4s"}, {"start": 6, "end": 10.5, "url": "segment-2.m4s"}]},
    {"id": "v-max", "base_url": "max/chop/", "avg_bitrate": 8000000, "init_segment": %[1]q,
     "segments": []}
  ],
  "audio": [
    {"id": "a-hi", "base_url": "../audio/hi/", "avg_bitrate": 128000, "init_segment": %[2]q,
     "segments": [{"url": "segment-1.m4s"}]},
    {"id": "a-lo", "base_url": "../audio/lo/", "avg_bitrate": 64000, "init_segment": %[2]q,
     "segments": [{"url": "segment-1.m4s"}]}
  ]
}`, initVideo, initAudio)
}

func TestParseMaster_SelectsLowestBitrate(t *testing.T) {
	initVideo := base64.StdEncoding.EncodeToString([]byte("video-init"))
	initAudio := base64.StdEncoding.EncodeToString([]byte("audio-init"))

	m, err := ParseMaster([]byte(masterJSON(initVideo, initAudio)), "https://cdn.example.com/exp/sep/video/master.json?base64_init=1")
	if err != nil {
		t.Fatalf("ParseMaster: %v", err)
	}

	audio, video, err := m.Lowest()
	if err != nil {
		t.Fatalf("Lowest: %v", err)
	}

	if audio.Bitrate != 64000 {
		t.Errorf("audio bitrate = %d, want 64000", audio.Bitrate)
	}
	if video.Bitrate != 2000000 {
		t.Errorf("video bitrate = %d, want 2000000", video.Bitrate)
	}

	if video.BaseURL != "https://cdn.example.com/exp/sep/lo/chop/" {
		t.Errorf("video base URL = %q", video.BaseURL)
	}
	if audio.BaseURL != "https://cdn.example.com/exp/audio/lo/" {
		t.Errorf("audio base URL = %q", audio.BaseURL)
	}

	if string(video.InitData) != "video-init" || string(audio.InitData) != "audio-init" {
		t.Errorf("init data = %q / %q", video.InitData, audio.InitData)
	}

	if len(video.Segments) != 2 {
		t.Fatalf("video segments = %d, want 2", len(video.Segments))
	}
	if video.Segments[1].Index != 1 || video.Segments[1].URL != "segment-2.m4s" {
		t.Errorf("second segment = %+v", video.Segments[1])
	}
	if video.Segments[1].Duration != 4.5 {
		t.Errorf("second segment duration = %v, want 4.5", video.Segments[1].Duration)
	}
	if got := video.SegmentURL(video.Segments[0]); got != "https://cdn.example.com/exp/sep/lo/chop/segment-1.m4s" {
		t.Errorf("segment URL = %q", got)
	}
}

func TestParseMaster_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{not json`},
		{"no video", `{"base_url": "", "video": [], "audio": [{"avg_bitrate": 1}]}`},
		{"no audio", `{"base_url": "", "video": [{"avg_bitrate": 1}], "audio": []}`},
		{"bad init segment", `{"base_url": "", "video": [{"init_segment": "!!!"}], "audio": [{}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseMaster([]byte(tt.body), "https://cdn.example.com/master.json"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestIsPublicVideo(t *testing.T) {
	tests := map[string]bool{
		"https://vimeo.com/30630299":             true,
		"https://vimeo.com/411486465/35bfe05a6f": true,
		"https://cdn.example.com/master.json":    false,
		"http://vimeo.com/30630299":              false,
	}

	for ref, want := range tests {
		if got := IsPublicVideo(ref); got != want {
			t.Errorf("IsPublicVideo(%q) = %v, want %v", ref, got, want)
		}
	}
}

func TestResolve_DirectManifest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(masterJSON("", "")))
	}))
	defer server.Close()

	m, err := NewResolver(server.Client(), "").Resolve(context.Background(), server.URL+"/exp/sep/video/master.json")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(m.Video) != 3 || len(m.Audio) != 2 {
		t.Errorf("tracks = %d video, %d audio", len(m.Video), len(m.Audio))
	}
	if m.Video[0].BaseURL != server.URL+"/exp/sep/hi/chop/" {
		t.Errorf("video base URL = %q", m.Video[0].BaseURL)
	}
}

func TestResolve_PublicVideo(t *testing.T) {
	var configQuery string
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/video/411486465/config", func(w http.ResponseWriter, r *http.Request) {
		configQuery = r.URL.RawQuery
		fmt.Fprintf(w, `{"request": {"files": {"dash": {
			"default_cdn": "fastly",
			"cdns": {
				"akfire_interconnect_quic": {"url": "%[1]s/wrong/master.json"},
				"fastly": {"url": "%[1]s/exp/sep/video/master.json"}
			}}}}}`, server.URL)
	})
	mux.HandleFunc("/exp/sep/video/master.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(masterJSON("", "")))
	})

	m, err := NewResolver(server.Client(), server.URL).Resolve(context.Background(), "https://vimeo.com/411486465/35bfe05a6f")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if configQuery != "h=35bfe05a6f" {
		t.Errorf("config query = %q, want h=35bfe05a6f", configQuery)
	}
	if m.URL != server.URL+"/exp/sep/video/master.json" {
		t.Errorf("manifest URL = %q", m.URL)
	}
}

func TestResolve_PublicVideoFallsBackToKnownCDN(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/video/30630299/config", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"request": {"files": {"dash": {"cdns": {
			"other": {"url": "%[1]s/wrong/master.json"},
			"akfire_interconnect_quic": {"url": "%[1]s/right/master.json"}
		}}}}}`, server.URL)
	})
	mux.HandleFunc("/right/master.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(masterJSON("", "")))
	})

	if _, err := NewResolver(server.Client(), server.URL).Resolve(context.Background(), "https://vimeo.com/30630299"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
}

func TestResolve_HTTPErrorIsResolutionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	_, err := NewResolver(server.Client(), "").Resolve(context.Background(), server.URL+"/master.json")
	if !errors.Is(err, failure.ErrResolution) {
		t.Fatalf("error = %v, want resolution failure", err)
	}
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		base, rel, want string
	}{
		{"https://a.example/x/y/master.json?q=1", "../", "https://a.example/x/"},
		{"https://a.example/x/", "video/", "https://a.example/x/video/"},
		{"https://a.example/x/", "https://b.example/z/", "https://b.example/z/"},
	}

	for _, tt := range tests {
		got, err := resolveURL(tt.base, tt.rel)
		if err != nil {
			t.Errorf("resolveURL(%q, %q): %v", tt.base, tt.rel, err)
			continue
		}
		if got != tt.want {
			t.Errorf("resolveURL(%q, %q) = %q, want %q", tt.base, tt.rel, got, tt.want)
		}
	}
}
