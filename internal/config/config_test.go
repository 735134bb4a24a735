package config

import (
	"strings"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
)

const sample = `
key: s3cret
port: 9000
capture_cache_expire: 0
hls_target_chunks: 5
cameras:
  - id: gate
    rtsp_uri: rtsp://10.0.0.5:554/stream1
    name: Gate
    transport_tcp: true
  - rtsp_uri: rtsp://10.0.0.6/live
    name: Yard
`

func TestParse(t *testing.T) {
	t.Run("overlays file on defaults", func(t *testing.T) {
		cfg, err := Parse(strings.NewReader(sample))
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if cfg.Key != "s3cret" || cfg.Port != 9000 || cfg.HLSTargetChunks != 5 {
			t.Errorf("file values not applied: %s", spew.Sdump(cfg))
		}
		if cfg.CaptureCacheExpire() != 0 {
			t.Errorf("CaptureCacheExpire = %v, want 0", cfg.CaptureCacheExpire())
		}
		if cfg.HLSNoCanary() != 60*time.Second || cfg.RTSPTimeout() != 5*time.Second {
			t.Errorf("defaults not kept: canary=%v rtsp=%v", cfg.HLSNoCanary(), cfg.RTSPTimeout())
		}
		if cfg.UsesDefaultKey() {
			t.Error("UsesDefaultKey = true for custom key")
		}
	})

	t.Run("assigns ids to cameras without one", func(t *testing.T) {
		cfg, err := Parse(strings.NewReader(sample))
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if len(cfg.GeneratedIDs) != 1 {
			t.Fatalf("GeneratedIDs = %v, want one", cfg.GeneratedIDs)
		}
		if cfg.Cameras[1].ID != cfg.GeneratedIDs[0] || cfg.Cameras[1].ID == "" {
			t.Errorf("camera id not assigned: %s", spew.Sdump(cfg.Cameras))
		}
	})

	t.Run("empty file yields defaults", func(t *testing.T) {
		cfg, err := Parse(strings.NewReader(""))
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if !cfg.UsesDefaultKey() || cfg.Port != 8000 {
			t.Errorf("unexpected defaults: %s", spew.Sdump(cfg))
		}
	})

	t.Run("rejects unknown keys", func(t *testing.T) {
		if _, err := Parse(strings.NewReader("kee: typo\n")); err == nil {
			t.Fatal("expected error for unknown key")
		}
	})

	t.Run("rejects duplicate camera ids", func(t *testing.T) {
		in := "cameras:\n  - {id: a, rtsp_uri: 'rtsp://h/1'}\n  - {id: a, rtsp_uri: 'rtsp://h/2'}\n"
		if _, err := Parse(strings.NewReader(in)); err == nil {
			t.Fatal("expected duplicate id error")
		}
	})

	t.Run("https requires cert material", func(t *testing.T) {
		if _, err := Parse(strings.NewReader("https_mode_on: true\n")); err == nil {
			t.Fatal("expected error without cert_file/key_file")
		}
	})
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvKey, "from-env")
	t.Setenv(EnvPort, "8443")
	t.Setenv(EnvFFmpegBin, "/opt/ffmpeg/bin/ffmpeg")

	cfg, err := Parse(strings.NewReader("key: from-file\nport: 9000\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Key != "from-env" || cfg.Port != 8443 || cfg.FFmpegBin != "/opt/ffmpeg/bin/ffmpeg" {
		t.Errorf("env overrides not applied: %s", spew.Sdump(cfg))
	}
}

func TestWorkDirs(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/srv/rtsplive"
	want := []string{"/srv/rtsplive/stream", "/srv/rtsplive/capture"}
	got := cfg.WorkDirs()
	if len(got) != len(want) {
		t.Fatalf("WorkDirs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("WorkDirs()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPublicURL(t *testing.T) {
	cfg := Default()
	cfg.Hostname = "cams.example.com"
	cfg.Port = 8443
	cfg.HTTPSModeOn = true
	if got := cfg.PublicURL(); got != "https://cams.example.com:8443" {
		t.Errorf("PublicURL() = %q", got)
	}

	cfg.Hostname = "[::1]"
	cfg.HTTPSModeOn = false
	cfg.Port = 8000
	if got := cfg.PublicURL(); got != "http://[::1]:8000" {
		t.Errorf("PublicURL() = %q", got)
	}
}
