package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/edirooss/rtsplive-server/internal/domain/camera"
	"github.com/edirooss/rtsplive-server/pkg/hostutil"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// DefaultKey ships in the sample configuration. Servers still using it are
// warned about at startup.
const DefaultKey = "78Hj967sdrF481"

// Config mirrors rtsplive-server.yaml. Time-valued settings are stored in the
// units operators write them in (seconds, rtsp_timeout in microseconds) and
// exposed as time.Duration through accessor methods.
type Config struct {
	Key      string `yaml:"key"`
	Port     int    `yaml:"port"`
	Hostname string `yaml:"server_hostname"`

	HTTPSModeOn bool   `yaml:"https_mode_on"`
	CertFile    string `yaml:"cert_file"`
	KeyFile     string `yaml:"key_file"`

	RTSPTimeoutMicros int `yaml:"rtsp_timeout"`

	CaptureTimeoutSec     int `yaml:"capture_timeout"`
	CaptureCacheExpireSec int `yaml:"capture_cache_expire"`
	CaptureJPEGQuality    int `yaml:"capture_jpeg_quality"`
	CaptureMaxConcurrent  int `yaml:"capture_max_concurrent"`

	HLSNoCanarySec       int  `yaml:"hls_no_canary_time_before_stop"`
	HLSCheckIntervalSec  int  `yaml:"hls_process_check_interval"`
	HLSMaxDurationSec    int  `yaml:"hls_ffmpeg_max_duration"`
	HLSTargetChunks      int  `yaml:"hls_target_chunks"`
	HLSCleanupBeforePlay bool `yaml:"hls_cleanup_before_play"`
	HLSAllowSeekBack     bool `yaml:"hls_allow_video_seek_back"`

	RedirectURLIfBackground string `yaml:"redirect_url_if_background"`

	DataDir   string `yaml:"data_dir"`
	AssetsDir string `yaml:"assets_dir"`
	FFmpegBin string `yaml:"ffmpeg_bin"`

	WatchdogIntervalSec     int `yaml:"watchdog_interval"`
	WatchdogFailThreshold   int `yaml:"watchdog_fail_threshold"`
	WatchdogProbeTimeoutSec int `yaml:"watchdog_probe_timeout"`

	MetricsEnabled bool   `yaml:"metrics_enabled"`
	RedisAddr      string `yaml:"redis_address"`
	LogLevel       string `yaml:"log_level"`

	Cameras []camera.Camera `yaml:"cameras"`

	// GeneratedIDs lists cameras that had no id in the file and were assigned one.
	GeneratedIDs []string `yaml:"-"`
}

// Default returns the configuration used for every key absent from the file.
func Default() *Config {
	return &Config{
		Key:                     DefaultKey,
		Port:                    8000,
		Hostname:                "localhost",
		RTSPTimeoutMicros:       5_000_000,
		CaptureTimeoutSec:       10,
		CaptureCacheExpireSec:   60,
		CaptureJPEGQuality:      5,
		CaptureMaxConcurrent:    4,
		HLSNoCanarySec:          60,
		HLSCheckIntervalSec:     5,
		HLSMaxDurationSec:       600,
		HLSTargetChunks:         3,
		RedirectURLIfBackground: "/background.html",
		DataDir:                 "data",
		AssetsDir:               "assets",
		FFmpegBin:               "ffmpeg",
		WatchdogIntervalSec:     10,
		WatchdogFailThreshold:   3,
		WatchdogProbeTimeoutSec: 10,
		MetricsEnabled:          true,
		LogLevel:                "debug",
	}
}

// Load reads path on top of Default(), applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes YAML from r. Unknown keys are rejected.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	applyEnv(cfg)
	cfg.assignMissingIDs()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) assignMissingIDs() {
	for i := range c.Cameras {
		if c.Cameras[i].ID == "" {
			c.Cameras[i].ID = uuid.NewString()
			c.GeneratedIDs = append(c.GeneratedIDs, c.Cameras[i].ID)
		}
	}
}

func (c *Config) Validate() error {
	if c.Key == "" {
		return errors.New("key must not be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if err := hostutil.ValidateHost(c.Hostname); err != nil {
		return fmt.Errorf("server_hostname: %w", err)
	}
	if c.HTTPSModeOn && (c.CertFile == "" || c.KeyFile == "") {
		return errors.New("https_mode_on requires cert_file and key_file")
	}
	if c.HLSTargetChunks < 1 {
		return errors.New("hls_target_chunks must be at least 1")
	}
	if c.CaptureJPEGQuality < 1 || c.CaptureJPEGQuality > 31 {
		return fmt.Errorf("capture_jpeg_quality %d out of range [1,31]", c.CaptureJPEGQuality)
	}
	if c.CaptureTimeoutSec < 1 {
		return errors.New("capture_timeout must be at least 1 second")
	}
	if c.CaptureCacheExpireSec < 0 {
		return errors.New("capture_cache_expire must not be negative")
	}
	if c.CaptureMaxConcurrent < 1 {
		return errors.New("capture_max_concurrent must be at least 1")
	}
	if c.HLSCheckIntervalSec < 1 || c.WatchdogIntervalSec < 1 {
		return errors.New("check intervals must be at least 1 second")
	}
	if c.WatchdogFailThreshold < 1 {
		return errors.New("watchdog_fail_threshold must be at least 1")
	}

	// NewSet rejects duplicate ids.
	for i := range c.Cameras {
		if err := c.Cameras[i].Validate(); err != nil {
			return err
		}
	}
	if _, err := camera.NewSet(c.Cameras); err != nil {
		return err
	}
	return nil
}

// UsesDefaultKey reports whether the shared key was never changed.
func (c *Config) UsesDefaultKey() bool { return c.Key == DefaultKey }

func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }

// PublicURL is the base URL viewers reach the server on.
func (c *Config) PublicURL() string {
	scheme := "http"
	if c.HTTPSModeOn {
		scheme = "https"
	}
	return (&url.URL{Scheme: scheme, Host: net.JoinHostPort(strings.Trim(c.Hostname, "[]"), strconv.Itoa(c.Port))}).String()
}

func (c *Config) RTSPTimeout() time.Duration {
	return time.Duration(c.RTSPTimeoutMicros) * time.Microsecond
}
func (c *Config) CaptureTimeout() time.Duration { return seconds(c.CaptureTimeoutSec) }
func (c *Config) CaptureCacheExpire() time.Duration {
	return seconds(c.CaptureCacheExpireSec)
}
func (c *Config) HLSNoCanary() time.Duration       { return seconds(c.HLSNoCanarySec) }
func (c *Config) HLSCheckInterval() time.Duration  { return seconds(c.HLSCheckIntervalSec) }
func (c *Config) HLSMaxDuration() time.Duration    { return seconds(c.HLSMaxDurationSec) }
func (c *Config) WatchdogInterval() time.Duration  { return seconds(c.WatchdogIntervalSec) }
func (c *Config) WatchdogProbeTimeout() time.Duration {
	return seconds(c.WatchdogProbeTimeoutSec)
}

// Working directories created at startup.
func (c *Config) StreamDir() string  { return filepath.Join(c.DataDir, "stream") }
func (c *Config) CaptureDir() string { return filepath.Join(c.DataDir, "capture") }

// WorkDirs returns every directory the server needs before it can start.
func (c *Config) WorkDirs() []string {
	return []string{c.StreamDir(), c.CaptureDir()}
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
