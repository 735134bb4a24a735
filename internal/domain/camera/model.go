package camera

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"

	"github.com/edirooss/rtsplive-server/pkg/hostutil"
)

// ErrNotFound is returned by every component that resolves a camera id
// against the configured set.
var ErrNotFound = errors.New("camera not found")

type Camera struct {
	ID           string `yaml:"id" json:"id"`
	RTSPURI      string `yaml:"rtsp_uri" json:"-"` // may embed credentials; never exposed over HTTP
	Name         string `yaml:"name" json:"name"`
	TransportTCP bool   `yaml:"transport_tcp" json:"transport_tcp"` // rtsp_transport tcp
	AudioEnabled bool   `yaml:"audio_enabled" json:"audio_enabled"`
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidID reports whether id is safe to use as a camera id.
// Ids become file and directory names, so the alphabet is restricted.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

func (c *Camera) Validate() error {
	if !ValidID(c.ID) {
		return fmt.Errorf("camera %q: id must match %s", c.ID, idPattern.String())
	}
	if len(c.Name) > 100 {
		return fmt.Errorf("camera %s: name must be at most 100 characters", c.ID)
	}
	if err := validateSourceURI(c.RTSPURI); err != nil {
		return fmt.Errorf("camera %s: rtsp_uri: %w", c.ID, err)
	}
	return nil
}

// validateSourceURI
// Validation for camera source URIs.
//
// Policy:
//   - Require rtsp or rtsps (ffmpeg falls back to local files when the scheme is missing; never accept that).
//   - Require a host.
func validateSourceURI(raw string) error {
	if raw == "" {
		return errors.New("missing uri")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return err
	}

	switch u.Scheme {
	case "rtsp", "rtsps":
	case "":
		return errors.New("missing protocol")
	default:
		return fmt.Errorf("unsupported protocol %q", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("missing host")
	}
	if err := hostutil.ValidateHost(u.Hostname()); err != nil {
		return err
	}
	if err := hostutil.ValidatePort(u.Port()); err != nil {
		return err
	}

	return nil
}
