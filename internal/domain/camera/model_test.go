package camera

import "testing"

func TestValidate(t *testing.T) {
	t.Run("accepts rtsp camera", func(t *testing.T) {
		c := Camera{ID: "cam-1", RTSPURI: "rtsp://10.0.0.5:554/stream1", Name: "gate"}
		if err := c.Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
	})

	t.Run("rejects path-like id", func(t *testing.T) {
		c := Camera{ID: "../etc", RTSPURI: "rtsp://10.0.0.5/s"}
		if err := c.Validate(); err == nil {
			t.Fatal("expected error for id with path separators")
		}
	})

	t.Run("rejects missing protocol", func(t *testing.T) {
		c := Camera{ID: "cam", RTSPURI: "/var/video.mp4"}
		if err := c.Validate(); err == nil {
			t.Fatal("expected error for local file source")
		}
	})

	t.Run("rejects bad host and port", func(t *testing.T) {
		for _, uri := range []string{"rtsp://-nvr/s", "rtsp://10.0.0.300/s", "rtsp://10.0.0.5:0/s", "rtsp://10.0.0.5:99999/s"} {
			c := Camera{ID: "cam", RTSPURI: uri}
			if err := c.Validate(); err == nil {
				t.Errorf("%s: expected error", uri)
			}
		}
	})

	t.Run("accepts credentials and ipv6", func(t *testing.T) {
		c := Camera{ID: "cam", RTSPURI: "rtsps://admin:p%40ss@[fe80::1]:322/live"}
		if err := c.Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
	})

	t.Run("rejects http source", func(t *testing.T) {
		c := Camera{ID: "cam", RTSPURI: "http://10.0.0.5/mjpeg"}
		if err := c.Validate(); err == nil {
			t.Fatal("expected error for non-rtsp source")
		}
	})
}

func TestSet(t *testing.T) {
	cams := []Camera{
		{ID: "b", RTSPURI: "rtsp://h/b"},
		{ID: "a", RTSPURI: "rtsp://h/a"},
	}
	s, err := NewSet(cams)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
	if got := s.All(); got[0].ID != "b" || got[1].ID != "a" {
		t.Errorf("All() order = %v, want configuration order", got)
	}
	if _, ok := s.Find("a"); !ok {
		t.Error("Find(a) not found")
	}
	if _, ok := s.Find("zz"); ok {
		t.Error("Find(zz) unexpectedly found")
	}

	if _, err := NewSet(append(cams, Camera{ID: "a"})); err == nil {
		t.Error("expected duplicate id error")
	}
}
