package hostutil

import "testing"

func TestValidateHost(t *testing.T) {
	good := []string{"10.0.0.5", "cam-gate.local", "localhost", "fe80::1", "[::1]", "nvr_01.example.com."}
	for _, h := range good {
		if err := ValidateHost(h); err != nil {
			t.Errorf("ValidateHost(%q) = %v, want nil", h, err)
		}
	}

	bad := []string{"", "10.0.0.256", "-cam.local", "cam-.local", "a..b", "[::1", "::ffff:10.0.0.1", "caméra.local"}
	for _, h := range bad {
		if err := ValidateHost(h); err == nil {
			t.Errorf("ValidateHost(%q) = nil, want error", h)
		}
	}
}

func TestValidatePort(t *testing.T) {
	for _, p := range []string{"", "554", "1", "65535"} {
		if err := ValidatePort(p); err != nil {
			t.Errorf("ValidatePort(%q) = %v", p, err)
		}
	}
	for _, p := range []string{"0", "0554", "65536", "rtsp", "-1"} {
		if err := ValidatePort(p); err == nil {
			t.Errorf("ValidatePort(%q) = nil, want error", p)
		}
	}
}
