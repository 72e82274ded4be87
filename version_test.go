package network

import (
	"strings"
	"testing"
)

func TestGetVersion(t *testing.T) {
	v := GetVersion()
	if !strings.Contains(v, Version) {
		t.Errorf("GetVersion() = %q, missing %q", v, Version)
	}
	if !strings.Contains(v, GoVersion) {
		t.Errorf("GetVersion() = %q, missing go version", v)
	}
}

func TestGetVersionInfo(t *testing.T) {
	info := GetVersionInfo()
	for _, key := range []string{"version", "commit", "build_date", "go_version"} {
		if info[key] == "" {
			t.Errorf("GetVersionInfo() missing %q", key)
		}
	}
}
