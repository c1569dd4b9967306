package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestFromBuildSettings(t *testing.T) {
	t.Parallel()

	settings := []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef"},
		{Key: "vcs.time", Value: "2026-03-01T10:00:00Z"},
	}

	got := fromBuildSettings(Info{Version: "dev", Commit: "unknown", BuildDate: "unknown"}, settings)
	if got.Commit != "0123456" || got.BuildDate != "2026-03-01T10:00:00Z" {
		t.Errorf("unexpected info %+v", got)
	}

	pinned := fromBuildSettings(Info{Commit: "abc1234", BuildDate: "2026-01-01"}, settings)
	if pinned.Commit != "abc1234" || pinned.BuildDate != "2026-01-01" {
		t.Errorf("ldflags values overwritten: %+v", pinned)
	}
}

func TestInfoString(t *testing.T) {
	t.Parallel()

	s := Info{Version: "v0.3.0", Commit: "abc1234", BuildDate: "2026-01-01", GoVersion: "go1.26.0"}.String()
	for _, want := range []string{"bookrec v0.3.0", "abc1234", "go1.26.0"} {
		if !strings.Contains(s, want) {
			t.Errorf("%q missing %q", s, want)
		}
	}
}
