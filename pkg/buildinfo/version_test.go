package buildinfo

import (
	"runtime/debug"
	"strings"
	"testing"
)

func restore(t *testing.T) {
	v, c, d := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = v, c, d })
}

func TestFillFrom(t *testing.T) {
	restore(t)
	Version, Commit, Date = "dev", "none", "unknown"

	fillFrom(&debug.BuildInfo{
		Main: debug.Module{Version: "v0.4.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "abc123"},
			{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
			{Key: "GOOS", Value: "linux"},
		},
	})

	if Version != "v0.4.1" || Commit != "abc123" || Date != "2026-01-02T03:04:05Z" {
		t.Errorf("fillFrom = %s %s %s", Version, Commit, Date)
	}
}

func TestFillFromKeepsLdflags(t *testing.T) {
	restore(t)
	Version, Commit, Date = "v1.0.0", "deadbeef", "2026-10-01"

	fillFrom(&debug.BuildInfo{
		Main:     debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "abc123"}},
	})

	if Version != "v1.0.0" || Commit != "deadbeef" {
		t.Errorf("ldflags values overwritten: %s %s", Version, Commit)
	}
}

func TestStrings(t *testing.T) {
	restore(t)
	Version, Commit, Date = "v1.2.3", "abc", "today"

	if got := UserAgent(); got != "exprflow/v1.2.3" {
		t.Errorf("UserAgent() = %q", got)
	}
	if !strings.Contains(String(), "commit: abc") {
		t.Errorf("String() = %q", String())
	}
	if got := Template(); !strings.HasPrefix(got, "{{.Name}} version: v1.2.3") {
		t.Errorf("Template() = %q", got)
	}
}
