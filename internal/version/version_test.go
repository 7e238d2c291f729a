package version

import (
	"strings"
	"testing"
)

func withVersion(t *testing.T, v, commit, built string) {
	t.Helper()
	origVersion, origCommit, origBuildTime := Version, Commit, BuildTime
	t.Cleanup(func() {
		Version, Commit, BuildTime = origVersion, origCommit, origBuildTime
	})
	Version, Commit, BuildTime = v, commit, built
}

func TestString(t *testing.T) {
	t.Run("custom values", func(t *testing.T) {
		withVersion(t, "1.2.3", "abc1234", "2026-01-15T10:00:00Z")

		expected := "1.2.3 (abc1234) built 2026-01-15T10:00:00Z"
		if got := String(); got != expected {
			t.Errorf("String() = %q, want %q", got, expected)
		}
	})

	t.Run("defaults", func(t *testing.T) {
		withVersion(t, "dev", "unknown", "unknown")

		result := String()
		if !strings.HasPrefix(result, "dev (unknown)") {
			t.Errorf("String() = %q, want prefix %q", result, "dev (unknown)")
		}
	})
}

func TestUserAgent(t *testing.T) {
	withVersion(t, "0.4.0", "f00dcafe", "unknown")

	if got := UserAgent(); got != "chatpulse/0.4.0 (f00dcafe)" {
		t.Errorf("UserAgent() = %q", got)
	}
}
