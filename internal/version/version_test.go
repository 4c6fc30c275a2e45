package version

import (
	"testing"

	"github.com/rickgao/stocksync/internal/event"
)

func setBuildVars(t *testing.T, v, c, b string) {
	t.Helper()
	origVersion, origCommit, origBuildTime := Version, Commit, BuildTime
	t.Cleanup(func() {
		Version, Commit, BuildTime = origVersion, origCommit, origBuildTime
	})
	Version, Commit, BuildTime = v, c, b
}

func TestString(t *testing.T) {
	tests := []struct {
		name            string
		version, commit string
		buildTime, want string
	}{
		{"defaults", "dev", "unknown", "unknown", "dev (unknown) built unknown"},
		{"release", "1.2.3", "abc1234", "2024-01-15T10:00:00Z", "1.2.3 (abc1234) built 2024-01-15T10:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBuildVars(t, tt.version, tt.commit, tt.buildTime)
			if got := String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInfo(t *testing.T) {
	setBuildVars(t, "0.4.0", "deadbee", "2025-06-01T00:00:00Z")

	got := Info()
	want := BuildInfo{
		Version:        "0.4.0",
		Commit:         "deadbee",
		BuildTime:      "2025-06-01T00:00:00Z",
		CatalogVersion: event.CatalogVersion,
	}
	if got != want {
		t.Errorf("Info() = %+v, want %+v", got, want)
	}
}

func TestDefaultValues(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
	if Commit == "" {
		t.Error("Commit should not be empty")
	}
	if BuildTime == "" {
		t.Error("BuildTime should not be empty")
	}
}
