// Package version holds build metadata stamped in through -ldflags.
package version

import (
	"runtime"
	"runtime/debug"
	"sync"
)

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

var (
	mu      sync.RWMutex
	current = Info{Version: "dev", GoVersion: runtime.Version()}
)

// Set records build metadata. Missing fields are filled from the
// embedded module build info where available.
func Set(v Info) {
	if v.Version == "" {
		v.Version = "dev"
	}
	if v.GoVersion == "" {
		v.GoVersion = runtime.Version()
	}
	if v.Commit == "" || v.BuildTime == "" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, setting := range bi.Settings {
				switch setting.Key {
				case "vcs.revision":
					if v.Commit == "" {
						v.Commit = setting.Value
					}
				case "vcs.time":
					if v.BuildTime == "" {
						v.BuildTime = setting.Value
					}
				}
			}
		}
	}

	mu.Lock()
	defer mu.Unlock()
	current = v
}

// Current returns the recorded build metadata.
func Current() Info {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// LogAttrs returns the build metadata as slog key/value pairs.
func (i Info) LogAttrs() []any {
	return []any{"version", i.Version, "commit", i.Commit, "build_time", i.BuildTime, "go", i.GoVersion}
}
