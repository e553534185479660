// Package version reports the build of the thermomap binary.
package version

import (
	"fmt"
	"runtime/debug"
)

// Set with -ldflags "-X thermomap/internal/version.Version=...".
var (
	Version   = "0.1.0-dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"commit"`
	BuildTime string `json:"date"`
	GoVersion string `json:"go"`
}

// Get returns the build info. When the commit was not injected at link
// time, the VCS revision recorded by the toolchain is used.
func Get() Info {
	info := Info{Version: Version, GitCommit: GitCommit, BuildTime: BuildTime}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "unknown" {
				info.GitCommit = s.Value
			}
		case "vcs.time":
			if info.BuildTime == "unknown" {
				info.BuildTime = s.Value
			}
		}
	}
	return info
}

func (i Info) String() string {
	return fmt.Sprintf("thermomap version %s (commit: %s, built: %s)", i.Version, i.GitCommit, i.BuildTime)
}
