// Package versions provides version information for the authbridge binaries.
package versions

import (
	"fmt"
	"runtime"
	"time"
)

const unknownStr = "unknown"

// Version information set by build using -ldflags.
var (
	// Version is the semantic version of this build, or "dev".
	Version = "dev"
	// Commit is the git commit the build was made from.
	Commit = unknownStr
	// BuildDate is the RFC3339 timestamp of the build.
	BuildDate = unknownStr
)

// VersionInfo represents the version information of this build.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersionInfo returns the version information of this build. Development
// builds are named after the commit they were built from.
func GetVersionInfo() VersionInfo {
	version := Version
	if version == "dev" {
		if Commit == unknownStr {
			version = "build-unknown"
		} else {
			short := Commit
			if len(short) > 8 {
				short = short[:8]
			}
			version = "build-" + short
		}
	}

	buildDate := BuildDate
	if t, err := time.Parse(time.RFC3339, buildDate); err == nil {
		buildDate = t.UTC().Format("2006-01-02 15:04:05 UTC")
	}

	return VersionInfo{
		Version:   version,
		Commit:    Commit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}
