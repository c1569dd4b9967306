// Package version holds build information for the bookrec binary, set via
// -ldflags:
//
//	go build -ldflags="-X github.com/BiancaGL2104/rag-book-recommender/internal/version.Version=v0.3.0 \
//	                    -X github.com/BiancaGL2104/rag-book-recommender/internal/version.Commit=abc1234 \
//	                    -X github.com/BiancaGL2104/rag-book-recommender/internal/version.BuildDate=2026-01-01"
//
// Without ldflags the commit falls back to the VCS stamp embedded by the Go
// toolchain, when present.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is the semantic version of the binary. Defaults to "dev".
var Version = "dev"

// Commit is the short git SHA the binary was built from.
var Commit = "unknown"

// BuildDate is the UTC build date (RFC3339).
var BuildDate = "unknown"

// Info is the resolved build information.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// Get returns the build information, filling Commit and BuildDate from the
// embedded VCS settings when ldflags did not set them.
func Get() Info {
	info := Info{Version: Version, Commit: Commit, BuildDate: BuildDate, GoVersion: runtime.Version()}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info = fromBuildSettings(info, bi.Settings)
	}
	return info
}

func fromBuildSettings(info Info, settings []debug.BuildSetting) Info {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" && s.Value != "" {
				info.Commit = s.Value
				if len(info.Commit) > 7 {
					info.Commit = info.Commit[:7]
				}
			}
		case "vcs.time":
			if info.BuildDate == "unknown" && s.Value != "" {
				info.BuildDate = s.Value
			}
		}
	}
	return info
}

// String renders the one-line form printed by `bookrec version`.
func (i Info) String() string {
	return fmt.Sprintf("bookrec %s (commit %s, built %s, %s)", i.Version, i.Commit, i.BuildDate, i.GoVersion)
}
