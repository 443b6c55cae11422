// Package buildinfo carries version data injected at link time:
//
//	go build -ldflags "-X github.com/dmitrijs2005/keeperbridge/internal/buildinfo.Version=v1.2.0"
package buildinfo

import (
	"fmt"
	"io"
	"runtime/debug"
)

var (
	Version = "N/A"
	Commit  = "N/A"
	Date    = "N/A"
)

// Info is a snapshot of the build metadata.
type Info struct {
	Version string
	Commit  string
	Date    string
}

// Get returns the injected values, falling back to the module version and
// VCS revision recorded by the Go toolchain.
func Get() Info {
	info := Info{Version: Version, Commit: Commit, Date: Date}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "N/A" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "N/A" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Date == "N/A" {
				info.Date = s.Value
			}
		}
	}
	return info
}

// Print writes the build banner.
func Print(w io.Writer) {
	i := Get()
	fmt.Fprintf(w, "Build version: %s\nBuild date: %s\nBuild commit: %s\n", i.Version, i.Date, i.Commit)
}
