// Package version carries the build identity of the syftmirror binary.
// Values are injected with -ldflags at release time and fall back to the
// module and VCS data embedded by the Go toolchain for local builds.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const devVersion = "0.1.0-dev"

var (
	AppName   = "SyftMirror"
	Version   = devVersion
	Revision  = "HEAD"
	BuildDate = ""
)

// Info is a snapshot of the build identity.
type Info struct {
	App       string
	Version   string
	Revision  string
	BuildDate string
	GoVersion string
	Platform  string
}

// Get returns the current build identity.
func Get() Info {
	return Info{
		App:       AppName,
		Version:   Version,
		Revision:  Revision,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Short renders `0.1.0 (5e23a4)`.
func (i Info) Short() string {
	return fmt.Sprintf("%s (%s)", i.Version, i.Revision)
}

// Detailed renders `0.1.0 (5e23a4; go1.23.6; linux/amd64; 2026-10-18T00:00:00Z)`.
func (i Info) Detailed() string {
	return fmt.Sprintf("%s (%s; %s; %s; %s)", i.Version, i.Revision, i.GoVersion, i.Platform, i.BuildDate)
}

// Short returns the short version string of the running binary.
func Short() string { return Get().Short() }

// Detailed returns the detailed version string of the running binary.
func Detailed() string { return Get().Detailed() }

// DetailedWithApp prefixes Detailed with the application name.
func DetailedWithApp() string { return AppName + " " + Detailed() }

func applyBuildInfo(mainVersion string, settings map[string]string) {
	if Version == devVersion || Version == "" {
		if mainVersion != "" && mainVersion != "(devel)" {
			Version = strings.TrimPrefix(mainVersion, "v")
		}
	}

	if Revision == "HEAD" || Revision == "" {
		if r := settings["vcs.revision"]; r != "" {
			if settings["vcs.modified"] == "true" {
				r += "-dirty"
			}
			Revision = r
		}
	}

	if BuildDate == "" {
		BuildDate = settings["vcs.time"]
	}
}

func init() {
	if info, ok := debug.ReadBuildInfo(); ok && info != nil {
		settings := make(map[string]string, len(info.Settings))
		for _, s := range info.Settings {
			settings[s.Key] = s.Value
		}
		applyBuildInfo(info.Main.Version, settings)
	}
	if BuildDate == "" {
		BuildDate = time.Now().UTC().Format(time.RFC3339)
	}
}
