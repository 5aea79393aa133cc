package buildinfo

import (
	"runtime"
	"runtime/debug"
	"sync"
)

// Set via -ldflags -X. Empty Commit and BuildTime are filled from the
// VCS stamp the Go toolchain embeds in module builds.
var (
	Version   = "0.0.5"
	Commit    = ""
	BuildTime = ""
)

// Identity reported by the info endpoint.
const (
	Implementation = "SightingDB"
	Vendor         = "NCOC"
	Author         = "Cooper"
)

const unknown = "unknown"

// Info contains build information.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Modified  bool   `json:"modified,omitempty"`
}

var (
	infoOnce sync.Once
	info     Info
)

// Get returns the build information.
func Get() Info {
	infoOnce.Do(func() {
		info = Info{
			Version:   Version,
			Commit:    Commit,
			BuildTime: BuildTime,
			GoVersion: runtime.Version(),
		}
		if bi, ok := debug.ReadBuildInfo(); ok {
			fromVCS(&info, bi.Settings)
		}
		if info.Commit == "" {
			info.Commit = unknown
		}
		if info.BuildTime == "" {
			info.BuildTime = unknown
		}
	})
	return info
}

func fromVCS(i *Info, settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if i.Commit == "" {
				i.Commit = s.Value
				if len(i.Commit) > 12 {
					i.Commit = i.Commit[:12]
				}
			}
		case "vcs.time":
			if i.BuildTime == "" {
				i.BuildTime = s.Value
			}
		case "vcs.modified":
			i.Modified = s.Value == "true"
		}
	}
}

// Identity is the payload of the /i endpoint.
type Identity struct {
	Implementation string `json:"implementation"`
	Version        string `json:"version"`
	Vendor         string `json:"vendor"`
	Author         string `json:"author"`
}

// Ident returns the server identity.
func Ident() Identity {
	return Identity{
		Implementation: Implementation,
		Version:        Version,
		Vendor:         Vendor,
		Author:         Author,
	}
}

// String is the one-line version used by --version.
func String() string {
	i := Get()
	s := Implementation + " " + i.Version + " (" + i.Commit
	if i.Modified {
		s += "-dirty"
	}
	return s + ", " + i.GoVersion + ") built at " + i.BuildTime
}
