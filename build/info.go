package build

import (
	"runtime/debug"
	"strings"
)

// Version is overridden at link time: -ldflags "-X werewolf-bdd/build.Version=v1.2.3".
var Version = "dev"

type Info struct {
	Version    string `json:"version"`
	Path       string `json:"path,omitempty"`
	GoVersion  string `json:"goVersion,omitempty"`
	CommitHash string `json:"commitHash,omitempty"`
	CommitTime string `json:"commitTime,omitempty"`
	Modified   bool   `json:"modified,omitempty"`
}

func GetBuildInfo() *Info {
	result := &Info{Version: Version}

	if bi, ok := debug.ReadBuildInfo(); ok {
		result.Path = bi.Main.Path
		result.GoVersion = bi.GoVersion

		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				result.CommitHash = s.Value
			case "vcs.time":
				result.CommitTime = s.Value
			case "vcs.modified":
				result.Modified = s.Value == "true"
			}
		}
	}
	return result
}

// ShortCommit returns the first 12 characters of the commit hash, or "unknown".
func (i *Info) ShortCommit() string {
	if i == nil || i.CommitHash == "" {
		return "unknown"
	}
	hash := strings.TrimSpace(i.CommitHash)
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
