// Package appinfo reports build information for the badge service.
package appinfo

import (
	"os"
	"runtime/debug"
)

// Version is overridden at build time with -ldflags "-X noodlebadge/internal/utils/appinfo.Version=1.2.3"
var Version = ""

// GetVersion resolves the running version: the linker value, then APP_VERSION,
// then the module or VCS revision from the build info.
func GetVersion() string {
	if Version != "" {
		return Version
	}
	if v := os.Getenv("APP_VERSION"); v != "" {
		return v
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "0.0.0-unknown"
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	if rev := buildSetting(info, "vcs.revision"); rev != "" {
		if len(rev) > 12 {
			rev = rev[:12]
		}
		if buildSetting(info, "vcs.modified") == "true" {
			rev += "-dirty"
		}
		return rev
	}
	return "0.0.0-unknown"
}

func buildSetting(info *debug.BuildInfo, key string) string {
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}
