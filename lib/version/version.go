// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// Build stamps, set with -ldflags -X, for example:
//
//	go build -ldflags "-X github.com/bureau-foundation/uia/lib/version.GitCommit=$(git rev-parse --short HEAD)"
var (
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"
	Version   = "0.1.0-dev"
)

// stamp is the build identity after falling back to the VCS settings the
// Go toolchain records, for binaries built with plain "go install".
type stamp struct {
	commit string
	dirty  bool
	time   string
}

var (
	buildInfoOnce sync.Once
	fromBuildInfo stamp
)

func current() stamp {
	resolved := stamp{commit: GitCommit, dirty: GitDirty == "true", time: BuildTime}
	if resolved.commit != "unknown" {
		return resolved
	}
	buildInfoOnce.Do(func() {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				fromBuildInfo.commit = setting.Value
			case "vcs.modified":
				fromBuildInfo.dirty = setting.Value == "true"
			case "vcs.time":
				fromBuildInfo.time = setting.Value
			}
		}
		if len(fromBuildInfo.commit) > 12 {
			fromBuildInfo.commit = fromBuildInfo.commit[:12]
		}
	})
	if fromBuildInfo.commit == "" {
		return resolved
	}
	if fromBuildInfo.time == "" {
		fromBuildInfo.time = resolved.time
	}
	return fromBuildInfo
}

// Info is the one-line form: "0.1.0-dev (abc1234-dirty, 2026-02-10T...)".
func Info() string {
	build := current()
	dirty := ""
	if build.dirty {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, build.commit, dirty, build.time)
}

// Full adds the Go version and platform to Info.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// UserAgent is the User-Agent sent to homeservers.
func UserAgent() string {
	return fmt.Sprintf("bureau-uia/%s (%s; %s/%s)", Version, current().commit, runtime.GOOS, runtime.GOARCH)
}
