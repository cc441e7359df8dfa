// Package version derives the build identity stamped into logs and the
// /version endpoint. An -ldflags override wins over VCS metadata; without
// either the build reports "dev".
package version

import "runtime/debug"

// AppName prefixes version strings and log lines.
const AppName = "askql"

// gitCommitOverride can be injected at build time:
//
//	go build -ldflags "-X github.com/askql/askql/pkg/version.gitCommitOverride=$SHA"
//
// Container builds use this because .git is not in the build context.
var gitCommitOverride string

// GitCommit is the short revision this binary was built from, or "dev" when
// no override or VCS info is available (plain `go test`, tarball builds).
var GitCommit = resolveCommit()

func resolveCommit() string {
	if gitCommitOverride != "" {
		return shorten(gitCommitOverride)
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return shorten(s.Value)
			}
		}
	}
	return "dev"
}

func shorten(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

// Full returns "askql/<commit>".
func Full() string {
	return AppName + "/" + GitCommit
}
