// Package version reports what sumbench binary is running.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Release is the released version of sumbench.
const Release = "0.3.0"

// Info identifies a build.
type Info struct {
	Release   string
	Revision  string // VCS commit, empty when built outside a checkout
	Modified  bool   // built from a dirty tree
	Committed string
	GoVersion string
}

// Current describes the running binary.
func Current() Info {
	info, _ := debug.ReadBuildInfo()
	return fromBuildInfo(info)
}

func fromBuildInfo(bi *debug.BuildInfo) Info {
	info := Info{Release: Release, GoVersion: runtime.Version()}
	if bi == nil {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Revision = s.Value
		case "vcs.modified":
			info.Modified = s.Value == "true"
		case "vcs.time":
			info.Committed = s.Value
		}
	}
	return info
}

func (i Info) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Version: %s\n", i.Release)
	rev := i.Revision
	if rev == "" {
		rev = "unknown"
	}
	if i.Modified {
		rev += "-dirty"
	}
	fmt.Fprintf(&b, "Build: %s", rev)
	if i.Committed != "" {
		fmt.Fprintf(&b, " (%s)", i.Committed)
	}
	fmt.Fprintf(&b, "\nGo: %s", i.GoVersion)
	return b.String()
}

// Modules lists the main module and its dependencies, one per line.
func Modules() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "not built in module mode\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, " mod\t%s\t%s\n", bi.Main.Path, bi.Main.Version)
	for _, dep := range bi.Deps {
		fmt.Fprintf(&b, " dep\t%s\t%s", dep.Path, dep.Version)
		if dep.Replace != nil {
			fmt.Fprintf(&b, "\t=> %s\t%s", dep.Replace.Path, dep.Replace.Version)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
