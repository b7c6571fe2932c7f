package main

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
)

// Version information - injected at build time via ldflags
var (
	Version   = "dev"
	Build     = "unknown"
	BuildTime = ""
)

func versionString() string {
	s := Version
	if Build != "unknown" && Build != "" {
		s += fmt.Sprintf(" (build: %s)", Build)
	}
	if BuildTime != "" {
		s += fmt.Sprintf(" [%s]", BuildTime)
	}
	return s
}

// printVersion prints the version information
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "updatesvc version %s\n", versionString())

	fmt.Fprintf(w, "Go version: %s\n", runtime.Version())
	fmt.Fprintf(w, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	// Development builds carry their commit in the embedded build info.
	if Version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, setting := range info.Settings {
				if setting.Key == "vcs.revision" && len(setting.Value) > 7 {
					fmt.Fprintf(w, "Commit: %s\n", setting.Value[:7])
					break
				}
			}
		}
	}
}
