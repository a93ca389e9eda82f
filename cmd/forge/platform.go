package main

import (
	"runtime"

	"github.com/forgelang/forge/internal/unitgraph"
)

// hostPlatform reports the running machine's target triple using Go's
// own GOOS/GOARCH, which is a reasonable stand-in for a real
// rustc-style triple until this driver grows a proper toolchain probe.
func hostPlatform() unitgraph.Platform {
	return unitgraph.Platform{Host: true, Triple: runtime.GOARCH + "-" + runtime.GOOS}
}
