package version

import (
	"fmt"
	"runtime"
)

var (
	// Set via -ldflags at build time.
	Version = "dev"
	Commit  = "none"
)

func GetInfo() string {
	return fmt.Sprintf("%s (%s) %s/%s", Version, Commit, runtime.GOOS, runtime.GOARCH)
}
