package cmd

import (
	"fmt"
	"io"
	"runtime"
)

// Version is overwritten at link time with -ldflags "-X sitegen/cmd.Version=..."
var Version = "dev"

// PrintVersion writes the build version
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "sitegen %s (%s %s/%s)\n", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
