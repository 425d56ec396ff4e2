// Package buildinfo exposes build metadata injected with -ldflags, e.g.:
//
//	go build -ldflags "-X github.com/dmitrijs2005/audiokeeper/internal/buildinfo.buildVersion=1.4.0"
//
// The version doubles as the app version bound to every vault entry, so an
// upgraded binary refuses to decrypt artifacts written by an older one.
package buildinfo

import (
	"fmt"
	"io"
)

var (
	buildVersion = "N/A"
	buildDate    = "N/A"
	buildCommit  = "N/A"
)

// Version returns the build version string.
func Version() string {
	return buildVersion
}

// PrintBuildData writes version, date and commit to w.
func PrintBuildData(w io.Writer) {
	fmt.Fprintf(w, "Build version: %s\n", buildVersion)
	fmt.Fprintf(w, "Build date: %s\n", buildDate)
	fmt.Fprintf(w, "Build commit: %s\n", buildCommit)
}
