// Command topomap discovers the local network topology with nmap, keeps it in
// an in-memory registry and serves it over HTTP.
package main

import (
	"os"
)

// Build information, set by ldflags
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
