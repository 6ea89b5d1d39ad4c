// Command precinctctl is the operator CLI for a precinct data directory:
// list and promote users, block usernames, count and purge records.
//
// It opens the record store directly, so it refuses to run while a server
// holds the same data directory.
package main

import (
	"os"
)

// version is set via ldflags during build
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
