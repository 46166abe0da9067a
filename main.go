package main

import (
	"os"
)

// Version is set at build time.
var Version = "0.1.0-dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
