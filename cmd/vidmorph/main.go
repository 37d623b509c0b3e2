// Package main is the entry point for the vidmorph application.
package main

import (
	"os"

	"github.com/vidmorph/vidmorph/cmd/vidmorph/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
