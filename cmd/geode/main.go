// Package main provides the entry point for the geode CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/qri-io/geode/cmd/geode/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
