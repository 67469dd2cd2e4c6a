// Package main is the entry point for the carmat CLI.
package main

import (
	"os"

	"github.com/jmylchreest/carmat/cmd/carmat/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
