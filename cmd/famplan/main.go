// Package main provides the entry point for the famplan CLI.
package main

import (
	"os"

	"github.com/randalmurphal/famplan/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
