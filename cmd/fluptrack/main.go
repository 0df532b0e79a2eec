// Package main is the entry point for the fluptrack CLI.
package main

import (
	"os"

	"github.com/hexperiment-labs/fluptrack/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
