// Package main provides the rtemplate CLI.
package main

import (
	"os"

	"github.com/dhbaird/rtemplate/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
