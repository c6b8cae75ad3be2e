// Package main provides the catmigrate CLI entry point.
package main

import (
	"os"

	"github.com/leapstack-labs/catmigrate/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
