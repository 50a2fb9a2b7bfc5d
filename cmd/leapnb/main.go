// Package main provides the leapnb CLI.
package main

import (
	"os"

	"github.com/leapstack-labs/leapnb/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
