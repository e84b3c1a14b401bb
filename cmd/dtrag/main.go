// Package main provides the entry point for the dtrag CLI.
package main

import (
	"os"

	"github.com/taxonrag/dtrag/cmd/dtrag/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
