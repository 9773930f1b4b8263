// Package main provides the entry point for the docmemory CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/docmemory/cmd/docmemory/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
