// Package main provides the entry point for the opasload CLI.
package main

import (
	"os"

	"github.com/openpubarchive/opasload/cmd/opasload/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
