// Package cmd provides the CLI commands for opasload.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/openpubarchive/opasload/pkg/version"
)

// NewRootCmd creates the root command for the opasload CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "opasload",
		Short: "Batch loader for the document archive",
		Long: `opasload walks a tree of compiled XML source documents and loads
them into the full-text search engine and the central relational
database. Runs are idempotent: unchanged files are skipped, changed
files are replaced in place.`,
		Version:      version.Version,
		SilenceUsage: true,
	}

	cmd.SetVersionTemplate("opasload version {{.Version}}\n")

	cmd.AddCommand(newLoadCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
