package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openpubarchive/opasload/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.String())
		},
	}
}
