package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/courtside/pkg/courtside"
)

const modulePath = "github.com/mesh-intelligence/courtside"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the courtside version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "courtside v%s\nmodule: %s\n", courtside.Version, modulePath)
			return nil
		},
	}
}
