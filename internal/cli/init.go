package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration and the local cache",
		Long:  "Create the configuration directory with a default config.yaml, then create the data directory and cache store.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.openStore(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.configCreated {
				fmt.Fprintf(out, "Wrote %s\n", a.configPath)
			} else {
				fmt.Fprintf(out, "Using %s\n", a.configPath)
			}
			fmt.Fprintf(out, "Cache: %s (%s)\n", a.dataDir, a.cfg.CacheBackend)
			fmt.Fprintln(out, "courtside initialized successfully")
			return nil
		},
	}
}
