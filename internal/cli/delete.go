package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/courtside/internal/rest"
)

func newDeleteCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <resource> <id>...",
		Short: "Delete one or more records",
		Long: `Delete removes records by id. Several ids are sent as one bulk request.

Example:
  courtside delete games 12
  courtside delete players 4 9 17`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := lookupResource(args[0])
			if err != nil {
				return err
			}
			ids := args[1:]
			coll, err := a.collection(res, nil)
			if err != nil {
				return err
			}
			defer coll.Close()

			if len(ids) == 1 {
				err = coll.DeleteItem(cmd.Context(), ids[0])
			} else {
				// Loaded first so bulk ids go out with the server's id types.
				_ = coll.Fetch(cmd.Context(), nil)
				err = coll.BulkDelete(cmd.Context(), ids)
			}
			if err != nil {
				if rest.StatusCode(err) >= 400 && rest.StatusCode(err) < 500 {
					return userErrorf("delete %s: %s", res.Name, rest.UserMessage(err))
				}
				return sysErrorf("delete %s: %s", res.Name, rest.UserMessage(err))
			}

			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), map[string]any{"deleted": ids})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d %s\n", len(ids), res.Name)
			return nil
		},
	}
	return cmd
}
