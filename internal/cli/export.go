package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/courtside/internal/export"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		flags  viewFlags
		format string
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "export <resource> [key=value...]",
		Short: "Export records to a CSV or JSON file",
		Long: `Export writes the records list would show into <resource>_<date>.<ext>
inside the output directory.

Example:
  courtside export players team_id=3 --format csv --out ./exports`,
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: resourceArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return userErrorf("%w", err)
			}
			res, err := lookupResource(args[0])
			if err != nil {
				return err
			}
			v, err := a.loadView(cmd.Context(), res, flags, args[1:])
			if err != nil {
				return err
			}
			defer v.coll.Close()

			path, err := v.coll.ExportFile(outDir, v.shown, f)
			if err != nil {
				return sysErrorf("export %s: %w", res.Name, err)
			}
			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), map[string]any{"path": path, "records": len(v.shown)})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d %s to %s\n", len(v.shown), res.Name, path)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&format, "format", string(export.CSV), "output format: csv or json")
	cmd.Flags().StringVar(&outDir, "out", ".", "directory to write the export into")
	return cmd
}
