package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/courtside/internal/form"
	"github.com/mesh-intelligence/courtside/pkg/types"
)

func newUpdateCmd(a *app) *cobra.Command {
	var sets []string
	cmd := &cobra.Command{
		Use:   "update <resource> <id> --set field=value...",
		Short: "Validate and update a record",
		Long: `Update loads the record, applies the --set edits as an edit form would and
validates the result against the resource's rules. Only the edited fields
are sent to the backend.

Example:
  courtside update players 7 --set jersey_number=23`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := lookupResource(args[0])
			if err != nil {
				return err
			}
			id := args[1]
			edits, order, err := parseSets(sets)
			if err != nil {
				return err
			}
			if len(order) == 0 {
				return userErrorf("nothing to update: pass at least one --set field=value")
			}

			coll, err := a.collection(res, nil)
			if err != nil {
				return err
			}
			defer coll.Close()
			snap, err := fetchSnapshot(cmd.Context(), coll, res, nil)
			if err != nil {
				return err
			}
			current := findRecord(snap.Data, id)
			if current == nil {
				return userErrorf("%s %s not found", res.Name, id)
			}

			f := form.New(nil, res.Schema, form.WithLogger(a.log))
			for k, v := range current {
				f.SetFieldValue(k, v)
			}
			for _, name := range order {
				f.HandleChange(form.ChangeEvent{Name: name, Value: edits[name]})
				f.HandleBlur(name, edits[name])
			}

			var updated types.Record
			result := f.Submit(cmd.Context(), func(ctx context.Context, v types.Values) error {
				patch := make(types.Record, len(order))
				for _, name := range order {
					patch[name] = v[name]
				}
				rec, err := coll.UpdateItem(ctx, id, patch)
				updated = rec
				return err
			})
			if err := submitError(cmd, res, "update", result); err != nil {
				return err
			}
			return a.printResult(cmd, updated)
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field=value to change (repeatable)")
	return cmd
}

func findRecord(records []types.Record, id string) types.Record {
	for _, r := range records {
		if r.ID() == id {
			return r
		}
	}
	return nil
}
