package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/courtside/internal/federation"
	"github.com/mesh-intelligence/courtside/internal/filter"
	"github.com/mesh-intelligence/courtside/internal/rest"
	"github.com/mesh-intelligence/courtside/internal/tablesync"
	"github.com/mesh-intelligence/courtside/pkg/types"
)

// viewFlags select what part of a collection a command works on.
type viewFlags struct {
	search string
	page   int
}

func (v *viewFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&v.search, "search", "", "case-insensitive search across the resource's text fields")
	cmd.Flags().IntVar(&v.page, "page", 0, "fetch one server-side page instead of the whole collection")
}

// view is a loaded collection narrowed by search and filters.
type view struct {
	coll   *tablesync.Collection
	snap   tablesync.Snapshot
	shown  []types.Record
	total  int
	engine *filter.Engine
}

// loadView fetches res and applies the search term and key=value filters.
// A failed fetch is an error only when no cached data could stand in.
func (a *app) loadView(ctx context.Context, res federation.Resource, flags viewFlags, filterArgs []string) (*view, error) {
	selections, err := filter.ParseSelections(filterArgs)
	if err != nil {
		return nil, userErrorf("%w", err)
	}
	coll, err := a.collection(res, func(o *tablesync.Options) { o.ServerSide = flags.page > 0 })
	if err != nil {
		return nil, err
	}

	var params map[string]string
	if flags.page > 0 {
		params = map[string]string{"page": strconv.Itoa(flags.page)}
	}
	snap, err := fetchSnapshot(ctx, coll, res, params)
	if err != nil {
		coll.Close()
		return nil, err
	}

	engine := filter.New(snap.Data, res.Filters)
	engine.SetSearchTerm(flags.search)
	engine.UpdateFilters(selections)

	total := engine.TotalCount()
	if flags.page > 0 {
		total = snap.TotalCount
	}
	return &view{coll: coll, snap: snap, shown: engine.Filtered(), total: total, engine: engine}, nil
}

func fetchSnapshot(ctx context.Context, coll *tablesync.Collection, res federation.Resource, params map[string]string) (tablesync.Snapshot, error) {
	err := coll.Fetch(ctx, params)
	snap := coll.Snapshot()
	if err != nil && !snap.Stale {
		return snap, sysErrorf("load %s: %s", res.Name, rest.UserMessage(err))
	}
	return snap, nil
}

func newListCmd(a *app) *cobra.Command {
	var flags viewFlags
	cmd := &cobra.Command{
		Use:   "list <resource> [key=value...]",
		Short: "List records with optional search and filters",
		Long: `List fetches a resource and prints the records that pass the search term
and every key=value filter. Filters are ANDed; "key=all" clears a filter.
When the backend is unreachable the last cached copy is shown.

Resources: games, players, teams, tournaments

Example:
  courtside list teams status=active
  courtside list players position=PG --search sar
  courtside list games --page 2 --json`,
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: resourceArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := lookupResource(args[0])
			if err != nil {
				return err
			}
			v, err := a.loadView(cmd.Context(), res, flags, args[1:])
			if err != nil {
				return err
			}
			defer v.coll.Close()

			out := cmd.OutOrStdout()
			if a.flags.jsonMode {
				return printJSON(out, v.shown)
			}
			if err := printTable(out, res.Columns, v.shown); err != nil {
				return err
			}
			summary := fmt.Sprintf("%d of %d shown", len(v.shown), v.total)
			if v.snap.Stale {
				summary += " (cached)"
			}
			fmt.Fprintln(out, summary)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
