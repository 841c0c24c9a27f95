package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/courtside/internal/federation"
	"github.com/mesh-intelligence/courtside/internal/tablesync"
	"github.com/mesh-intelligence/courtside/pkg/types"
)

// cacheInfo describes one cached collection.
type cacheInfo struct {
	Key      string    `json:"key"`
	Resource string    `json:"resource"`
	Records  int       `json:"records"`
	Total    int       `json:"total"`
	CachedAt time.Time `json:"cached_at"`
	Valid    bool      `json:"valid"`
}

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the offline cache",
	}
	cmd.AddCommand(newCacheListCmd(a), newCacheClearCmd(a))
	return cmd
}

func newCacheListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			infos, err := a.cacheInfos()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.flags.jsonMode {
				return printJSON(out, infos)
			}
			if len(infos) == 0 {
				fmt.Fprintln(out, "Cache is empty")
				return nil
			}
			rows := make([]types.Record, len(infos))
			for i, info := range infos {
				cachedAt := ""
				if info.Valid {
					cachedAt = info.CachedAt.Local().Format(time.DateTime)
				}
				rows[i] = types.Record{
					"resource":  info.Resource,
					"records":   strconv.Itoa(info.Records),
					"total":     strconv.Itoa(info.Total),
					"cached_at": cachedAt,
					"valid":     strconv.FormatBool(info.Valid),
				}
			}
			return printTable(out, []string{"resource", "records", "total", "cached_at", "valid"}, rows)
		},
	}
}

func newCacheClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:               "clear [resource]",
		Short:             "Remove cached collections",
		Long:              "Clear removes the cached copy of one resource, or of every resource when none is named.",
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: resourceArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			var keys []string
			if len(args) == 1 {
				res, err := lookupResource(args[0])
				if err != nil {
					return err
				}
				if _, err := store.GetItem(res.CacheKey); err == nil {
					keys = []string{res.CacheKey}
				}
			} else {
				keys, err = store.Keys(federation.CacheKeyPrefix)
				if err != nil {
					return sysErrorf("list cache keys: %w", err)
				}
			}
			for _, k := range keys {
				if err := store.RemoveItem(k); err != nil {
					return sysErrorf("clear %s: %w", k, err)
				}
			}
			a.log.Info().Int("entries", len(keys)).Msg("cache cleared")
			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), map[string]any{"cleared": len(keys)})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d cache entries\n", len(keys))
			return nil
		},
	}
}

func (a *app) cacheInfos() ([]cacheInfo, error) {
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	keys, err := store.Keys(federation.CacheKeyPrefix)
	if err != nil {
		return nil, sysErrorf("list cache keys: %w", err)
	}
	infos := make([]cacheInfo, 0, len(keys))
	for _, k := range keys {
		info := cacheInfo{Key: k, Resource: strings.TrimPrefix(k, federation.CacheKeyPrefix)}
		if entry, ok := tablesync.ReadCache(store, k); ok {
			info.Records = len(entry.Data)
			info.Total = entry.Metadata.Total
			info.CachedAt = entry.Timestamp
			info.Valid = true
		}
		infos = append(infos, info)
	}
	return infos, nil
}
