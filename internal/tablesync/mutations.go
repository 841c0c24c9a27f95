package tablesync

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/courtside/pkg/types"
)

// CreateItem posts payload to the endpoint. In client-side mode the echoed
// record is appended and the total incremented; in server-side mode the
// collection is refetched.
func (c *Collection) CreateItem(ctx context.Context, payload types.Record) (types.Record, error) {
	resp, err := c.mutate(ctx, OpCreate, func(ctx context.Context) (*types.Response, error) {
		return c.client.Post(ctx, c.opts.Endpoint, types.RequestOptions{Data: payload})
	})
	if err != nil {
		return nil, err
	}

	rec, derr := decodeRecord(resp.Data)
	if c.opts.ServerSide || derr != nil {
		if derr != nil {
			c.log.Warn().Err(derr).Msg("create response unreadable, refetching")
		}
		c.refetchAfterMutation(ctx)
	} else {
		c.mu.Lock()
		c.upsertLocked(rec)
		c.mu.Unlock()
	}
	c.opts.Notifier.Notify(types.NoticeSuccess, fmt.Sprintf("Created %s", c.label(rec)))
	return rec, nil
}

// UpdateItem puts patch to endpoint/id and merges the echoed record into
// the matching local record.
func (c *Collection) UpdateItem(ctx context.Context, id string, patch types.Record) (types.Record, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	resp, err := c.mutate(ctx, OpUpdate, func(ctx context.Context) (*types.Response, error) {
		return c.client.Put(ctx, itemPath(c.opts.Endpoint, id), types.RequestOptions{Data: patch})
	})
	if err != nil {
		return nil, err
	}

	rec, derr := decodeRecord(resp.Data)
	if derr != nil {
		rec = patch.Clone()
	}
	if c.opts.ServerSide {
		c.refetchAfterMutation(ctx)
	} else {
		c.mu.Lock()
		if i := c.indexLocked(id); i >= 0 {
			c.data[i] = c.data[i].Merge(rec)
			rec = c.data[i].Clone()
		}
		c.mu.Unlock()
	}
	c.opts.Notifier.Notify(types.NoticeSuccess, fmt.Sprintf("Updated %s", c.label(rec)))
	return rec, nil
}

// DeleteItem deletes endpoint/id and removes the local record.
func (c *Collection) DeleteItem(ctx context.Context, id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	if _, err := c.mutate(ctx, OpDelete, func(ctx context.Context) (*types.Response, error) {
		return c.client.Delete(ctx, itemPath(c.opts.Endpoint, id), types.RequestOptions{})
	}); err != nil {
		return err
	}

	if c.opts.ServerSide {
		c.refetchAfterMutation(ctx)
	} else {
		c.mu.Lock()
		c.removeLocked(map[string]bool{id: true})
		c.mu.Unlock()
	}
	c.opts.Notifier.Notify(types.NoticeSuccess, fmt.Sprintf("Deleted %s %s", c.opts.Resource, id))
	return nil
}

// BulkDelete posts {ids} to endpoint/bulk-delete and removes every matching
// local record. An empty id list is a no-op.
func (c *Collection) BulkDelete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	set, err := idSet(ids)
	if err != nil {
		return err
	}
	body := map[string]any{"ids": c.wireIDs(ids)}
	if _, err := c.mutate(ctx, OpBulkDelete, func(ctx context.Context) (*types.Response, error) {
		return c.client.Post(ctx, c.opts.Endpoint+"/bulk-delete", types.RequestOptions{Data: body})
	}); err != nil {
		return err
	}

	if c.opts.ServerSide {
		c.refetchAfterMutation(ctx)
	} else {
		c.mu.Lock()
		c.removeLocked(set)
		c.mu.Unlock()
	}
	c.opts.Notifier.Notify(types.NoticeSuccess, fmt.Sprintf("Deleted %d %s", len(ids), c.opts.Resource))
	return nil
}

// BulkUpdate posts {ids, data} to endpoint/bulk-update. In client-side mode
// patch is applied to every matching local record; records the server
// echoes back are merged over the patched ones.
func (c *Collection) BulkUpdate(ctx context.Context, ids []string, patch types.Record) error {
	if len(ids) == 0 {
		return nil
	}
	set, err := idSet(ids)
	if err != nil {
		return err
	}
	body := map[string]any{"ids": c.wireIDs(ids), "data": patch}
	resp, err := c.mutate(ctx, OpBulkUpdate, func(ctx context.Context) (*types.Response, error) {
		return c.client.Post(ctx, c.opts.Endpoint+"/bulk-update", types.RequestOptions{Data: body})
	})
	if err != nil {
		return err
	}

	if c.opts.ServerSide {
		c.refetchAfterMutation(ctx)
	} else {
		echoed, _, derr := decodeList(resp.Data)
		if derr != nil {
			echoed = nil
		}
		c.mu.Lock()
		for i, r := range c.data {
			if set[r.ID()] {
				c.data[i] = r.Merge(patch)
			}
		}
		for _, e := range echoed {
			if id := e.ID(); set[id] {
				if i := c.indexLocked(id); i >= 0 {
					c.data[i] = c.data[i].Merge(e)
				}
			}
		}
		c.mu.Unlock()
	}
	c.opts.Notifier.Notify(types.NoticeSuccess, fmt.Sprintf("Updated %d %s", len(ids), c.opts.Resource))
	return nil
}

// mutate runs call with the loading flag raised. Failures are recorded,
// reported and returned.
func (c *Collection) mutate(ctx context.Context, op string, call func(context.Context) (*types.Response, error)) (*types.Response, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, types.ErrCollectionClosed
	}
	c.inflight++
	c.mu.Unlock()

	ctx, cancel := c.opContext(ctx)
	defer cancel()
	resp, err := call(ctx)
	if err == nil && resp == nil {
		resp = &types.Response{}
	}

	c.mu.Lock()
	c.inflight--
	if err != nil {
		c.err = err
	} else {
		c.err = nil
	}
	c.mu.Unlock()

	if err != nil {
		c.opts.Metrics.ObserveMutation(c.opts.Resource, op, types.OutcomeError)
		c.log.Error().Err(err).Str("op", op).Msg("mutation failed")
		c.opts.Notifier.Notify(types.NoticeError, fmt.Sprintf("Failed to %s %s: %s", verb(op), c.opts.Resource, userMessage(err)))
		return nil, err
	}
	c.opts.Metrics.ObserveMutation(c.opts.Resource, op, types.OutcomeSuccess)
	c.log.Debug().Str("op", op).Msg("mutation applied")
	return resp, nil
}

// refetchAfterMutation reloads after a successful write. Its failures are
// reported by Fetch and do not fail the mutation.
func (c *Collection) refetchAfterMutation(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		c.log.Debug().Err(err).Msg("refetch after mutation")
	}
}

// upsertLocked appends rec, or merges it when a record with the same id is
// already present. The total only grows for new records.
func (c *Collection) upsertLocked(rec types.Record) bool {
	if id := rec.ID(); id != "" {
		if i := c.indexLocked(id); i >= 0 {
			c.data[i] = c.data[i].Merge(rec)
			return false
		}
	}
	c.data = append(c.data, rec)
	c.total++
	return true
}

func (c *Collection) removeLocked(ids map[string]bool) int {
	kept := make([]types.Record, 0, len(c.data))
	for _, r := range c.data {
		if !ids[r.ID()] {
			kept = append(kept, r)
		}
	}
	removed := len(c.data) - len(kept)
	c.data = kept
	c.total -= removed
	if c.total < 0 {
		c.total = 0
	}
	return removed
}

func (c *Collection) indexLocked(id string) int {
	for i, r := range c.data {
		if r.ID() == id {
			return i
		}
	}
	return -1
}

// wireIDs returns ids in the JSON type the server used for them, so numeric
// ids are not sent as strings.
func (c *Collection) wireIDs(ids []string) []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
		if j := c.indexLocked(id); j >= 0 {
			out[i] = c.data[j][types.IDField]
		}
	}
	return out
}

func (c *Collection) label(rec types.Record) string {
	for _, key := range []string{"name", "title"} {
		if s, ok := rec[key].(string); ok && s != "" {
			return s
		}
	}
	if id := rec.ID(); id != "" {
		return c.opts.Resource + " " + id
	}
	return c.opts.Resource
}

func idSet(ids []string) (map[string]bool, error) {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" {
			return nil, types.ErrInvalidID
		}
		set[id] = true
	}
	return set, nil
}

func verb(op string) string {
	switch op {
	case OpCreate:
		return "create"
	case OpUpdate, OpBulkUpdate:
		return "update"
	case OpDelete, OpBulkDelete:
		return "delete"
	}
	return op
}
