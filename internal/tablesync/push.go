package tablesync

import (
	"bytes"

	json "github.com/goccy/go-json"

	"github.com/mesh-intelligence/courtside/pkg/types"
)

// Push message kinds.
const (
	PushCreate  = "create"
	PushUpdate  = "update"
	PushDelete  = "delete"
	PushRefresh = "refresh"
)

// PushMessage is the envelope delivered on a collection topic.
type PushMessage struct {
	Type string        `json:"type"`
	Data types.Payload `json:"data"`
}

// handlePush applies a delta to local data. Deltas are applied only while
// the transport reports a live connection and never raise the loading flag.
func (c *Collection) handlePush(payload types.Payload) {
	if c.opts.Transport == nil || !c.opts.Transport.Connected() {
		return
	}
	var msg PushMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.log.Warn().Err(err).Msg("malformed push message")
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	applied := true
	switch msg.Type {
	case PushCreate:
		rec, err := decodeRecord(msg.Data)
		if err != nil {
			applied = false
			break
		}
		c.upsertLocked(rec)
	case PushUpdate:
		rec, err := decodeRecord(msg.Data)
		if err != nil {
			applied = false
			break
		}
		if i := c.indexLocked(rec.ID()); i >= 0 {
			c.data[i] = c.data[i].Merge(rec)
		}
	case PushDelete:
		id := decodeID(msg.Data)
		if id == "" {
			applied = false
			break
		}
		c.removeLocked(map[string]bool{id: true})
	case PushRefresh:
	default:
		applied = false
	}
	c.mu.Unlock()

	if !applied {
		c.log.Warn().Str("type", msg.Type).Msg("ignoring push message")
		return
	}
	c.opts.Metrics.ObservePush(c.opts.Resource, msg.Type)
	c.log.Debug().Str("type", msg.Type).Msg("push applied")
	if msg.Type == PushRefresh {
		c.spawn(func() { _ = c.Refresh(c.base) })
	}
}

// decodeID reads a pushed delete target: a bare id or a record carrying one.
func decodeID(raw []byte) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	if m, ok := v.(map[string]any); ok {
		return types.IDString(m[types.IDField])
	}
	return types.IDString(v)
}
