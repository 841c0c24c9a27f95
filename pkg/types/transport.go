package types

import (
	"context"
	"encoding/json"
	"errors"
)

// Lifecycle events emitted by a Transport in addition to server events.
const (
	EventConnectionStatus = "connection_status"
	EventConnectionError  = "connection_error"
	EventReconnected      = "reconnected"
)

// ConnectionStatus is the payload of EventConnectionStatus.
type ConnectionStatus struct {
	Connected bool `json:"connected"`
}

// ConnectionError is the payload of EventConnectionError.
type ConnectionError struct {
	Attempt int    `json:"attempt"`
	Error   string `json:"error"`
}

// Reconnected is the payload of EventReconnected.
type Reconnected struct {
	Attempt int `json:"attempt"`
}

// Payload is the raw JSON body of one event.
type Payload = json.RawMessage

// Transport is a publish/subscribe channel. Every callback registered for an
// event fires on each inbound message for that event; no subscriber consumes
// a message on behalf of the others.
type Transport interface {
	// On registers fn for event and returns a function that removes it.
	On(event string, fn func(payload Payload)) (unsubscribe func())

	// Send publishes payload under event.
	Send(ctx context.Context, event string, payload any) error

	// Connected reports whether the underlying connection is up.
	Connected() bool
}

// Transport errors.
var ErrNotConnected = errors.New("transport is not connected")
