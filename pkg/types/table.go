package types

import (
	"context"
	"encoding/json"
	"errors"
)

// RequestOptions carries query parameters and an optional JSON body.
type RequestOptions struct {
	// Params are encoded into the query string.
	Params map[string]string

	// Data is marshalled as the JSON request body when non-nil.
	Data any
}

// Response is a successful REST reply.
type Response struct {
	Status int
	Data   json.RawMessage
}

// RESTClient provides the verbs a remote collection needs. Implementations
// return a non-nil error for transport failures and non-2xx statuses.
type RESTClient interface {
	Get(ctx context.Context, path string, opts RequestOptions) (*Response, error)
	Post(ctx context.Context, path string, opts RequestOptions) (*Response, error)
	Put(ctx context.Context, path string, opts RequestOptions) (*Response, error)
	Patch(ctx context.Context, path string, opts RequestOptions) (*Response, error)
	Delete(ctx context.Context, path string, opts RequestOptions) (*Response, error)
}

// Remote collection errors.
var (
	ErrUnrecognizedResponse = errors.New("unrecognized response shape")
	ErrCollectionClosed     = errors.New("collection is closed")
	ErrInvalidID            = errors.New("invalid record ID")
	ErrSuperseded           = errors.New("response superseded by a newer request")
	ErrUnknownResource      = errors.New("unknown resource")
)
