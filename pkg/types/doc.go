// Package types defines the record model, the collaborator interfaces the
// courtside engines consume (REST client, pub/sub transport, keyed storage,
// notifier, metrics recorder), the client Config, and the standard errors.
package types
