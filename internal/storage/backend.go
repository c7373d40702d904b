// Package storage abstracts where the note document lives. Exactly one
// backend is authoritative at a time: a remote S3 object when the bucket
// is reachable, or a local file otherwise.
package storage

import "context"

// Backend reads and replaces the single document in one place.
// Fetch treats a missing or empty document as a valid state, not an error.
// Overwrite replaces the full content; there is no partial update.
type Backend interface {
	Fetch(ctx context.Context) ([]byte, error)
	Overwrite(ctx context.Context, data []byte) error
	// Pretty reports whether stored JSON should be indented.
	// The local file is kept human-readable; the remote object is compact.
	Pretty() bool
}
