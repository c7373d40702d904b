package storage

import (
	"context"
	"errors"

	"github.com/kuitang/notevault/internal/s3client"
)

// Remote stores the document as a single object in an S3-compatible bucket.
type Remote struct {
	client *s3client.Client
	key    string
}

// NewRemote creates a remote backend for the given object key.
func NewRemote(client *s3client.Client, key string) *Remote {
	return &Remote{client: client, key: key}
}

// Fetch downloads the object's full content. A missing object is a valid
// empty state, not an error.
func (r *Remote) Fetch(ctx context.Context) ([]byte, error) {
	data, err := r.client.GetObject(ctx, r.key)
	if errors.Is(err, s3client.ErrObjectNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Overwrite replaces the object's full content.
func (r *Remote) Overwrite(ctx context.Context, data []byte) error {
	return r.client.PutObject(ctx, r.key, data)
}

// Pretty reports compact output for the remote object.
func (r *Remote) Pretty() bool {
	return false
}
