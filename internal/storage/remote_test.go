package storage

import (
	"context"
	"testing"

	"github.com/kuitang/notevault/internal/s3client"
	"github.com/stretchr/testify/require"
)

func TestRemote_FetchMissingObjectIsEmpty(t *testing.T) {
	t.Parallel()
	client := s3client.TestClient(t, "notes-bucket")
	remote := NewRemote(client, "notes.json")

	data, err := remote.Fetch(context.Background())
	require.NoError(t, err)
	require.Empty(t, data)
}

func TestRemote_OverwriteFetchRoundTrip(t *testing.T) {
	t.Parallel()
	client := s3client.TestClient(t, "notes-bucket")
	remote := NewRemote(client, "notes.json")
	ctx := context.Background()

	require.NoError(t, remote.Overwrite(ctx, []byte(`{"_meta":{"id_count":0,"old_ids":[]}}`)))

	data, err := remote.Fetch(ctx)
	require.NoError(t, err)
	require.Equal(t, `{"_meta":{"id_count":0,"old_ids":[]}}`, string(data))
}
