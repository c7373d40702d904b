package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kuitang/notevault/internal/document"
	"github.com/kuitang/notevault/internal/errs"
	"github.com/kuitang/notevault/internal/s3client"
	"github.com/stretchr/testify/require"
)

const testBucket = "notes-bucket"

// newTestSession returns a session wired to a fresh gofakes3 endpoint and
// an isolated local file. No buckets exist until the test creates them.
func newTestSession(t *testing.T) (*Session, string) {
	t.Helper()
	endpoint := s3client.TestServer(t)
	sess := New(Options{
		LocalPath: filepath.Join(t.TempDir(), "local_notes.json"),
		ObjectKey: "notes.json",
		S3:        s3client.TestConfig(endpoint, ""),
	})
	return sess, endpoint
}

func newOnlineSession(t *testing.T) *Session {
	t.Helper()
	sess, endpoint := newTestSession(t)
	s3client.TestCreateBucket(t, endpoint, testBucket)

	result, err := sess.Setup(context.Background(), testBucket)
	require.NoError(t, err)
	require.True(t, result.Online)
	return sess
}

func requireCode(t *testing.T, err error, code errs.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, errs.CodeOf(err))
}

func TestSetup_InvalidBucketName(t *testing.T) {
	t.Parallel()
	sess, _ := newTestSession(t)

	for _, bucket := range []string{"", "   ", "\t\n"} {
		_, err := sess.Setup(context.Background(), bucket)
		requireCode(t, err, errs.InvalidInput)
	}
	// A failed validation does not change state.
	require.Equal(t, StateUninitialized, sess.State())
}

func TestSetup_OnlineCreatesObjectAndMeta(t *testing.T) {
	t.Parallel()
	sess, endpoint := newTestSession(t)
	s3client.TestCreateBucket(t, endpoint, testBucket)

	result, err := sess.Setup(context.Background(), testBucket)
	require.NoError(t, err)
	require.True(t, result.Online)
	require.Equal(t, StateOnline, sess.State())

	// The object now exists and carries zeroed metadata.
	client, err := s3client.New(context.Background(), s3client.TestConfig(endpoint, testBucket))
	require.NoError(t, err)
	raw, err := client.GetObject(context.Background(), "notes.json")
	require.NoError(t, err)
	doc := document.Decode(raw)
	require.True(t, doc.HasMeta)
	require.Equal(t, 0, doc.Meta.IDCount)
	require.Empty(t, doc.Meta.OldIDs)
}

func TestSetup_BucketNotFoundFallsBackToLocal(t *testing.T) {
	t.Parallel()
	sess, _ := newTestSession(t)

	result, err := sess.Setup(context.Background(), "nonexistent-bucket")
	require.NoError(t, err)
	require.False(t, result.Online)
	require.Equal(t, errs.NotFoundUseLocal, result.Code)
	require.Equal(t, StateOffline, sess.State())

	// The session remains usable: notes persist to the local file.
	id, err := sess.Add(context.Background(), "t", "c")
	require.NoError(t, err)
	require.Equal(t, 0, id)

	note, err := sess.Get(context.Background(), "0")
	require.NoError(t, err)
	require.Equal(t, document.Note{Title: "t", Content: "c"}, note)
}

func TestSetup_PermissionDeniedFallsBackToLocal(t *testing.T) {
	t.Parallel()
	denying := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`))
	}))
	t.Cleanup(denying.Close)

	sess := New(Options{
		LocalPath: filepath.Join(t.TempDir(), "local_notes.json"),
		ObjectKey: "notes.json",
		S3:        s3client.TestConfig(denying.URL, ""),
	})

	result, err := sess.Setup(context.Background(), "forbidden-bucket")
	require.NoError(t, err)
	require.False(t, result.Online)
	require.Equal(t, errs.PermissionDeniedUseLocal, result.Code)
	require.Equal(t, StateOffline, sess.State())
}

func TestSetup_ClientErrorFallsBackToLocal(t *testing.T) {
	t.Parallel()
	sess := New(Options{
		LocalPath: filepath.Join(t.TempDir(), "local_notes.json"),
		ObjectKey: "notes.json",
		NewClient: func(ctx context.Context, cfg s3client.Config) (*s3client.Client, error) {
			return nil, errors.New("dial tcp: connection refused")
		},
	})

	result, err := sess.Setup(context.Background(), "some-bucket")
	require.NoError(t, err)
	require.False(t, result.Online)
	require.Equal(t, errs.ServerErrorUseLocal, result.Code)
	require.Equal(t, StateOffline, sess.State())
}

func TestNoteLifecycle_Scenario(t *testing.T) {
	t.Parallel()
	sess := newOnlineSession(t)
	ctx := context.Background()

	id, err := sess.Add(ctx, "Title", "Body")
	require.NoError(t, err)
	require.Equal(t, 0, id)

	note, err := sess.Get(ctx, "0")
	require.NoError(t, err)
	require.Equal(t, document.Note{Title: "Title", Content: "Body"}, note)

	require.NoError(t, sess.Delete(ctx, "0"))

	_, err = sess.Get(ctx, "0")
	requireCode(t, err, errs.NotFound)
}

func TestAdd_Validation(t *testing.T) {
	t.Parallel()
	sess := newOnlineSession(t)
	ctx := context.Background()

	cases := [][2]string{
		{"", "x"},
		{"x", ""},
		{"   ", "x"},
		{"x", "\t\n"},
	}
	for _, tc := range cases {
		_, err := sess.Add(ctx, tc[0], tc[1])
		requireCode(t, err, errs.InvalidInput)
	}
}

func TestGetDelete_IDValidation(t *testing.T) {
	t.Parallel()
	sess := newOnlineSession(t)
	ctx := context.Background()

	for _, id := range []string{"-1", "abc", "", "1.5", "0x10"} {
		_, err := sess.Get(ctx, id)
		requireCode(t, err, errs.InvalidInput)
		requireCode(t, sess.Delete(ctx, id), errs.InvalidInput)
	}
}

func TestDelete_Idempotent(t *testing.T) {
	t.Parallel()
	sess := newOnlineSession(t)
	ctx := context.Background()

	_, err := sess.Add(ctx, "keep", "me")
	require.NoError(t, err)

	// Deleting a nonexistent id twice succeeds both times and never
	// changes the note count.
	require.NoError(t, sess.Delete(ctx, "42"))
	require.NoError(t, sess.Delete(ctx, "42"))

	notes, err := sess.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)
}

func TestIDReuse_FIFO(t *testing.T) {
	t.Parallel()
	sess := newOnlineSession(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := sess.Add(ctx, "title", "content")
		require.NoError(t, err)
	}

	require.NoError(t, sess.Delete(ctx, "3"))
	require.NoError(t, sess.Delete(ctx, "5"))

	first, err := sess.Add(ctx, "reuse", "one")
	require.NoError(t, err)
	second, err := sess.Add(ctx, "reuse", "two")
	require.NoError(t, err)

	// Oldest freed id comes back first.
	require.Equal(t, 3, first)
	require.Equal(t, 5, second)
}

func TestGetAll_HidesMeta(t *testing.T) {
	t.Parallel()
	sess := newOnlineSession(t)
	ctx := context.Background()

	// ensureMeta has just persisted _meta; it must still be hidden.
	notes, err := sess.GetAll(ctx)
	require.NoError(t, err)
	require.NotContains(t, notes, document.MetaKey)
	require.Empty(t, notes)

	_, err = sess.Add(ctx, "a", "b")
	require.NoError(t, err)

	notes, err = sess.GetAll(ctx)
	require.NoError(t, err)
	require.NotContains(t, notes, document.MetaKey)
	require.Len(t, notes, 1)
}

func TestOperations_RequireSetup(t *testing.T) {
	t.Parallel()
	sess, _ := newTestSession(t)
	ctx := context.Background()

	_, err := sess.Add(ctx, "t", "c")
	requireCode(t, err, errs.SetupRequired)
	_, err = sess.Get(ctx, "0")
	requireCode(t, err, errs.SetupRequired)
	_, err = sess.GetAll(ctx)
	requireCode(t, err, errs.SetupRequired)
	requireCode(t, sess.Delete(ctx, "0"), errs.SetupRequired)
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()
	sess, endpoint := newTestSession(t)

	ready, _ := sess.HealthCheck()
	require.False(t, ready)

	s3client.TestCreateBucket(t, endpoint, testBucket)
	_, err := sess.Setup(context.Background(), testBucket)
	require.NoError(t, err)

	ready, message := sess.HealthCheck()
	require.True(t, ready)
	require.Contains(t, message, "Setup has been run")
}

func TestHealthCheck_OfflineWithMissingFile(t *testing.T) {
	t.Parallel()
	localPath := filepath.Join(t.TempDir(), "local_notes.json")
	sess := New(Options{
		LocalPath: localPath,
		ObjectKey: "notes.json",
		S3:        s3client.TestConfig(s3client.TestServer(t), ""),
	})

	_, err := sess.Setup(context.Background(), "nonexistent-bucket")
	require.NoError(t, err)

	ready, _ := sess.HealthCheck()
	require.True(t, ready)

	// Removing the fallback file demotes the session to "not set up".
	require.NoError(t, os.Remove(localPath))
	ready, _ = sess.HealthCheck()
	require.False(t, ready)

	_, err = sess.Add(context.Background(), "t", "c")
	requireCode(t, err, errs.SetupRequired)
}

func TestMetaSurvivesRestart(t *testing.T) {
	t.Parallel()
	endpoint := s3client.TestServer(t)
	s3client.TestCreateBucket(t, endpoint, testBucket)
	ctx := context.Background()

	opts := Options{
		LocalPath: filepath.Join(t.TempDir(), "local_notes.json"),
		ObjectKey: "notes.json",
		S3:        s3client.TestConfig(endpoint, ""),
	}

	first := New(opts)
	_, err := first.Setup(ctx, testBucket)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := first.Add(ctx, "title", "content")
		require.NoError(t, err)
	}
	require.NoError(t, first.Delete(ctx, "1"))

	// A new session against the same bucket picks up the persisted
	// counter and recycle queue.
	second := New(opts)
	_, err = second.Setup(ctx, testBucket)
	require.NoError(t, err)

	id, err := second.Add(ctx, "reused", "id")
	require.NoError(t, err)
	require.Equal(t, 1, id)

	id, err = second.Add(ctx, "fresh", "id")
	require.NoError(t, err)
	require.Equal(t, 3, id)
}

func TestLocalDocumentIsIndented(t *testing.T) {
	t.Parallel()
	localPath := filepath.Join(t.TempDir(), "local_notes.json")
	sess := New(Options{
		LocalPath: localPath,
		ObjectKey: "notes.json",
		S3:        s3client.TestConfig(s3client.TestServer(t), ""),
	})
	ctx := context.Background()

	_, err := sess.Setup(ctx, "nonexistent-bucket")
	require.NoError(t, err)
	_, err = sess.Add(ctx, "t", "c")
	require.NoError(t, err)

	raw, err := os.ReadFile(localPath)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(raw), "\n  "), "local file should be indented: %s", raw)
}

func TestRemoteDocumentIsCompact(t *testing.T) {
	t.Parallel()
	endpoint := s3client.TestServer(t)
	s3client.TestCreateBucket(t, endpoint, testBucket)
	sess := New(Options{
		LocalPath: filepath.Join(t.TempDir(), "local_notes.json"),
		ObjectKey: "notes.json",
		S3:        s3client.TestConfig(endpoint, ""),
	})
	ctx := context.Background()

	_, err := sess.Setup(ctx, testBucket)
	require.NoError(t, err)
	_, err = sess.Add(ctx, "t", "c")
	require.NoError(t, err)

	client, err := s3client.New(ctx, s3client.TestConfig(endpoint, testBucket))
	require.NoError(t, err)
	raw, err := client.GetObject(ctx, "notes.json")
	require.NoError(t, err)
	require.NotContains(t, string(raw), "\n")
}

func TestCorruptedRemoteDocumentDegradesToEmpty(t *testing.T) {
	t.Parallel()
	endpoint := s3client.TestServer(t)
	s3client.TestCreateBucket(t, endpoint, testBucket)
	ctx := context.Background()

	client, err := s3client.New(ctx, s3client.TestConfig(endpoint, testBucket))
	require.NoError(t, err)
	require.NoError(t, client.PutObject(ctx, "notes.json", []byte(`{"0": {"title": "trunca`)))

	sess := New(Options{
		LocalPath: filepath.Join(t.TempDir(), "local_notes.json"),
		ObjectKey: "notes.json",
		S3:        s3client.TestConfig(endpoint, ""),
	})
	result, err := sess.Setup(ctx, testBucket)
	require.NoError(t, err)
	require.True(t, result.Online)

	notes, err := sess.GetAll(ctx)
	require.NoError(t, err)
	require.Empty(t, notes)

	// The next mint starts from zero again: corruption reset everything.
	id, err := sess.Add(ctx, "fresh", "start")
	require.NoError(t, err)
	require.Equal(t, 0, id)
}
