// Package session owns the storage state machine: which backend is
// authoritative, the id allocator state, and the note operations that
// compose codec, backend, and allocator.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/kuitang/notevault/internal/document"
	"github.com/kuitang/notevault/internal/errs"
	"github.com/kuitang/notevault/internal/idalloc"
	"github.com/kuitang/notevault/internal/obs"
	"github.com/kuitang/notevault/internal/s3client"
	"github.com/kuitang/notevault/internal/storage"
)

// State is the session's backend selection state. Transitions happen only
// inside Setup; there is no automatic re-promotion from Offline to Online.
type State int

const (
	StateUninitialized State = iota
	StateOnline
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateOnline:
		return "online"
	case StateOffline:
		return "offline"
	default:
		return "uninitialized"
	}
}

// ClientFactory builds the S3 client Setup probes. main swaps in a
// gofakes3-backed factory under --no-s3.
type ClientFactory func(ctx context.Context, cfg s3client.Config) (*s3client.Client, error)

// Options configures a Session.
type Options struct {
	// LocalPath is the fallback document file.
	LocalPath string
	// ObjectKey is the document object's key inside the bucket.
	ObjectKey string
	// S3 is the base client configuration; Setup fills in the bucket.
	S3 s3client.Config
	// NewClient overrides the S3 client constructor. Defaults to s3client.New.
	NewClient ClientFactory
}

// SetupResult reports a setup outcome. Degraded outcomes are successes:
// the remote backend is unusable but the session works via the local file.
type SetupResult struct {
	Online bool
	// Code is one of the *_use_local codes on a degraded outcome, empty
	// when fully online.
	Code    errs.Code
	Message string
}

// Session orchestrates backend selection and the note operations.
// Construct with New and share one instance; a single mutex serializes
// every read-modify-write cycle, so concurrent requests cannot clobber
// each other in-process. Cross-process races against the remote object
// remain possible: there is no versioning or compare-and-swap.
type Session struct {
	mu      sync.Mutex
	state   State
	backend storage.Backend
	local   *storage.Local
	alloc   *idalloc.Allocator
	opts    Options
	log     *slog.Logger
}

// New creates an uninitialized session. Note operations fail with
// SetupRequired until Setup has run.
func New(opts Options) *Session {
	if opts.NewClient == nil {
		opts.NewClient = s3client.New
	}
	return &Session{
		state: StateUninitialized,
		local: storage.NewLocal(opts.LocalPath),
		alloc: idalloc.New(0, nil),
		opts:  opts,
		log:   obs.Pkg("session"),
	}
}

// State returns the current backend selection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Setup validates the bucket name, probes the remote backend, and picks
// the authoritative store. A reachable bucket (object created if missing)
// goes Online; every remote failure degrades to the local file with a code
// describing why. Metadata is ensured against the chosen backend before
// Setup returns.
func (s *Session) Setup(ctx context.Context, bucketName string) (SetupResult, error) {
	bucketName = strings.TrimSpace(bucketName)
	if bucketName == "" {
		return SetupResult{}, errs.New(errs.InvalidInput, "bucket name must be a non-empty string")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.opts.S3
	cfg.BucketName = bucketName

	client, err := s.opts.NewClient(ctx, cfg)
	if err != nil {
		return s.fallbackLocked(ctx, errs.ServerErrorUseLocal, err)
	}

	if err := client.EnsureObject(ctx, s.opts.ObjectKey); err != nil {
		switch {
		case errors.Is(err, s3client.ErrBucketNotFound):
			return s.fallbackLocked(ctx, errs.NotFoundUseLocal, err)
		case errors.Is(err, s3client.ErrPermissionDenied):
			return s.fallbackLocked(ctx, errs.PermissionDeniedUseLocal, err)
		default:
			return s.fallbackLocked(ctx, errs.ServerErrorUseLocal, err)
		}
	}

	s.state = StateOnline
	s.backend = storage.NewRemote(client, s.opts.ObjectKey)
	if err := s.ensureMetaLocked(ctx); err != nil {
		return SetupResult{}, err
	}
	s.log.Info("setup complete", "state", s.state.String(), "bucket", bucketName)
	return SetupResult{Online: true, Message: "remote storage ready"}, nil
}

// fallbackLocked transitions to Offline over the local file and reports a
// degraded success.
func (s *Session) fallbackLocked(ctx context.Context, code errs.Code, cause error) (SetupResult, error) {
	s.state = StateOffline
	s.backend = s.local
	if err := s.ensureMetaLocked(ctx); err != nil {
		return SetupResult{}, err
	}

	var message string
	switch code {
	case errs.NotFoundUseLocal:
		message = "bucket not found; using local storage"
	case errs.PermissionDeniedUseLocal:
		message = "permission denied by remote storage; using local storage"
	default:
		message = "remote storage unavailable; using local storage"
	}
	s.log.Warn("falling back to local storage", "code", string(code), "cause", cause)
	return SetupResult{Online: false, Code: code, Message: message}, nil
}

// ensureMetaLocked loads the active backend's document and either adopts
// its metadata into the allocator or injects a zeroed one and persists.
// This is the only path that seeds allocator state from durable storage.
func (s *Session) ensureMetaLocked(ctx context.Context) error {
	doc, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}
	if doc.HasMeta {
		s.alloc = idalloc.New(doc.Meta.IDCount, doc.Meta.OldIDs)
		return nil
	}
	s.alloc = idalloc.New(0, nil)
	return s.persistLocked(ctx, doc)
}

// HealthCheck is a read-only liveness probe. It never fails hard: the
// returned bool only distinguishes "set up" from "not set up".
func (s *Session) HealthCheck() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state == StateOnline && s.backend != nil:
		return true, "Server is responding. Setup has been run."
	case s.state == StateOffline && s.local.Exists():
		return true, "Server is responding. Setup has been run."
	default:
		return false, "Server is responding. Setup has not been run."
	}
}

// Add validates the fields, allocates an id, and persists the note.
func (s *Session) Add(ctx context.Context, title, content string) (int, error) {
	if strings.TrimSpace(title) == "" {
		return 0, errs.New(errs.InvalidInput, "title must be a non-empty string")
	}
	if strings.TrimSpace(content) == "" {
		return 0, errs.New(errs.InvalidInput, "content must be a non-empty string")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return 0, err
	}

	doc, err := s.loadLocked(ctx)
	if err != nil {
		return 0, err
	}

	count, free := s.alloc.Count(), s.alloc.Free()
	id := s.alloc.Allocate()
	doc.Put(id, document.Note{Title: title, Content: content})
	if err := s.persistLocked(ctx, doc); err != nil {
		// Keep allocator state equal to what is durably stored.
		s.alloc = idalloc.New(count, free)
		return 0, err
	}
	s.log.Info("note added", "id", id, "state", s.state.String())
	return id, nil
}

// Get returns the note with the given id.
func (s *Session) Get(ctx context.Context, id string) (document.Note, error) {
	noteID, err := parseID(id)
	if err != nil {
		return document.Note{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return document.Note{}, err
	}

	doc, err := s.loadLocked(ctx)
	if err != nil {
		return document.Note{}, err
	}
	note, ok := doc.Get(noteID)
	if !ok {
		return document.Note{}, errs.New(errs.NotFound, fmt.Sprintf("note %d does not exist", noteID))
	}
	return note, nil
}

// GetAll returns every note keyed by decimal id, metadata hidden.
func (s *Session) GetAll(ctx context.Context) (map[string]document.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return nil, err
	}

	doc, err := s.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Public(), nil
}

// Delete removes the note with the given id and releases the id for
// reuse. Deleting an id that does not exist is a success: the document
// already lacks it.
func (s *Session) Delete(ctx context.Context, id string) error {
	noteID, err := parseID(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return err
	}

	doc, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}
	if !doc.Delete(noteID) {
		return nil
	}

	count, free := s.alloc.Count(), s.alloc.Free()
	s.alloc.Release(noteID)
	if err := s.persistLocked(ctx, doc); err != nil {
		s.alloc = idalloc.New(count, free)
		return err
	}
	s.log.Info("note deleted", "id", noteID, "state", s.state.String())
	return nil
}

// readyLocked reports SetupRequired when no usable backend is bound.
func (s *Session) readyLocked() error {
	switch {
	case s.state == StateUninitialized || s.backend == nil:
		return errs.New(errs.SetupRequired, "setup has not been run")
	case s.state == StateOffline && !s.local.Exists():
		return errs.New(errs.SetupRequired, "setup has not been run")
	default:
		return nil
	}
}

func (s *Session) loadLocked(ctx context.Context) (*document.Document, error) {
	raw, err := s.backend.Fetch(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.ServerError, "failed to load notes", err)
	}
	return document.Decode(raw), nil
}

// persistLocked writes the document with refreshed metadata. Note data and
// metadata always land in the same write.
func (s *Session) persistLocked(ctx context.Context, doc *document.Document) error {
	doc.Meta = document.Meta{IDCount: s.alloc.Count(), OldIDs: s.alloc.Free()}
	doc.HasMeta = true

	data, err := doc.Encode(s.backend.Pretty())
	if err != nil {
		return errs.Wrap(errs.ServerError, "failed to encode notes", err)
	}
	if err := s.backend.Overwrite(ctx, data); err != nil {
		return errs.Wrap(errs.ServerError, "failed to save notes", err)
	}
	return nil
}

func parseID(id string) (int, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return 0, errs.New(errs.InvalidInput, "id is required")
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil || parsed < 0 {
		return 0, errs.New(errs.InvalidInput, "id must be a non-negative integer")
	}
	return parsed, nil
}
