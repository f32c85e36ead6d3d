package datastore

import (
	"context"
	"errors"
	"fmt"
	"github.com/lmittmann/tint"
	"log/slog"
	"sync"
	"time"
)

// Store is the document store used by the bot. Its mode is fixed when it
// is opened; a local store only becomes remote through SyncToRemote.
//
// Store is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	mode    Mode
	backend Backend
	local   *LocalBackend

	operationTimeout time.Duration
	logger           *slog.Logger
}

// Open picks the store's mode. With a remote configured, it connects
// within cfg.ConnectTimeout and ensures the default collections exist;
// if that fails for any reason, or no remote is configured, the store
// starts in local mode, loading whatever is already in cfg.LocalDir.
//
// Open only returns an error when the local directory is unusable.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(loggerNameKey, "datastore")

	if cfg.RemoteConfigured() {
		remote, err := Connect(ctx, cfg, logger)
		if err == nil {
			logger.InfoContext(
				ctx,
				"connected to remote store",
				"backend", remote.Name(),
				"mode", ModeRemote,
			)
			s := NewStore(remote, ModeRemote, logger)
			s.operationTimeout = cfg.OperationTimeout
			return s, nil
		}
		logger.WarnContext(
			ctx,
			"remote store unavailable, using local storage",
			"backend", cfg.BackendType(),
			tint.Err(err),
		)
	} else {
		logger.InfoContext(ctx, "no remote store configured, using local storage")
	}

	local, err := NewLocalBackend(cfg.LocalDir, logger)
	if err != nil {
		return nil, err
	}
	s := NewStore(local, ModeLocal, logger)
	s.operationTimeout = cfg.OperationTimeout
	logger.InfoContext(ctx, "using local store", "dir", cfg.LocalDir, "mode", ModeLocal)
	return s, nil
}

// Connect opens the remote backend described by cfg, bounded by
// cfg.ConnectTimeout, and ensures the default collections exist. Any
// failure is returned as a *ConnectivityError.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (RemoteBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	backendType := cfg.BackendType()
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var backend RemoteBackend
	switch backendType {
	case BackendMongoDB:
		m, err := ConnectMongo(ctx, cfg.URI, cfg.databaseName(), timeout, logger)
		if err != nil {
			return nil, &ConnectivityError{Backend: backendType, Err: err}
		}
		backend = m
	case BackendPostgres, BackendSQLite:
		s, err := OpenSQL(ctx, backendType, cfg.URI, logger, cfg.SlowThreshold)
		if err != nil {
			return nil, &ConnectivityError{Backend: backendType, Err: err}
		}
		backend = s
	default:
		return nil, &ConnectivityError{
			Backend: backendType,
			Err:     fmt.Errorf("%w: unsupported backend type", ErrInvalidArgument),
		}
	}

	if err := backend.EnsureCollections(ctx, DefaultCollections...); err != nil {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), timeout)
		defer closeCancel()
		_ = backend.Close(closeCtx)
		return nil, &ConnectivityError{Backend: backendType, Err: err}
	}
	return backend, nil
}

// NewStore wraps an already-open backend. A *LocalBackend passed with
// ModeLocal is the buffer SyncToRemote migrates from.
func NewStore(backend Backend, mode Mode, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		mode:             mode,
		backend:          backend,
		operationTimeout: DefaultOperationTimeout,
		logger:           logger,
	}
	if local, ok := backend.(*LocalBackend); ok && mode == ModeLocal {
		s.local = local
	}
	return s
}

func (s *Store) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Backend returns the active backend.
func (s *Store) Backend() Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend
}

// Pending returns the number of locally buffered documents per
// collection. It's empty in remote mode.
func (s *Store) Pending() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pending := map[string]int{}
	if s.local == nil {
		return pending
	}
	for name, docs := range s.local.Snapshot() {
		pending[name] = len(docs)
	}
	return pending
}

func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || s.operationTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.operationTimeout)
}

// FindOne returns the first document in collection matching query, or
// nil if there is none. An empty query matches nothing.
func (s *Store) FindOne(ctx context.Context, collection string, query Document) (Document, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	if len(query) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	return s.backend.FindOne(ctx, collection, query)
}

// Find returns every document in collection matching query. An empty
// query returns the whole collection.
func (s *Store) Find(ctx context.Context, collection string, query Document) ([]Document, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	return s.backend.Find(ctx, collection, query)
}

// InsertOne stores doc, assigning an _id if it has none, and returns the
// document's id.
func (s *Store) InsertOne(ctx context.Context, collection string, doc Document) (string, error) {
	if err := validateCollection(collection); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	id, err := s.backend.InsertOne(ctx, collection, doc)
	if err != nil {
		s.logger.ErrorContext(ctx, "insert failed", "collection", collection, "mode", s.mode, tint.Err(err))
	}
	return id, err
}

// UpdateOne overwrites the fields in patch.Set on the first document
// matching query. Like FindOne, an empty query matches nothing.
func (s *Store) UpdateOne(
	ctx context.Context,
	collection string,
	query Document,
	patch Patch,
) (UpdateResult, error) {
	if err := validateCollection(collection); err != nil {
		return UpdateResult{}, err
	}
	if _, ok := patch.Set[IDField]; ok {
		return UpdateResult{}, fmt.Errorf("%w: %s can't be updated", ErrInvalidArgument, IDField)
	}
	if len(query) == 0 {
		return UpdateResult{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	rv, err := s.backend.UpdateOne(ctx, collection, query, patch)
	if err != nil {
		s.logger.ErrorContext(ctx, "update failed", "collection", collection, "mode", s.mode, tint.Err(err))
	}
	return rv, err
}

// SyncReport summarizes a completed SyncToRemote.
type SyncReport struct {
	Backend   string         `json:"backend"`
	Migrated  map[string]int `json:"migrated"`
	Skipped   map[string]int `json:"skipped"`
	Documents int            `json:"documents"`
}

// SyncToRemote migrates every locally buffered document to remote and,
// once all of them are written, clears local state and switches the
// store to remote mode. Documents are upserted by _id; a document
// without one is inserted unless an identical document already exists.
//
// The first failure aborts the sync and leaves local state untouched.
// Writes that already reached remote before the failure are kept, and
// are overwritten (not duplicated) by the next attempt. Calling it on a
// store that is already remote is a no-op.
func (s *Store) SyncToRemote(ctx context.Context, remote RemoteBackend) (SyncReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := SyncReport{Migrated: map[string]int{}, Skipped: map[string]int{}}
	if remote == nil {
		return report, fmt.Errorf("%w: no remote backend", ErrInvalidArgument)
	}
	report.Backend = remote.Name()
	if s.mode == ModeRemote {
		return report, nil
	}

	snapshot := map[string][]Document{}
	var names []string
	if s.local != nil {
		snapshot = s.local.Snapshot()
		names = s.local.Collections()
	}

	logger := s.logger.With("backend", remote.Name())
	logger.InfoContext(ctx, "syncing local documents to remote", "collections", len(names))

	for _, name := range names {
		for _, doc := range snapshot[name] {
			if err := ctx.Err(); err != nil {
				return report, &SyncError{Collection: name, Err: err}
			}
			id, hasID := doc.ID()
			if hasID {
				if err := remote.UpsertOne(ctx, name, doc); err != nil {
					logger.ErrorContext(ctx, "sync aborted", "collection", name, "id", id, tint.Err(err))
					return report, &SyncError{Collection: name, ID: id, Err: err}
				}
				report.Migrated[name]++
				report.Documents++
				continue
			}

			existing, err := remote.FindOne(ctx, name, doc)
			if err != nil {
				logger.ErrorContext(ctx, "sync aborted", "collection", name, tint.Err(err))
				return report, &SyncError{Collection: name, Err: err}
			}
			if existing != nil {
				report.Skipped[name]++
				continue
			}
			if _, err = remote.InsertOne(ctx, name, doc); err != nil {
				logger.ErrorContext(ctx, "sync aborted", "collection", name, tint.Err(err))
				return report, &SyncError{Collection: name, Err: err}
			}
			report.Migrated[name]++
			report.Documents++
		}
	}

	if s.local != nil {
		if err := s.local.Clear(); err != nil {
			logger.WarnContext(ctx, "error removing local files after sync", tint.Err(err))
		}
	}
	previous := s.backend
	s.backend = remote
	s.mode = ModeRemote
	s.local = nil
	if previous != nil {
		_ = previous.Close(ctx)
	}
	logger.InfoContext(ctx, "sync complete", "documents", report.Documents, "mode", s.mode)
	return report, nil
}

// Close releases the active backend.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backend == nil {
		return nil
	}
	err := s.backend.Close(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
