// Package datastore provides the bot's document store.
//
// A [Store] exposes a minimal document API (FindOne, Find, InsertOne,
// UpdateOne) over named collections. It runs in one of two modes, picked
// once at startup: "remote", backed by MongoDB (or a gorm-backed SQL
// database), or "local", backed by JSON files on disk. Documents buffered
// locally can later be migrated to a remote backend with
// [Store.SyncToRemote].
package datastore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"
)

// IDField is the implicit identifier field of every stored document.
const IDField = "_id"

const (
	CollectionServerSettings = "server_settings"
	CollectionQuestions      = "preguntas"
	CollectionLogs           = "logs"
	CollectionConfig         = "config"
)

const (
	BackendMongoDB  = "mongodb"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"

	DefaultDatabaseName     = "discord_bot"
	DefaultLocalDir         = "data"
	DefaultConnectTimeout   = 5 * time.Second
	DefaultOperationTimeout = 30 * time.Second
	DefaultSlowThreshold    = 200 * time.Millisecond
	DefaultLogLevel         = slog.LevelInfo
)

// DefaultCollections are created on the remote backend when connecting.
var DefaultCollections = []string{
	CollectionServerSettings,
	CollectionQuestions,
	CollectionLogs,
	CollectionConfig,
}

var collectionNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

var (
	// ErrConnectivity means the remote backend could not be reached or
	// rejected the connection.
	ErrConnectivity = errors.New("remote store unreachable")

	// ErrStorageUnavailable means a read or write could not complete on
	// the active backend.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrMalformedLocalState means an on-disk collection file could not
	// be parsed.
	ErrMalformedLocalState = errors.New("malformed local state")

	// ErrDuplicateID is returned when inserting a document whose _id is
	// already present in the collection.
	ErrDuplicateID = errors.New("duplicate document id")

	ErrInvalidArgument = errors.New("invalid argument")
)

// Document is a schemaless record. Values must be JSON-compatible.
type Document map[string]any

// ID returns the document's identifier, if it has a string one.
func (d Document) ID() (string, bool) {
	if d == nil {
		return "", false
	}
	id, ok := d[IDField].(string)
	return id, ok && id != ""
}

// Patch is a field-level overwrite applied by UpdateOne.
type Patch struct {
	Set Document `json:"$set"`
}

// UpdateResult reports how many documents an UpdateOne call matched and
// changed.
type UpdateResult struct {
	MatchedCount  int64 `json:"matched_count"`
	ModifiedCount int64 `json:"modified_count"`
}

// Mode is the persistence mode of a [Store].
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

func (m Mode) String() string {
	return string(m)
}

// Backend is the document API every storage implementation provides.
//
// FindOne returns a nil Document when nothing matches.
type Backend interface {
	FindOne(ctx context.Context, collection string, query Document) (Document, error)
	Find(ctx context.Context, collection string, query Document) ([]Document, error)
	InsertOne(ctx context.Context, collection string, doc Document) (string, error)
	UpdateOne(
		ctx context.Context,
		collection string,
		query Document,
		patch Patch,
	) (UpdateResult, error)
	Close(ctx context.Context) error
}

// RemoteBackend is a Backend that local documents can be migrated to.
type RemoteBackend interface {
	Backend

	// UpsertOne writes doc keyed by its _id, creating it if absent and
	// overwriting the given fields if present.
	UpsertOne(ctx context.Context, collection string, doc Document) error

	// EnsureCollections creates any of the named collections that
	// don't exist yet.
	EnsureCollections(ctx context.Context, names ...string) error

	Name() string
}

// StorageError wraps a failed operation on a collection.
type StorageError struct {
	Op         string
	Collection string
	Err        error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is reports StorageError as ErrStorageUnavailable unless the wrapped
// error is one of the more specific kinds.
func (e *StorageError) Is(target error) bool {
	if target != ErrStorageUnavailable {
		return false
	}
	return !errors.Is(e.Err, ErrDuplicateID) &&
		!errors.Is(e.Err, ErrInvalidArgument) &&
		!errors.Is(e.Err, ErrMalformedLocalState)
}

// ConnectivityError is returned when a remote backend can't be reached.
type ConnectivityError struct {
	Backend string
	Err     error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("connecting to %s: %v", e.Backend, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

func (*ConnectivityError) Is(target error) bool {
	return target == ErrConnectivity
}

// SyncError is returned by [Store.SyncToRemote] when a document could not
// be written to the remote backend. Local state is left untouched.
type SyncError struct {
	Collection string
	ID         string
	Err        error
}

func (e *SyncError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("sync %s: %v", e.Collection, e.Err)
	}
	return fmt.Sprintf("sync %s/%s: %v", e.Collection, e.ID, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

func storageErr(op, collection string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Collection: collection, Err: err}
}

func validateCollection(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name %q", ErrInvalidArgument, name)
	}
	return nil
}
