package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/lmittmann/tint"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const (
	localFileExt       = ".json"
	corruptFileSuffix  = ".corrupt"
	localFileMode      = 0o644
	localDirectoryMode = 0o755

	// ProvisionalFile is the single-file layout of the previous bot,
	// {"<collection>": [documents]}. It's imported into per-collection
	// files the first time the directory is opened.
	ProvisionalFile    = "provisional_data.json"
	importedFileSuffix = ".imported"
)

// NewID returns a new document identifier: the hex form of a MongoDB
// ObjectID, so locally-created documents keep the same id shape once
// they're migrated.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

// LocalBackend keeps collections in memory, mirroring each one to a
// JSON file in dir. With an empty dir, nothing is written to disk.
//
// Layout:
//
//	dir/
//	  server_settings.json
//	  logs.json
//
// Each file holds a JSON array of documents in insertion order.
type LocalBackend struct {
	dir    string
	logger *slog.Logger

	mu          sync.Mutex
	collections map[string]*localCollection
}

type localCollection struct {
	mu   sync.Mutex
	name string
	docs []Document
}

// NewLocalBackend creates dir if needed and loads every collection file
// found in it. Files that can't be parsed are logged, preserved as
// "<name>.json.corrupt", and treated as empty collections.
func NewLocalBackend(dir string, logger *slog.Logger) (*LocalBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &LocalBackend{
		dir:         dir,
		logger:      logger.With(loggerNameKey, "local_store"),
		collections: map[string]*localCollection{},
	}
	if dir == "" {
		b.logger.Warn("no local directory configured, documents will only be kept in memory")
		return b, nil
	}

	if err := os.MkdirAll(dir, localDirectoryMode); err != nil {
		return nil, fmt.Errorf("creating local store directory: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading local store directory: %w", err)
	}
	if err = b.importProvisional(); err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), localFileExt) || e.Name() == ProvisionalFile {
			continue
		}
		name := strings.TrimSuffix(e.Name(), localFileExt)
		if validateCollection(name) != nil {
			continue
		}
		c := b.collection(name)
		b.logger.Info("loaded collection", "collection", name, "documents", len(c.docs))
	}
	return b, nil
}

// importProvisional merges ProvisionalFile into the collection files and
// renames it with an ".imported" suffix. Documents without an _id get
// one; documents whose _id is already stored are skipped. A malformed
// file is logged and left in place.
func (b *LocalBackend) importProvisional() error {
	path := filepath.Join(b.dir, ProvisionalFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", ProvisionalFile, err)
	}

	var byCollection map[string][]Document
	if err = json.Unmarshal(data, &byCollection); err != nil {
		b.logger.Error(
			"provisional data file is malformed, not importing",
			"path", path,
			tint.Err(fmt.Errorf("%w: %w", ErrMalformedLocalState, err)),
		)
		return nil
	}

	names := make([]string, 0, len(byCollection))
	for name := range byCollection {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err = validateCollection(name); err != nil {
			b.logger.Warn("skipping provisional collection", "collection", name, tint.Err(err))
			continue
		}
		imported, skipped, importErr := b.importDocuments(name, byCollection[name])
		if importErr != nil {
			return fmt.Errorf("importing %s into %s: %w", ProvisionalFile, name, importErr)
		}
		b.logger.Info(
			"imported provisional collection",
			"collection", name,
			"imported", imported,
			"skipped", skipped,
		)
	}

	if err = os.Rename(path, path+importedFileSuffix); err != nil {
		return fmt.Errorf("renaming %s: %w", ProvisionalFile, err)
	}
	return nil
}

func (b *LocalBackend) importDocuments(name string, docs []Document) (int, int, error) {
	c := b.collection(name)
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]bool, len(c.docs)+len(docs))
	for _, d := range c.docs {
		if id, ok := d.ID(); ok {
			seen[id] = true
		}
	}

	updated := make([]Document, len(c.docs), len(c.docs)+len(docs))
	copy(updated, c.docs)
	skipped := 0
	for _, d := range docs {
		if d == nil {
			skipped++
			continue
		}
		stored, err := normalizeDocument(d)
		if err != nil {
			return 0, 0, err
		}
		id, err := assignID(stored)
		if err != nil || seen[id] {
			skipped++
			continue
		}
		seen[id] = true
		updated = append(updated, stored)
	}

	imported := len(updated) - len(c.docs)
	if imported == 0 {
		return 0, skipped, nil
	}
	if err := b.persist(name, updated); err != nil {
		return 0, 0, err
	}
	c.docs = updated
	return imported, skipped, nil
}

// Dir returns the directory collection files are written to.
func (b *LocalBackend) Dir() string {
	return b.dir
}

func (b *LocalBackend) path(collection string) string {
	return filepath.Join(b.dir, collection+localFileExt)
}

// collection returns the named collection, loading it from disk the
// first time it's referenced.
func (b *LocalBackend) collection(name string) *localCollection {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.collections[name]
	if ok {
		return c
	}
	c = &localCollection{name: name}
	if b.dir != "" {
		c.docs = b.load(name)
	}
	b.collections[name] = c
	return c
}

func (b *LocalBackend) load(name string) []Document {
	path := b.path(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			b.logger.Error("error reading collection file", "path", path, tint.Err(err))
		}
		return nil
	}
	docs, err := decodeCollection(data)
	if err != nil {
		b.logger.Error(
			"collection file is malformed, starting empty",
			"path", path,
			tint.Err(fmt.Errorf("%w: %w", ErrMalformedLocalState, err)),
		)
		backup := path + corruptFileSuffix
		if copyErr := os.WriteFile(backup, data, localFileMode); copyErr != nil {
			b.logger.Error("unable to preserve malformed file", "path", backup, tint.Err(copyErr))
		} else {
			b.logger.Warn("preserved malformed collection file", "path", backup)
		}
		return nil
	}
	return docs
}

// decodeCollection parses a collection file. Besides the array layout,
// it accepts an object keyed by document id, ordering documents by id.
func decodeCollection(data []byte) ([]Document, error) {
	var docs []Document
	arrErr := json.Unmarshal(data, &docs)
	if arrErr == nil {
		for i, d := range docs {
			if d == nil {
				return nil, fmt.Errorf("document %d is not an object", i)
			}
		}
		return docs, nil
	}

	var byID map[string]Document
	if err := json.Unmarshal(data, &byID); err != nil {
		return nil, arrErr
	}
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	docs = make([]Document, 0, len(ids))
	for _, id := range ids {
		d := byID[id]
		if d == nil {
			return nil, fmt.Errorf("document %q is not an object", id)
		}
		if _, ok := d.ID(); !ok {
			d[IDField] = id
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// persist writes docs to the collection's file via a temp file and
// rename, so a failed write leaves the previous file intact.
func (b *LocalBackend) persist(name string, docs []Document) error {
	if b.dir == "" {
		return nil
	}
	if docs == nil {
		docs = []Document{}
	}
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(b.dir, name+localFileExt+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}
	if _, err = tmp.Write(data); err != nil {
		cleanup()
		return err
	}
	if err = tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err = os.Chmod(tmpName, localFileMode); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err = os.Rename(tmpName, b.path(name)); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func (b *LocalBackend) FindOne(
	_ context.Context,
	collection string,
	query Document,
) (Document, error) {
	c := b.collection(collection)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.docs {
		if Matches(d, query) {
			return cloneDocument(d), nil
		}
	}
	return nil, nil
}

func (b *LocalBackend) Find(
	_ context.Context,
	collection string,
	query Document,
) ([]Document, error) {
	c := b.collection(collection)
	c.mu.Lock()
	defer c.mu.Unlock()
	found := []Document{}
	for _, d := range c.docs {
		if Matches(d, query) {
			found = append(found, cloneDocument(d))
		}
	}
	return found, nil
}

func (b *LocalBackend) InsertOne(
	_ context.Context,
	collection string,
	doc Document,
) (string, error) {
	stored, err := normalizeDocument(doc)
	if err != nil {
		return "", storageErr("insert", collection, err)
	}
	id, err := assignID(stored)
	if err != nil {
		return "", storageErr("insert", collection, err)
	}

	c := b.collection(collection)
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, existing := range c.docs {
		if existingID, _ := existing.ID(); existingID == id {
			return "", storageErr("insert", collection, fmt.Errorf("%w: %s", ErrDuplicateID, id))
		}
	}

	updated := make([]Document, len(c.docs), len(c.docs)+1)
	copy(updated, c.docs)
	updated = append(updated, stored)
	if err = b.persist(collection, updated); err != nil {
		return "", storageErr("insert", collection, err)
	}
	c.docs = updated
	return id, nil
}

func (b *LocalBackend) UpdateOne(
	_ context.Context,
	collection string,
	query Document,
	patch Patch,
) (UpdateResult, error) {
	set, err := normalizeDocument(patch.Set)
	if err != nil {
		return UpdateResult{}, storageErr("update", collection, err)
	}

	c := b.collection(collection)
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := -1
	for i, d := range c.docs {
		if Matches(d, query) {
			idx = i
			break
		}
	}
	if idx == -1 {
		return UpdateResult{}, nil
	}

	doc := cloneDocument(c.docs[idx])
	applyPatch(doc, set)

	updated := make([]Document, len(c.docs))
	copy(updated, c.docs)
	updated[idx] = doc
	if err = b.persist(collection, updated); err != nil {
		return UpdateResult{}, storageErr("update", collection, err)
	}
	c.docs = updated
	return UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
}

// Collections returns the names of collections holding at least one
// document, sorted.
func (b *LocalBackend) Collections() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.collections))
	for name, c := range b.collections {
		c.mu.Lock()
		n := len(c.docs)
		c.mu.Unlock()
		if n > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Snapshot returns copies of every buffered document, by collection.
func (b *LocalBackend) Snapshot() map[string][]Document {
	snapshot := map[string][]Document{}
	for _, name := range b.Collections() {
		c := b.collection(name)
		c.mu.Lock()
		docs := make([]Document, 0, len(c.docs))
		for _, d := range c.docs {
			docs = append(docs, cloneDocument(d))
		}
		c.mu.Unlock()
		if len(docs) > 0 {
			snapshot[name] = docs
		}
	}
	return snapshot
}

// Clear drops all buffered documents and removes their files.
func (b *LocalBackend) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	for name, c := range b.collections {
		c.mu.Lock()
		c.docs = nil
		c.mu.Unlock()
		if b.dir == "" {
			continue
		}
		if err := os.Remove(b.path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	b.collections = map[string]*localCollection{}
	return errors.Join(errs...)
}

func (*LocalBackend) Close(context.Context) error {
	return nil
}

// assignID sets a new _id on doc if it doesn't have one, returning the
// document's id.
func assignID(doc Document) (string, error) {
	raw, ok := doc[IDField]
	if !ok || raw == nil {
		id := NewID()
		doc[IDField] = id
		return id, nil
	}
	id, ok := raw.(string)
	if !ok || id == "" {
		return "", fmt.Errorf("%w: %s must be a non-empty string", ErrInvalidArgument, IDField)
	}
	return id, nil
}
