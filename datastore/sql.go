package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	sqliteMaxOpenConns    = 1
	sqliteMaxIdleConns    = 1
	sqliteMaxConnLifetime = 5 * time.Minute
	sqliteExecPragma      = []string{
		"pragma journal_mode=WAL;",
		"pragma synchronous = normal;",
		"pragma temp_store = memory;",
	}
)

// documentRecord is one document of one collection. The body holds the
// full document, _id included.
type documentRecord struct {
	ID         uint   `gorm:"primaryKey"`
	Collection string `gorm:"not null;uniqueIndex:idx_documents_collection_doc_id,priority:1"`
	DocID      string `gorm:"column:doc_id;not null;uniqueIndex:idx_documents_collection_doc_id,priority:2"`
	Body       string `gorm:"not null"`
	CreatedAt  int64  `gorm:"autoCreateTime:milli"`
	UpdatedAt  int64  `gorm:"autoUpdateTime:milli"`
}

func (documentRecord) TableName() string {
	return "documents"
}

type collectionRecord struct {
	Name      string `gorm:"primaryKey"`
	CreatedAt int64  `gorm:"autoCreateTime:milli"`
}

func (collectionRecord) TableName() string {
	return "collections"
}

// SQLBackend stores documents as JSON rows in a sqlite or postgres
// database, via gorm.
type SQLBackend struct {
	db      *gorm.DB
	dialect string
	logger  *slog.Logger

	// serializes writes when using sqlite
	mu sync.Mutex
}

// OpenSQL connects to a sqlite file or postgres DSN and migrates the
// document tables.
func OpenSQL(
	ctx context.Context,
	dialect string,
	dsn string,
	log *slog.Logger,
	slowThreshold time.Duration,
) (*SQLBackend, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := getDB(dialect, dsn, newGORMLogger(log, slowThreshold))
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	if dialect == BackendSQLite {
		sqlDB.SetMaxOpenConns(sqliteMaxOpenConns)
		sqlDB.SetMaxIdleConns(sqliteMaxIdleConns)
		sqlDB.SetConnMaxLifetime(sqliteMaxConnLifetime)
		for _, pragma := range sqliteExecPragma {
			if err = db.WithContext(ctx).Exec(pragma).Error; err != nil {
				_ = sqlDB.Close()
				return nil, fmt.Errorf("error executing pragma %q: %w", pragma, err)
			}
		}
	}

	if err = sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if err = db.WithContext(ctx).AutoMigrate(&documentRecord{}, &collectionRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("error migrating document tables: %w", err)
	}

	return &SQLBackend{
		db:      db,
		dialect: dialect,
		logger:  log.With(loggerNameKey, "sql_store", "dialect", dialect),
	}, nil
}

func getDB(dialect string, dsn string, gormLogger *gormStructuredLogger) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
	switch dialect {
	case BackendSQLite:
		parentDir := filepath.Dir(dsn)
		if parentDir != "" {
			if err := os.MkdirAll(parentDir, localDirectoryMode); err != nil {
				return nil, err
			}
		}
		return gorm.Open(sqlite.Open(dsn), gormConfig)
	case BackendPostgres:
		return gorm.Open(postgres.Open(dsn), gormConfig)
	default:
		return nil, fmt.Errorf(
			"unsupported database type: %s (must be %q or %q)",
			dialect, BackendSQLite, BackendPostgres,
		)
	}
}

func (s *SQLBackend) Name() string {
	return s.dialect
}

// DB returns the underlying gorm connection.
func (s *SQLBackend) DB() *gorm.DB {
	return s.db
}

func (s *SQLBackend) lock() {
	if s.dialect == BackendSQLite {
		s.mu.Lock()
	}
}

func (s *SQLBackend) unlock() {
	if s.dialect == BackendSQLite {
		s.mu.Unlock()
	}
}

// scan returns the collection's documents matching query, in insertion
// order. A string _id in the query narrows the SQL lookup.
func scan(
	tx *gorm.DB,
	collection string,
	query Document,
	limit int,
) ([]documentRecord, []Document, error) {
	stmt := tx.Where("collection = ?", collection)
	if id, ok := query.ID(); ok {
		stmt = stmt.Where("doc_id = ?", id)
	}
	var records []documentRecord
	if err := stmt.Order("id asc").Find(&records).Error; err != nil {
		return nil, nil, err
	}

	var matched []documentRecord
	var docs []Document
	for _, rec := range records {
		doc := Document{}
		if err := json.Unmarshal([]byte(rec.Body), &doc); err != nil {
			return nil, nil, fmt.Errorf("%w: document %s/%s: %w", ErrMalformedLocalState, collection, rec.DocID, err)
		}
		if !Matches(doc, query) {
			continue
		}
		matched = append(matched, rec)
		docs = append(docs, doc)
		if limit > 0 && len(docs) == limit {
			break
		}
	}
	return matched, docs, nil
}

func (s *SQLBackend) FindOne(
	ctx context.Context,
	collection string,
	query Document,
) (Document, error) {
	_, docs, err := scan(s.db.WithContext(ctx), collection, query, 1)
	if err != nil {
		return nil, storageErr("find_one", collection, err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

func (s *SQLBackend) Find(
	ctx context.Context,
	collection string,
	query Document,
) ([]Document, error) {
	_, docs, err := scan(s.db.WithContext(ctx), collection, query, 0)
	if err != nil {
		return nil, storageErr("find", collection, err)
	}
	if docs == nil {
		docs = []Document{}
	}
	return docs, nil
}

func (s *SQLBackend) InsertOne(
	ctx context.Context,
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
	body, err := json.Marshal(stored)
	if err != nil {
		return "", storageErr("insert", collection, err)
	}

	s.lock()
	defer s.unlock()
	rec := documentRecord{Collection: collection, DocID: id, Body: string(body)}
	if err = s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			err = fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
		return "", storageErr("insert", collection, err)
	}
	return id, nil
}

func (s *SQLBackend) UpdateOne(
	ctx context.Context,
	collection string,
	query Document,
	patch Patch,
) (UpdateResult, error) {
	set, err := normalizeDocument(patch.Set)
	if err != nil {
		return UpdateResult{}, storageErr("update", collection, err)
	}

	s.lock()
	defer s.unlock()

	var result UpdateResult
	err = s.db.WithContext(ctx).Transaction(
		func(tx *gorm.DB) error {
			records, docs, scanErr := scan(tx, collection, query, 1)
			if scanErr != nil {
				return scanErr
			}
			if len(docs) == 0 {
				return nil
			}
			result.MatchedCount = 1
			doc := docs[0]
			before, _ := json.Marshal(doc)
			applyPatch(doc, set)
			body, marshalErr := json.Marshal(doc)
			if marshalErr != nil {
				return marshalErr
			}
			if string(before) == string(body) {
				return nil
			}
			rv := tx.Model(&records[0]).Update("body", string(body))
			if rv.Error != nil {
				return rv.Error
			}
			result.ModifiedCount = rv.RowsAffected
			return nil
		},
	)
	if err != nil {
		return UpdateResult{}, storageErr("update", collection, err)
	}
	return result, nil
}

func (s *SQLBackend) UpsertOne(ctx context.Context, collection string, doc Document) error {
	stored, err := normalizeDocument(doc)
	if err != nil {
		return storageErr("upsert", collection, err)
	}
	id, ok := stored.ID()
	if !ok {
		return storageErr("upsert", collection, fmt.Errorf("%w: document has no %s", ErrInvalidArgument, IDField))
	}

	s.lock()
	defer s.unlock()

	err = s.db.WithContext(ctx).Transaction(
		func(tx *gorm.DB) error {
			records, docs, scanErr := scan(tx, collection, Document{IDField: id}, 1)
			if scanErr != nil {
				return scanErr
			}
			if len(docs) == 0 {
				body, marshalErr := json.Marshal(stored)
				if marshalErr != nil {
					return marshalErr
				}
				return tx.Create(&documentRecord{Collection: collection, DocID: id, Body: string(body)}).Error
			}
			merged := docs[0]
			applyPatch(merged, stored)
			body, marshalErr := json.Marshal(merged)
			if marshalErr != nil {
				return marshalErr
			}
			return tx.Model(&records[0]).Update("body", string(body)).Error
		},
	)
	return storageErr("upsert", collection, err)
}

func (s *SQLBackend) EnsureCollections(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	records := make([]collectionRecord, 0, len(names))
	for _, name := range names {
		if err := validateCollection(name); err != nil {
			return err
		}
		records = append(records, collectionRecord{Name: name})
	}
	s.lock()
	defer s.unlock()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&records).Error
}

// Collections lists the registered collection names.
func (s *SQLBackend) Collections(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).Model(&collectionRecord{}).Order("name asc").Pluck("name", &names).Error
	return names, err
}

func (s *SQLBackend) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
