package datastore

import (
	"context"
	"errors"
	"fmt"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"log/slog"
	"slices"
	"time"
)

// mongoNamespaceExists is the server error code returned when creating a
// collection that already exists.
const mongoNamespaceExists = 48

// MongoBackend stores collections in a MongoDB database.
type MongoBackend struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

// ConnectMongo connects to uri and pings the primary. Both server
// selection and the initial connection are bounded by connectTimeout.
func ConnectMongo(
	ctx context.Context,
	uri string,
	database string,
	connectTimeout time.Duration,
	log *slog.Logger,
) (*MongoBackend, error) {
	if log == nil {
		log = slog.Default()
	}
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(connectTimeout).
		SetConnectTimeout(connectTimeout).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err = client.Ping(ctx, readpref.Primary()); err != nil {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		_ = client.Disconnect(disconnectCtx)
		return nil, err
	}

	return &MongoBackend{
		client: client,
		db:     client.Database(database),
		logger: log.With(loggerNameKey, "mongo_store", "database", database),
	}, nil
}

func (*MongoBackend) Name() string {
	return BackendMongoDB
}

// Client returns the underlying driver client.
func (m *MongoBackend) Client() *mongo.Client {
	return m.client
}

// Database returns the database documents are stored in.
func (m *MongoBackend) Database() *mongo.Database {
	return m.db
}

// mongoFilter converts an equality query to a filter. A string _id that
// is a valid ObjectID hex also matches documents whose _id was stored as
// an ObjectID by other tools.
func mongoFilter(query Document) bson.M {
	filter := bson.M{}
	for k, v := range query {
		filter[k] = v
	}
	if id, ok := query.ID(); ok {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			filter[IDField] = bson.M{"$in": bson.A{id, oid}}
		}
	}
	return filter
}

func fromBSON(raw bson.M) (Document, error) {
	doc, err := normalizeDocument(Document(raw))
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func withoutID(doc Document) bson.M {
	set := bson.M{}
	for k, v := range doc {
		if k == IDField {
			continue
		}
		set[k] = v
	}
	return set
}

func (m *MongoBackend) FindOne(
	ctx context.Context,
	collection string,
	query Document,
) (Document, error) {
	normalized, err := normalizeDocument(query)
	if err != nil {
		return nil, storageErr("find_one", collection, err)
	}
	res := m.db.Collection(collection).FindOne(ctx, mongoFilter(normalized))
	if err = res.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, storageErr("find_one", collection, err)
	}
	var raw bson.M
	if err = res.Decode(&raw); err != nil {
		return nil, storageErr("find_one", collection, err)
	}
	doc, err := fromBSON(raw)
	return doc, storageErr("find_one", collection, err)
}

func (m *MongoBackend) Find(
	ctx context.Context,
	collection string,
	query Document,
) ([]Document, error) {
	normalized, err := normalizeDocument(query)
	if err != nil {
		return nil, storageErr("find", collection, err)
	}
	cursor, err := m.db.Collection(collection).Find(ctx, mongoFilter(normalized))
	if err != nil {
		return nil, storageErr("find", collection, err)
	}
	var raws []bson.M
	if err = cursor.All(ctx, &raws); err != nil {
		return nil, storageErr("find", collection, err)
	}
	docs := make([]Document, 0, len(raws))
	for _, raw := range raws {
		doc, convErr := fromBSON(raw)
		if convErr != nil {
			return nil, storageErr("find", collection, convErr)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (m *MongoBackend) InsertOne(
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
	if _, err = m.db.Collection(collection).InsertOne(ctx, bson.M(stored)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			err = fmt.Errorf("%w: %s: %w", ErrDuplicateID, id, err)
		}
		return "", storageErr("insert", collection, err)
	}
	return id, nil
}

func (m *MongoBackend) UpdateOne(
	ctx context.Context,
	collection string,
	query Document,
	patch Patch,
) (UpdateResult, error) {
	normalized, err := normalizeDocument(query)
	if err != nil {
		return UpdateResult{}, storageErr("update", collection, err)
	}
	set, err := normalizeDocument(patch.Set)
	if err != nil {
		return UpdateResult{}, storageErr("update", collection, err)
	}
	filter := mongoFilter(normalized)
	fields := withoutID(set)

	// an empty $set is rejected by the server
	if len(fields) == 0 {
		n, countErr := m.db.Collection(collection).CountDocuments(
			ctx, filter, options.Count().SetLimit(1),
		)
		if countErr != nil {
			return UpdateResult{}, storageErr("update", collection, countErr)
		}
		return UpdateResult{MatchedCount: n}, nil
	}

	rv, err := m.db.Collection(collection).UpdateOne(ctx, filter, bson.M{"$set": fields})
	if err != nil {
		return UpdateResult{}, storageErr("update", collection, err)
	}
	return UpdateResult{MatchedCount: rv.MatchedCount, ModifiedCount: rv.ModifiedCount}, nil
}

func (m *MongoBackend) UpsertOne(ctx context.Context, collection string, doc Document) error {
	stored, err := normalizeDocument(doc)
	if err != nil {
		return storageErr("upsert", collection, err)
	}
	id, ok := stored.ID()
	if !ok {
		return storageErr("upsert", collection, fmt.Errorf("%w: document has no %s", ErrInvalidArgument, IDField))
	}
	_, err = m.db.Collection(collection).UpdateOne(
		ctx,
		mongoFilter(Document{IDField: id}),
		upsertUpdate(id, withoutID(stored)),
		options.Update().SetUpsert(true),
	)
	return storageErr("upsert", collection, err)
}

// upsertUpdate sets fields on the matched document. The _id is only
// written on insert, since the filter may match it in either its string
// or ObjectID form.
func upsertUpdate(id string, fields bson.M) bson.M {
	update := bson.M{"$setOnInsert": bson.M{IDField: id}}
	if len(fields) > 0 {
		update["$set"] = fields
	}
	return update
}

func (m *MongoBackend) EnsureCollections(ctx context.Context, names ...string) error {
	existing, err := m.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return err
	}
	for _, name := range names {
		if slices.Contains(existing, name) {
			continue
		}
		err = m.db.CreateCollection(ctx, name)
		var cmdErr mongo.CommandError
		if err != nil && !(errors.As(err, &cmdErr) && cmdErr.Code == mongoNamespaceExists) {
			return fmt.Errorf("creating collection %s: %w", name, err)
		}
		m.logger.InfoContext(ctx, "created collection", "collection", name)
	}
	return nil
}

func (m *MongoBackend) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
