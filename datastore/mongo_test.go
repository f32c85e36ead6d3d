package datastore

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"testing"
)

func TestMongoFilter(t *testing.T) {
	t.Run("plain fields", func(t *testing.T) {
		filter := mongoFilter(Document{"guild_id": "g1", "n": float64(2)})
		assert.Equal(t, bson.M{"guild_id": "g1", "n": float64(2)}, filter)
	})

	t.Run("non-hex id", func(t *testing.T) {
		filter := mongoFilter(Document{IDField: "bot_config"})
		assert.Equal(t, bson.M{IDField: "bot_config"}, filter)
	})

	t.Run("object id hex", func(t *testing.T) {
		oid := primitive.NewObjectID()
		filter := mongoFilter(Document{IDField: oid.Hex(), "guild_id": "g1"})
		assert.Equal(t, "g1", filter["guild_id"])
		assert.Equal(
			t,
			bson.M{"$in": bson.A{oid.Hex(), oid}},
			filter[IDField],
		)
	})

	t.Run("query not modified", func(t *testing.T) {
		oid := primitive.NewObjectID()
		query := Document{IDField: oid.Hex()}
		_ = mongoFilter(query)
		assert.Equal(t, oid.Hex(), query[IDField])
	})
}

func TestWithoutID(t *testing.T) {
	doc := Document{IDField: "abc", "lang": "es", "n": float64(1)}
	set := withoutID(doc)
	assert.Equal(t, bson.M{"lang": "es", "n": float64(1)}, set)
	assert.Equal(t, "abc", doc[IDField])

	assert.Empty(t, withoutID(Document{IDField: "abc"}))
}

func TestUpsertUpdate(t *testing.T) {
	oid := primitive.NewObjectID()

	update := upsertUpdate(oid.Hex(), bson.M{"lang": "es"})
	assert.Equal(t, bson.M{IDField: oid.Hex()}, update["$setOnInsert"])
	assert.Equal(t, bson.M{"lang": "es"}, update["$set"])

	// the filter for the same id must match ObjectID _ids too, so the
	// upsert updates a document written by other tools instead of
	// inserting a string-keyed copy
	filter := mongoFilter(Document{IDField: oid.Hex()})
	in, ok := filter[IDField].(bson.M)
	require.True(t, ok)
	assert.Contains(t, in["$in"], oid)

	idOnly := upsertUpdate("abc", bson.M{})
	assert.NotContains(t, idOnly, "$set")
	assert.Equal(t, bson.M{IDField: "abc"}, idOnly["$setOnInsert"])
}
