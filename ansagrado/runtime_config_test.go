package ansagrado

import (
	"context"
	"github.com/Sitedirector05/Vesta-Technologies-Ansagrado-BASIC-Bot/datastore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"log/slog"
	"testing"
)

func newTestRuntimeConfig(t testing.TB) (*RuntimeConfig, *datastore.Store) {
	t.Helper()
	local, err := datastore.NewLocalBackend("", slog.Default())
	require.NoError(t, err)
	store := datastore.NewStore(local, datastore.ModeLocal, slog.Default())
	return NewRuntimeConfig(store, slog.Default()), store
}

func TestRuntimeConfig_LoadCreatesDefaults(t *testing.T) {
	ctx := context.Background()
	rc, store := newTestRuntimeConfig(t)
	require.NoError(t, rc.Load(ctx))

	assert.Equal(t, DefaultRuntimeSettings(), rc.Get())
	assert.False(t, rc.LastUpdated().IsZero())

	doc, err := store.FindOne(ctx, datastore.CollectionConfig, datastore.Document{datastore.IDField: runtimeConfigID})
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Contains(t, doc, runtimeConfigSettings)
	assert.Contains(t, doc, runtimeConfigLastUpdated)

	// a second load reads the stored document
	require.NoError(t, rc.Load(ctx))
	docs, err := store.Find(ctx, datastore.CollectionConfig, nil)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestRuntimeConfig_LoadStored(t *testing.T) {
	ctx := context.Background()
	rc, store := newTestRuntimeConfig(t)
	_, err := store.InsertOne(
		ctx,
		datastore.CollectionConfig,
		datastore.Document{
			datastore.IDField: runtimeConfigID,
			runtimeConfigSettings: map[string]any{
				settingBlockProgramming:    false,
				settingProgrammingKeywords: []any{"Go", "go", " rust "},
			},
			runtimeConfigLastUpdated: "2024-05-01T10:00:00Z",
		},
	)
	require.NoError(t, err)
	require.NoError(t, rc.Load(ctx))

	s := rc.Get()
	assert.False(t, s.BlockProgramming)
	assert.Equal(t, []string{"Go", "rust"}, s.ProgrammingKeywords)
	// missing keys keep their defaults
	assert.Equal(t, DefaultBlockMessage, s.BlockMessage)
	assert.Equal(t, 2024, rc.LastUpdated().Year())
}

func TestRuntimeConfig_LoadInvalid(t *testing.T) {
	ctx := context.Background()
	rc, store := newTestRuntimeConfig(t)
	_, err := store.InsertOne(
		ctx,
		datastore.CollectionConfig,
		datastore.Document{
			datastore.IDField: runtimeConfigID,
			runtimeConfigSettings: map[string]any{
				settingBlockMessage: "",
			},
		},
	)
	require.NoError(t, err)
	assert.Error(t, rc.Load(ctx))
	assert.Equal(t, DefaultRuntimeSettings(), rc.Get())
}

func TestRuntimeConfig_Update(t *testing.T) {
	ctx := context.Background()
	rc, store := newTestRuntimeConfig(t)
	require.NoError(t, rc.Load(ctx))

	disabled := false
	msg := "bloqueado"
	s, err := rc.Update(
		ctx,
		RuntimeSettingsUpdate{
			BlockProgramming:    &disabled,
			ProgrammingKeywords: []string{"uno", "UNO", "dos", " "},
			BlockMessage:        &msg,
		},
	)
	require.NoError(t, err)
	assert.False(t, s.BlockProgramming)
	assert.Equal(t, []string{"uno", "dos"}, s.ProgrammingKeywords)
	assert.Equal(t, msg, s.BlockMessage)

	// persisted for the next load
	other := NewRuntimeConfig(store, slog.Default())
	require.NoError(t, other.Load(ctx))
	assert.Equal(t, s, other.Get())

	// an empty message is rejected, and nothing changes
	empty := ""
	_, err = rc.Update(ctx, RuntimeSettingsUpdate{BlockMessage: &empty})
	assert.Error(t, err)
	assert.Equal(t, msg, rc.Get().BlockMessage)
}

func TestRuntimeConfig_UpdateRecreatesMissingDocument(t *testing.T) {
	ctx := context.Background()
	rc, store := newTestRuntimeConfig(t)

	enabled := true
	_, err := rc.Update(ctx, RuntimeSettingsUpdate{BlockProgramming: &enabled})
	require.NoError(t, err)

	doc, err := store.FindOne(ctx, datastore.CollectionConfig, datastore.Document{datastore.IDField: runtimeConfigID})
	require.NoError(t, err)
	assert.NotNil(t, doc)
}

func TestRuntimeConfig_Set(t *testing.T) {
	ctx := context.Background()
	rc, _ := newTestRuntimeConfig(t)
	require.NoError(t, rc.Load(ctx))

	s, err := rc.Set(ctx, settingBlockProgramming, false)
	require.NoError(t, err)
	assert.False(t, s.BlockProgramming)

	s, err = rc.Set(ctx, settingProgrammingKeywords, []any{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, s.ProgrammingKeywords)

	s, err = rc.Set(ctx, settingBlockMessage, "hola")
	require.NoError(t, err)
	assert.Equal(t, "hola", s.BlockMessage)

	_, err = rc.Set(ctx, settingBlockProgramming, "yes")
	assert.Error(t, err)

	_, err = rc.Set(ctx, "foo", 1)
	assert.ErrorIs(t, err, ErrUnknownSetting)
}

func TestRuntimeConfig_Reload(t *testing.T) {
	ctx := context.Background()
	rc, store := newTestRuntimeConfig(t)
	require.NoError(t, rc.Load(ctx))

	_, err := store.UpdateOne(
		ctx,
		datastore.CollectionConfig,
		datastore.Document{datastore.IDField: runtimeConfigID},
		datastore.Patch{
			Set: datastore.Document{
				runtimeConfigSettings: map[string]any{settingBlockMessage: "cambiado"},
			},
		},
	)
	require.NoError(t, err)
	require.NoError(t, rc.Reload(ctx))
	assert.Equal(t, "cambiado", rc.Get().BlockMessage)
}

func TestRuntimeSettings_BlockedKeyword(t *testing.T) {
	s := DefaultRuntimeSettings()
	tests := []struct {
		text    string
		keyword string
		blocked bool
	}{
		{"¿Cómo aprendo Python?", "python", true},
		{"quiero programar un juego", "programar", true},
		{"necesito ayuda con C++", "c++", true},
		{"haz una página web", "página web", true},
		{"¿Cuál es la capital de Francia?", "", false},
		{"me gustan los programas de TV", "", false},
		{"cuéntame un chiste", "", false},
	}
	for _, tc := range tests {
		t.Run(
			tc.text, func(t *testing.T) {
				kw, blocked := s.BlockedKeyword(tc.text)
				assert.Equal(t, tc.blocked, blocked)
				assert.Equal(t, tc.keyword, kw)
			},
		)
	}

	s.BlockProgramming = false
	_, blocked := s.BlockedKeyword("python")
	assert.False(t, blocked)
}

func TestRuntimeConfig_GetReturnsCopy(t *testing.T) {
	rc, _ := newTestRuntimeConfig(t)
	s := rc.Get()
	s.ProgrammingKeywords[0] = "changed"
	assert.NotEqual(t, "changed", rc.Get().ProgrammingKeywords[0])
}
