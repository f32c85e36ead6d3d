package ansagrado

import (
	"context"
	"errors"
	"fmt"
	"github.com/Sitedirector05/Vesta-Technologies-Ansagrado-BASIC-Bot/datastore"
	"github.com/Sitedirector05/Vesta-Technologies-Ansagrado-BASIC-Bot/games"
	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const (
	testGuildID   = "guild_test"
	testChannelID = "channel_test"
)

// DefaultTestConfig returns a Config with local-only storage in a
// temporary directory and a short trivia duration.
func DefaultTestConfig(t testing.TB) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Discord.Token = "test-token"
	cfg.Discord.ApplicationID = "app_" + t.Name()
	cfg.Database.LocalDir = t.TempDir()
	cfg.StartupTimeout = 10 * time.Second
	cfg.ShutdownTimeout = 10 * time.Second
	cfg.TriviaDuration = 100 * time.Millisecond
	cfg.LogLevel.Set(slog.LevelDebug)
	cfg.API.Token = "api-token"
	cfg.HTTPClient = &http.Client{Timeout: 5 * time.Second}
	return cfg
}

// newTestBot returns a Bot with a mocked discord session and an open
// local store. Interactions are handled by stubInteractionHandler.
func newTestBot(t testing.TB) *Bot {
	t.Helper()
	gin.DefaultWriter = io.Discard

	cfg := DefaultTestConfig(t)
	bot, err := New(cfg)
	require.NoError(t, err)

	bot.discord.session = newMockDiscordSession()
	bot.logger = slog.Default().With("test_name", t.Name())

	local, err := datastore.NewLocalBackend(cfg.Database.LocalDir, bot.logger)
	require.NoError(t, err)
	bot.store = datastore.NewStore(local, datastore.ModeLocal, bot.logger)

	bot.runtimeConfig = NewRuntimeConfig(bot.store, bot.logger)
	require.NoError(t, bot.runtimeConfig.Load(context.Background()))
	bot.startedAt = time.Now()

	bot.getInteractionHandlerFunc = func(
		_ context.Context,
		i *discordgo.InteractionCreate,
	) InteractionHandler {
		h := newStubInteractionHandler(t)
		h.GatewayHandler.session = bot.discord.session
		h.GatewayHandler.interaction = i
		return h
	}
	return bot
}

type stubEdits struct {
	WebhookEdit *discordgo.WebhookEdit
	Opts        []discordgo.RequestOption
}

func newStubInteractionHandler(t testing.TB) stubInteractionHandler {
	t.Helper()
	return stubInteractionHandler{
		callRespond: make(chan *discordgo.InteractionResponse, 100),
		callEdit:    make(chan *stubEdits, 100),
		callDelete:  make(chan struct{}, 100),
		GatewayHandler: GatewayHandler{
			session: newMockDiscordSession(),
			logger:  slog.Default().With("test_name", t.Name()),
		},
	}
}

// stubInteractionHandler implements InteractionHandler, sending calls to
// Respond, Edit and Delete into channels so tests can check them.
type stubInteractionHandler struct {
	GatewayHandler GatewayHandler

	callRespond chan *discordgo.InteractionResponse
	callEdit    chan *stubEdits
	callDelete  chan struct{}

	respondErr error
}

func (s stubInteractionHandler) Respond(
	_ context.Context,
	i *discordgo.InteractionResponse,
) error {
	s.callRespond <- i
	return s.respondErr
}

func (s stubInteractionHandler) Edit(
	ctx context.Context,
	e *discordgo.WebhookEdit,
	opts ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	s.Logger().DebugContext(ctx, "edit called")
	s.callEdit <- &stubEdits{WebhookEdit: e, Opts: opts}
	return &discordgo.Message{}, nil
}

func (s stubInteractionHandler) Delete(
	ctx context.Context,
	_ ...discordgo.RequestOption,
) {
	s.Logger().DebugContext(ctx, "delete called")
	s.callDelete <- struct{}{}
}

func (s stubInteractionHandler) GetInteraction() *discordgo.InteractionCreate {
	return s.GatewayHandler.interaction
}

func (s stubInteractionHandler) Logger() *slog.Logger {
	return s.GatewayHandler.logger
}

// newDiscordUser creates a new discordgo.User with the test name as
// the user ID.
func newDiscordUser(t testing.TB) *discordgo.User {
	t.Helper()
	return &discordgo.User{
		ID:         t.Name(),
		Username:   fmt.Sprintf("u_%s", t.Name()),
		GlobalName: fmt.Sprintf("g_%s", t.Name()),
	}
}

func newNamedDiscordUser(t testing.TB, name string) *discordgo.User {
	t.Helper()
	return &discordgo.User{
		ID:       fmt.Sprintf("%s_%s", name, t.Name()),
		Username: name,
	}
}

func stringOpt(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionString,
		Value: value,
	}
}

// newCommandInteraction creates a guild slash command interaction from
// member u, with the given member permissions.
func newCommandInteraction(
	u *discordgo.User,
	permissions int64,
	command string,
	options ...*discordgo.ApplicationCommandInteractionDataOption,
) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type:      discordgo.InteractionApplicationCommand,
			ID:        fmt.Sprintf("interaction_%s_%d", command, time.Now().UnixNano()),
			GuildID:   testGuildID,
			ChannelID: testChannelID,
			Member:    &discordgo.Member{User: u, Permissions: permissions},
			Data: discordgo.ApplicationCommandInteractionData{
				CommandType: discordgo.ChatApplicationCommand,
				Name:        command,
				Options:     options,
			},
		},
	}
}

func newComponentInteraction(u *discordgo.User, customID string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type:      discordgo.InteractionMessageComponent,
			ID:        fmt.Sprintf("component_%s_%d", customID, time.Now().UnixNano()),
			GuildID:   testGuildID,
			ChannelID: testChannelID,
			Member:    &discordgo.Member{User: u},
			Data: discordgo.MessageComponentInteractionData{
				CustomID:      customID,
				ComponentType: discordgo.ButtonComponent,
			},
		},
	}
}

// runInteraction handles i synchronously, returning the stub handler
// used.
func runInteraction(
	t testing.TB,
	bot *Bot,
	i *discordgo.InteractionCreate,
) stubInteractionHandler {
	t.Helper()
	handler := bot.getInteractionHandlerFunc(context.Background(), i)
	stub, ok := handler.(stubInteractionHandler)
	require.True(t, ok, "expected stub interaction handler")
	bot.handleInteraction(context.Background(), handler)
	return stub
}

func waitForResponse(t testing.TB, h stubInteractionHandler) *discordgo.InteractionResponse {
	t.Helper()
	select {
	case r := <-h.callRespond:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for interaction response")
	}
	return nil
}

func waitForEdit(t testing.TB, h stubInteractionHandler) *discordgo.WebhookEdit {
	t.Helper()
	select {
	case e := <-h.callEdit:
		return e.WebhookEdit
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for interaction edit")
	}
	return nil
}

// respondContent runs the interaction and returns the content of its
// response, asserting whether it was ephemeral.
func respondContent(
	t testing.TB,
	bot *Bot,
	i *discordgo.InteractionCreate,
	ephemeral bool,
) string {
	t.Helper()
	h := runInteraction(t, bot, i)
	resp := waitForResponse(t, h)
	require.NotNil(t, resp.Data)
	assert.Equal(
		t,
		ephemeral,
		resp.Data.Flags&discordgo.MessageFlagsEphemeral != 0,
		"unexpected ephemeral flag for: %s", resp.Data.Content,
	)
	return resp.Data.Content
}

func logDocuments(t testing.TB, bot *Bot, query datastore.Document) []datastore.Document {
	t.Helper()
	docs, err := bot.store.Find(context.Background(), datastore.CollectionLogs, query)
	require.NoError(t, err)
	return docs
}

// mockDiscordSession is a mock implementation of the DiscordSessionHandler
// interface. It logs actions instead of performing them.
type mockDiscordSession struct {
	logger   *slog.Logger
	logLevel *slog.LevelVar
	latency  time.Duration
}

func newMockDiscordSession() mockDiscordSession {
	m := mockDiscordSession{
		logLevel: &slog.LevelVar{},
		latency:  42 * time.Millisecond,
	}
	m.logLevel.Set(slog.LevelDebug)
	m.logger = slog.New(
		tint.NewHandler(
			os.Stdout, &tint.Options{
				Level:     m.logLevel,
				AddSource: true,
			},
		),
	).With(loggerNameKey, "discord_session_handler")
	return m
}

func (d mockDiscordSession) Open() error {
	d.logger.Info("opened session")
	return nil
}

func (d mockDiscordSession) Close() error {
	d.logger.Info("closed session")
	return nil
}

func (d mockDiscordSession) ApplicationCommandBulkOverwrite(
	appID string,
	guildID string,
	commands []*discordgo.ApplicationCommand,
	_ ...discordgo.RequestOption,
) ([]*discordgo.ApplicationCommand, error) {
	d.logger.Info(
		"overwrite application commands",
		"app_id", appID,
		"guild_id", guildID,
		"commands", len(commands),
	)
	cmds := make([]*discordgo.ApplicationCommand, len(commands))
	for i, c := range commands {
		cmds[i] = &discordgo.ApplicationCommand{
			ApplicationID: appID,
			GuildID:       guildID,
			Name:          c.Name,
			Description:   c.Description,
		}
	}
	return cmds, nil
}

func (d mockDiscordSession) UpdateGameStatus(idle int, name string) error {
	d.logger.Info("updating game status", "idle", idle, "name", name)
	return nil
}

func (d mockDiscordSession) AddHandler(_ any) func() {
	d.logger.Info("added handler")
	return func() {
		d.logger.Info("mock-removed handler function")
	}
}

func (d mockDiscordSession) InteractionRespond(
	interaction *discordgo.Interaction,
	resp *discordgo.InteractionResponse,
	_ ...discordgo.RequestOption,
) error {
	d.logger.Info("mock responding to interaction", "interaction_id", interaction.ID, "type", resp.Type)
	return nil
}

func (d mockDiscordSession) InteractionResponseEdit(
	interaction *discordgo.Interaction,
	_ *discordgo.WebhookEdit,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	d.logger.Info("mock editing interaction", "interaction_id", interaction.ID)
	return &discordgo.Message{}, nil
}

func (d mockDiscordSession) InteractionResponseDelete(
	interaction *discordgo.Interaction,
	_ ...discordgo.RequestOption,
) error {
	d.logger.Info("mock deleting interaction", "interaction_id", interaction.ID)
	return nil
}

func (d mockDiscordSession) HeartbeatLatency() time.Duration {
	return d.latency
}

func (d mockDiscordSession) SetIdentify(i discordgo.Identify) {
	d.logger.Info("set identify", "intents", i.Intents)
}

func (d mockDiscordSession) SetLogLevel(lvl slog.Level) error {
	d.logLevel.Set(lvl)
	return nil
}

func TestBot_RunAndStop(t *testing.T) {
	bot := newTestBot(t)

	botErr := make(chan error, 1)
	go func() {
		botErr <- bot.Run(context.Background())
	}()

	select {
	case <-bot.signalReady:
	case err := <-botErr:
		t.Fatalf("error starting bot: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for bot to start")
	}

	assert.True(t, bot.Stop())
	assert.False(t, bot.Stop(), "second stop should be a no-op")

	select {
	case err := <-botErr:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("timed out waiting for bot to stop")
	}
}

func TestBot_RunContextCancel(t *testing.T) {
	bot := newTestBot(t)
	ctx, cancel := context.WithCancel(context.Background())

	botErr := make(chan error, 1)
	go func() {
		botErr <- bot.Run(ctx)
	}()
	select {
	case <-bot.signalReady:
	case err := <-botErr:
		t.Fatalf("error starting bot: %v", err)
	}

	// active games are cancelled on shutdown
	g := &activeGame{
		kind:      gameRPS,
		game:      games.NewRockPaperScissors(),
		channelID: testChannelID,
	}
	require.NoError(t, bot.games.start(g))

	cancel()
	select {
	case err := <-botErr:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("timed out waiting for bot to stop")
	}
	assert.Equal(t, games.StateCancelled, g.game.State())
	assert.Equal(t, 0, bot.games.count())
}

func TestBot_RunInvalidConfig(t *testing.T) {
	bot := newTestBot(t)
	bot.config.Discord.Token = ""
	err := bot.Run(context.Background())
	require.Error(t, err)
}

func TestNew_InvalidTimezone(t *testing.T) {
	cfg := DefaultTestConfig(t)
	cfg.Timezone = "Not/AZone"
	bot, err := New(cfg)
	require.Error(t, err)
	require.NotNil(t, bot)
	assert.Equal(t, time.UTC, bot.location)
}

func TestNew_Timezone(t *testing.T) {
	cfg := DefaultTestConfig(t)
	bot, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, DefaultTimezone, bot.location.String())
	assert.Equal(t, DefaultTimezone, bot.now().Location().String())
}

func TestHandleInteraction_LogsInteraction(t *testing.T) {
	bot := newTestBot(t)
	u := newDiscordUser(t)

	content := respondContent(t, bot, newCommandInteraction(u, 0, CommandPing), false)
	assert.Contains(t, content, "Pong")
	assert.Contains(t, content, "42ms")

	docs := logDocuments(t, bot, datastore.Document{"tipo": logTypeInteraction})
	require.Len(t, docs, 1)
	assert.Equal(t, CommandPing, docs[0]["comando"])
	assert.Equal(t, u.ID, docs[0]["user_id"])
	assert.Equal(t, testGuildID, docs[0]["guild_id"])
}

func TestHandleInteraction_IgnoresBots(t *testing.T) {
	bot := newTestBot(t)
	u := newDiscordUser(t)
	u.Bot = true

	h := runInteraction(t, bot, newCommandInteraction(u, 0, CommandPing))
	select {
	case r := <-h.callRespond:
		t.Fatalf("unexpected response: %#v", r)
	default:
	}
	assert.Empty(t, logDocuments(t, bot, nil))
}

func TestHandleInteraction_UnknownCommand(t *testing.T) {
	bot := newTestBot(t)
	u := newDiscordUser(t)
	content := respondContent(t, bot, newCommandInteraction(u, 0, "nope"), true)
	assert.Equal(t, msgUnknownCommand, content)
}

func TestHandleInteraction_Recover(t *testing.T) {
	bot := newTestBot(t)
	u := newDiscordUser(t)
	bot.triviaQuestions = func(context.Context) []games.Question {
		panic("boom")
	}

	content := respondContent(t, bot, newCommandInteraction(u, 0, CommandTrivia), true)
	assert.Equal(t, msgGenericError, content)
}

func TestErrorResponse(t *testing.T) {
	storageErr := fmt.Errorf("wrapped: %w", datastore.ErrStorageUnavailable)
	assert.Equal(t, msgStorageError, errorResponse(storageErr).Data.Content)
	assert.Equal(
		t,
		msgStorageError,
		errorResponse(&datastore.ConnectivityError{Backend: "mongodb", Err: errors.New("x")}).Data.Content,
	)
	assert.Equal(t, msgGenericError, errorResponse(errors.New("other")).Data.Content)
	assert.Equal(
		t,
		discordgo.MessageFlagsEphemeral,
		errorResponse(errors.New("other")).Data.Flags,
	)
}

func TestBot_SyncStore_NoRemote(t *testing.T) {
	bot := newTestBot(t)
	_, err := bot.SyncStore(context.Background())
	assert.ErrorIs(t, err, ErrNoRemoteConfigured)
}

func TestBot_SyncStore(t *testing.T) {
	bot := newTestBot(t)
	ctx := context.Background()

	_, err := bot.store.InsertOne(ctx, datastore.CollectionLogs, datastore.Document{"msg": "x"})
	require.NoError(t, err)

	remote := newSQLiteRemote(t)
	bot.config.Database.URI = "sqlite://test"
	bot.connectRemote = func(context.Context) (datastore.RemoteBackend, error) {
		return remote, nil
	}

	report, err := bot.SyncStore(ctx)
	require.NoError(t, err)
	assert.Equal(t, datastore.ModeRemote, bot.store.Mode())
	// the runtime config document plus the inserted log
	assert.Equal(t, 2, report.Documents)

	doc, err := remote.FindOne(ctx, datastore.CollectionLogs, datastore.Document{"msg": "x"})
	require.NoError(t, err)
	require.NotNil(t, doc)

	// already remote
	report, err = bot.SyncStore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Documents)
}

func TestBot_SyncStore_Unreachable(t *testing.T) {
	bot := newTestBot(t)
	bot.config.Database.URI = "mongodb://127.0.0.1:1"
	bot.connectRemote = func(context.Context) (datastore.RemoteBackend, error) {
		return nil, &datastore.ConnectivityError{Backend: "mongodb", Err: errors.New("refused")}
	}
	_, err := bot.SyncStore(context.Background())
	assert.ErrorIs(t, err, datastore.ErrConnectivity)
	assert.Equal(t, datastore.ModeLocal, bot.store.Mode())
}

// newSQLiteRemote opens a sqlite-backed remote in a temp dir.
func newSQLiteRemote(t testing.TB) *datastore.SQLBackend {
	t.Helper()
	ctx := context.Background()
	remote, err := datastore.OpenSQL(
		ctx,
		datastore.BackendSQLite,
		filepath.Join(t.TempDir(), "remote.sqlite3"),
		slog.Default(),
		datastore.DefaultSlowThreshold,
	)
	require.NoError(t, err)
	require.NoError(t, remote.EnsureCollections(ctx, datastore.DefaultCollections...))
	t.Cleanup(func() { _ = remote.Close(context.Background()) })
	return remote
}
