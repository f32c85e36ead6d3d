package ansagrado

import (
	"context"
	"errors"
	"fmt"
	"github.com/Sitedirector05/Vesta-Technologies-Ansagrado-BASIC-Bot/datastore"
	"github.com/Sitedirector05/Vesta-Technologies-Ansagrado-BASIC-Bot/games"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	_ "time/tzdata"
)

var ErrNoRemoteConfigured = errors.New("no remote database configured")

var (
	// When building, set these like:
	// -ldflags "-X github.com/Sitedirector05/Vesta-Technologies-Ansagrado-BASIC-Bot/ansagrado.Version=$$(date +'%Y%m%d')"

	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

// Messages shown to users when something goes wrong. Details are only
// logged.
const (
	msgGenericError     = "❌ Ocurrió un error al ejecutar el comando. Inténtalo de nuevo más tarde."
	msgStorageError     = "😔 Lo siento, no pude acceder a los datos en este momento. Inténtalo de nuevo más tarde."
	msgNoPermission     = "❌ No tienes permisos para usar este comando."
	msgUnknownCommand   = "❓ Comando desconocido."
	msgGuildOnly        = "❌ Este comando solo se puede usar en un servidor."
	msgAIUnavailable    = "🤖 La IA no está disponible en este momento."
	msgAIError          = "😔 Lo siento, no pude obtener una respuesta de la IA. Inténtalo de nuevo más tarde."
	msgSyncNoRemote     = "⚠️ No hay una base de datos remota configurada."
	msgSyncUnreachable  = "⚠️ No se pudo conectar con la base de datos remota. Los datos siguen guardados localmente."
	msgSyncAlreadyDone  = "✅ Los datos ya están en la base de datos remota."
	msgSyncFailed       = "⚠️ La sincronización falló. Los datos locales no se modificaron."
	msgGameInProgress   = "⚠️ Ya hay un juego en curso en este canal. Usa /cancelar para terminarlo."
	msgNoGameInProgress = "⚠️ No hay ningún juego de ese tipo en curso en este canal."
)

// Bot is the Ansagrado Discord bot.
type Bot struct {
	config        *Config
	logger        *slog.Logger
	store         *datastore.Store
	runtimeConfig *RuntimeConfig
	discord       *Discord
	openai        *OpenAI
	words         *games.WordGenerator
	games         *channelGames
	api           *API
	location      *time.Location
	startedAt     time.Time

	// prevents concurrent runs
	runMu sync.Mutex

	// serializes store migrations
	syncMu sync.Mutex

	signalStop  chan struct{}
	signalReady chan struct{}
	stopping    atomic.Bool

	// interactionWG tracks interaction handlers and game timers
	interactionWG sync.WaitGroup

	getInteractionHandlerFunc func(
		ctx context.Context,
		i *discordgo.InteractionCreate,
	) InteractionHandler

	// connectRemote connects to the configured remote backend, for
	// migrations
	connectRemote func(ctx context.Context) (datastore.RemoteBackend, error)

	triviaQuestions func(ctx context.Context) []games.Question
}

// New returns a Bot for the given config. It doesn't connect to anything
// until Run is called.
func New(config *Config) (*Bot, error) {
	var errs []error

	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}

	b := &Bot{
		config:      config,
		games:       newChannelGames(),
		signalReady: make(chan struct{}, 1),
		signalStop:  make(chan struct{}, 1),
		location:    time.UTC,
	}

	b.logger = slog.New(newLogHandler(config.LogLevel))
	slog.SetDefault(b.logger)

	if config.Timezone != "" {
		loc, err := time.LoadLocation(config.Timezone)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid timezone %q: %w", config.Timezone, err))
		} else {
			b.location = loc
		}
	}

	discordgo.Logger = discordgoLoggerFunc(
		context.Background(),
		newLogHandler(config.Discord.DiscordGoLogLevel).WithAttrs(
			[]slog.Attr{slog.String(loggerNameKey, "discordgo")},
		),
	)
	config.Discord.httpClient = config.HTTPClient
	b.discord = newDiscord(
		config.Discord,
		newComponentLogger("discord", config.Discord.LogLevel),
	)

	b.openai = newOpenAI(config.OpenAI, config.HTTPClient)
	b.words = b.openai.wordGenerator()

	b.connectRemote = func(ctx context.Context) (datastore.RemoteBackend, error) {
		return datastore.Connect(ctx, *b.config.Database, b.storeLogger())
	}
	b.triviaQuestions = b.loadTriviaQuestions

	api, err := newAPI(b, config.API)
	if err != nil {
		errs = append(errs, err)
	}
	b.api = api

	return b, errors.Join(errs...)
}

func (b *Bot) ValidateConfig() error {
	return structValidator.Struct(b.config)
}

func (b *Bot) storeLogger() *slog.Logger {
	var level slog.Leveler
	if b.config.Database != nil && b.config.Database.LogLevel != nil {
		level = b.config.Database.LogLevel
	}
	return newComponentLogger("datastore", level)
}

// Store returns the bot's document store, once Run has opened it.
func (b *Bot) Store() *datastore.Store {
	return b.store
}

// Run opens the store and the discord session, then blocks until ctx is
// cancelled or [Bot.Stop] is called, and shuts down.
func (b *Bot) Run(ctx context.Context) error {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	b.stopping.Store(false)
	b.signalStop = make(chan struct{}, 1)
	b.startedAt = time.Now()
	logger := b.logger

	if err := b.ValidateConfig(); err != nil {
		logger.Error("invalid config", tint.Err(err))
		return err
	}

	ctx = WithLogger(ctx, logger)
	logger.LogAttrs(ctx, slog.LevelInfo, "starting", slog.Any("config", b.config))

	// this is the 'runtime' context, which triggers a graceful shutdown
	// when canceled
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	startCtx, startCancel := context.WithTimeout(ctx, b.config.StartupTimeout)
	err := b.initRun(startCtx)
	startCancel()
	if err != nil {
		logger.ErrorContext(ctx, "init error", tint.Err(err))
		b.closeStore(ctx)
		return err
	}

	if err = b.initDiscordSession(ctx); err != nil {
		logger.ErrorContext(ctx, "error creating discord session", tint.Err(err))
		b.closeStore(ctx)
		return err
	}

	logger.InfoContext(ctx, "connecting to discord")
	if err = b.discord.session.Open(); err != nil {
		logger.ErrorContext(ctx, "error connecting to discord!", tint.Err(err))
		b.closeStore(ctx)
		return fmt.Errorf("error connecting to discord: %w", err)
	}

	if _, err = b.discord.registerCommands(); err != nil {
		logger.ErrorContext(ctx, "error registering commands", tint.Err(err))
	}

	g, gctx := errgroup.WithContext(ctx)

	if b.config.API.Enabled {
		g.Go(
			func() error {
				if serveErr := b.api.Serve(gctx); serveErr != nil &&
					!errors.Is(serveErr, http.ErrServerClosed) {
					logger.ErrorContext(gctx, "error serving api HTTP", tint.Err(serveErr))
					return serveErr
				}
				return nil
			},
		)
	}

	g.Go(
		func() error {
			select {
			case <-b.signalStop:
				logger.Warn("got stop signal, canceling")
				cancel()
			case <-gctx.Done():
			}
			return nil
		},
	)

	// block until something cancels the runtime context - generally
	// from an interrupt, or the `/api/quit` endpoint
	g.Go(
		func() error {
			<-gctx.Done()
			return b.shutdown(ctx)
		},
	)

	select {
	case b.signalReady <- struct{}{}:
	default:
	}
	logger.InfoContext(ctx, "ready", "store_mode", b.store.Mode().String())

	return g.Wait()
}

// Stop triggers a graceful shutdown of a running bot. It returns false
// if a stop was already requested.
func (b *Bot) Stop() bool {
	if !b.stopping.CompareAndSwap(false, true) {
		return false
	}
	select {
	case b.signalStop <- struct{}{}:
	default:
	}
	return true
}

// initRun opens the store and loads the runtime config.
func (b *Bot) initRun(startCtx context.Context) error {
	if b.store == nil {
		store, err := datastore.Open(startCtx, *b.config.Database, b.storeLogger())
		if err != nil {
			return fmt.Errorf("error opening store: %w", err)
		}
		b.store = store
	}
	b.logger.InfoContext(startCtx, "store opened", "mode", b.store.Mode().String())

	if b.runtimeConfig == nil {
		b.runtimeConfig = NewRuntimeConfig(b.store, b.logger)
	}
	if err := b.runtimeConfig.Load(startCtx); err != nil {
		return err
	}
	return nil
}

func (b *Bot) initDiscordSession(ctx context.Context) error {
	if b.discord.session == nil {
		session, err := b.discord.newSession()
		if err != nil {
			return err
		}
		b.discord.session = session
	}

	for _, h := range b.discord.discordgoRemoveHandlerFuncs {
		h()
	}

	identify := discordgo.Identify{Intents: b.config.Discord.GatewayIntents}
	if b.config.Discord.Status != "" {
		identify.Presence = discordgo.GatewayStatusUpdate{
			Game: discordgo.Activity{
				Name: b.config.Discord.Status,
				Type: discordgo.ActivityTypeGame,
			},
			Status: string(discordgo.StatusOnline),
		}
	}
	b.discord.session.SetIdentify(identify)

	b.discord.discordgoRemoveHandlerFuncs = []func(){
		b.discord.session.AddHandler(b.discord.handlerConnect()),
		b.discord.session.AddHandler(b.discord.handlerDisconnect()),
		b.discord.session.AddHandler(b.discord.handlerReady()),
		b.discord.session.AddHandler(
			func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
				handler := b.getInteractionHandlerFunc(ctx, i)
				b.interactionWG.Add(1)
				go func() {
					defer b.interactionWG.Done()
					b.handleInteraction(ctx, handler)
				}()
			},
		),
	}

	if b.getInteractionHandlerFunc == nil {
		b.getInteractionHandlerFunc = func(
			_ context.Context,
			i *discordgo.InteractionCreate,
		) InteractionHandler {
			return GatewayHandler{
				session:     b.discord.session,
				interaction: i,
				logger: b.discord.logger.With(
					slog.Group("interaction", interactionLogAttrs(*i)...),
				),
			}
		}
	}
	return nil
}

// shutdown waits for in-flight interactions, then closes the discord
// session, the API server and the store, all within ShutdownTimeout.
func (b *Bot) shutdown(ctx context.Context) error {
	b.logger.WarnContext(ctx, "shutting down", "shutdown_timeout", b.config.ShutdownTimeout)
	shutdownStart := time.Now()

	closeCtx, closeCancel := context.WithTimeout(
		context.WithoutCancel(ctx),
		b.config.ShutdownTimeout,
	)
	defer closeCancel()

	var errs []error

	// no new interactions once handlers are removed
	for _, h := range b.discord.discordgoRemoveHandlerFuncs {
		h()
	}
	b.discord.discordgoRemoveHandlerFuncs = nil

	done := make(chan struct{})
	go func() {
		b.interactionWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		b.logger.InfoContext(ctx, "interactions finished")
	case <-closeCtx.Done():
		errs = append(errs, errors.New("interactions did not finish in time"))
		b.logger.ErrorContext(ctx, "timed out waiting on interactions")
	}

	if n := b.games.cancelAll(); n > 0 {
		b.logger.InfoContext(ctx, "cancelled active games", "count", n)
	}

	if b.discord.session != nil {
		if err := b.discord.session.Close(); err != nil {
			b.logger.ErrorContext(ctx, "error closing discord session", tint.Err(err))
			errs = append(errs, err)
		}
	}

	if b.config.API.Enabled && b.api != nil {
		if err := b.api.httpServer.Shutdown(closeCtx); err != nil {
			b.logger.ErrorContext(ctx, "error shutting down api", tint.Err(err))
			errs = append(errs, err)
		}
	}

	if b.store != nil {
		if err := b.store.Close(closeCtx); err != nil {
			b.logger.ErrorContext(ctx, "error closing store", tint.Err(err))
			errs = append(errs, err)
		}
	}

	b.logger.InfoContext(ctx, "shutdown complete", "elapsed", time.Since(shutdownStart))
	return errors.Join(errs...)
}

func (b *Bot) closeStore(ctx context.Context) {
	if b.store == nil {
		return
	}
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.config.ShutdownTimeout)
	defer cancel()
	if err := b.store.Close(closeCtx); err != nil {
		b.logger.ErrorContext(ctx, "error closing store", tint.Err(err))
	}
}

// SyncStore connects to the configured remote backend and migrates every
// locally buffered document to it. On success the store switches to
// remote mode. If the remote is already active, it returns an empty
// report.
func (b *Bot) SyncStore(ctx context.Context) (datastore.SyncReport, error) {
	b.syncMu.Lock()
	defer b.syncMu.Unlock()

	if b.store == nil {
		return datastore.SyncReport{}, errors.New("store not open")
	}
	if b.store.Mode() == datastore.ModeRemote {
		return datastore.SyncReport{Backend: "remote"}, nil
	}
	if !b.config.Database.RemoteConfigured() {
		return datastore.SyncReport{}, ErrNoRemoteConfigured
	}

	remote, err := b.connectRemote(ctx)
	if err != nil {
		return datastore.SyncReport{}, err
	}
	report, err := b.store.SyncToRemote(ctx, remote)
	if err != nil {
		if closeErr := remote.Close(context.WithoutCancel(ctx)); closeErr != nil {
			b.logger.ErrorContext(ctx, "error closing remote", tint.Err(closeErr))
		}
		return report, err
	}
	b.logger.InfoContext(
		ctx,
		"migrated local data to remote",
		"backend", report.Backend,
		"documents", report.Documents,
		"migrated", report.Migrated,
		"skipped", report.Skipped,
	)
	return report, nil
}

// handleInteraction logs and dispatches a single interaction.
func (b *Bot) handleInteraction(ctx context.Context, handler InteractionHandler) {
	i := handler.GetInteraction()
	logger := handler.Logger()
	if logger == nil {
		logger = b.logger
	}
	logger = logger.With(slog.Group("interaction", interactionLogAttrs(*i)...))
	ctx = WithLogger(ctx, logger)

	defer func() {
		if rc := recover(); rc != nil {
			b.handleRecover(ctx, rc)
			if i.Type == discordgo.InteractionApplicationCommand ||
				i.Type == discordgo.InteractionMessageComponent {
				_ = handler.Respond(ctx, ephemeralResponse(msgGenericError))
			}
		}
	}()

	discordUser := getDiscordUser(i)
	if discordUser == nil {
		logger.ErrorContext(ctx, "no user found in interaction")
		return
	}
	logger.InfoContext(
		ctx,
		"received new interaction",
		"command", interactionCommandName(i),
		slog.Group("user", "id", discordUser.ID, "username", discordUser.Username),
	)

	if discordUser.Bot {
		logger.WarnContext(ctx, "user is bot, ignoring", "user_id", discordUser.ID)
		return
	}

	if i.Type != discordgo.InteractionPing {
		b.writeLog(ctx, newInteractionLog(i, discordUser, b.now()))
	}

	var (
		rv  *discordgo.InteractionResponse
		err error
	)
	switch i.Type {
	case discordgo.InteractionPing:
		rv = &discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong}
	case discordgo.InteractionMessageComponent:
		rv, err = b.handleComponent(ctx, handler, discordUser)
	case discordgo.InteractionApplicationCommand:
		rv, err = b.handleCommand(ctx, handler, discordUser)
	default:
		logger.WarnContext(ctx, "unhandled interaction type")
		return
	}

	if err != nil {
		logger.ErrorContext(ctx, "error handling interaction", tint.Err(err))
		rv = errorResponse(err)
	}
	if rv == nil {
		return
	}
	if respondErr := handler.Respond(ctx, rv); respondErr != nil {
		logger.ErrorContext(ctx, "error responding to interaction", tint.Err(respondErr))
	}
}

func (b *Bot) handleCommand(
	ctx context.Context,
	handler InteractionHandler,
	u *discordgo.User,
) (*discordgo.InteractionResponse, error) {
	i := handler.GetInteraction()
	switch name := i.ApplicationCommandData().Name; name {
	case CommandPing:
		return b.commandPing(), nil
	case CommandHelp:
		return b.commandHelp(), nil
	case CommandHangman:
		return b.commandHangman(ctx, handler, u)
	case CommandLetter:
		return b.commandLetter(ctx, i, u)
	case CommandGuessWord:
		return b.commandGuessWord(ctx, i, u)
	case CommandHint:
		return b.commandHint(i)
	case CommandRPS:
		return b.commandRPS(i, u)
	case CommandRPSPlay:
		return b.commandRPSPlay(ctx, i, u)
	case CommandTrivia:
		return b.commandTrivia(ctx, handler, u)
	case CommandCancel:
		return b.commandCancel(ctx, i, u)
	case CommandLanguage:
		return b.commandLanguage(ctx, i)
	case CommandAI:
		return b.commandAI(ctx, handler, u)
	case CommandStatus:
		return b.commandStatus(ctx, i)
	case CommandSync:
		return b.commandSync(ctx, handler)
	default:
		return ephemeralResponse(msgUnknownCommand), nil
	}
}

func (b *Bot) handleComponent(
	ctx context.Context,
	handler InteractionHandler,
	u *discordgo.User,
) (*discordgo.InteractionResponse, error) {
	i := handler.GetInteraction()
	customID := i.MessageComponentData().CustomID
	if customID == rpsJoinCustomID {
		return b.componentRPSJoin(i, u)
	}
	if option, ok := strings.CutPrefix(customID, triviaAnswerCustomIDPrefix); ok {
		return b.componentTriviaAnswer(i, u, option)
	}
	handler.Logger().WarnContext(ctx, "unknown component", "custom_id", customID)
	return ephemeralResponse(msgUnknownCommand), nil
}

func (b *Bot) handleRecover(ctx context.Context, rc any) {
	logger := contextLoggerOr(ctx, b.logger)
	stackTrace := string(debug.Stack())
	var err error
	switch v := rc.(type) {
	case error:
		err = v
	case string:
		err = errors.New(v)
	default:
		err = fmt.Errorf("panic: %v", v)
	}
	logger.ErrorContext(
		ctx,
		"recovered from panic",
		tint.Err(err),
		"stack_trace", stackTrace,
	)
}

// writeLog inserts a document into the logs collection. Failures are
// logged and otherwise ignored.
func (b *Bot) writeLog(ctx context.Context, doc datastore.Document) {
	if b.store == nil {
		return
	}
	if _, err := b.store.InsertOne(ctx, datastore.CollectionLogs, doc); err != nil {
		contextLoggerOr(ctx, b.logger).ErrorContext(ctx, "error writing log document", tint.Err(err), "tipo", doc["tipo"])
	}
}

func (b *Bot) now() time.Time {
	return time.Now().In(b.location)
}

// errorResponse returns the ephemeral message shown for err.
func errorResponse(err error) *discordgo.InteractionResponse {
	switch {
	case errors.Is(err, datastore.ErrStorageUnavailable),
		errors.Is(err, datastore.ErrConnectivity):
		return ephemeralResponse(msgStorageError)
	default:
		return ephemeralResponse(msgGenericError)
	}
}

func messageResponse(content string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: shortenString(content, discordMaxMessageLength),
		},
	}
}

func ephemeralResponse(content string) *discordgo.InteractionResponse {
	rv := messageResponse(content)
	rv.Data.Flags = discordgo.MessageFlagsEphemeral
	return rv
}

func embedResponse(embed *discordgo.MessageEmbed) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	}
}
