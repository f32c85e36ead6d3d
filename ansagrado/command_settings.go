package ansagrado

import (
	"context"
	"errors"
	"fmt"
	"github.com/Sitedirector05/Vesta-Technologies-Ansagrado-BASIC-Bot/datastore"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"slices"
	"strings"
	"time"
)

const (
	msgUnsupportedLanguage = "⚠️ Idioma no soportado."
	statusTimeFormat       = "02/01/2006 15:04 MST"
	embedColor             = 0x5865F2

	serverSettingsGuildID  = "guild_id"
	serverSettingsLanguage = "idioma"
	serverSettingsUpdated  = "actualizado"
)

func (b *Bot) commandPing() *discordgo.InteractionResponse {
	latency := b.discord.session.HeartbeatLatency()
	return messageResponse(fmt.Sprintf("🏓 ¡Pong! Latencia: %dms", latency.Milliseconds()))
}

func (b *Bot) commandHelp() *discordgo.InteractionResponse {
	lines := make([]string, 0, len(commandHelpEntries))
	for _, h := range commandHelpEntries {
		lines = append(lines, fmt.Sprintf("**/%s**: %s", h.Name, h.Description))
	}
	rv := embedResponse(
		&discordgo.MessageEmbed{
			Title:       "📖 Comandos de Ansagrado",
			Description: strings.Join(lines, "\n"),
			Color:       embedColor,
		},
	)
	rv.Data.Flags = discordgo.MessageFlagsEphemeral
	return rv
}

// serverLanguage returns the language stored for the guild, or the
// default language.
func (b *Bot) serverLanguage(ctx context.Context, guildID string) (string, error) {
	if guildID == "" {
		return defaultLanguage, nil
	}
	doc, err := b.store.FindOne(
		ctx,
		datastore.CollectionServerSettings,
		datastore.Document{serverSettingsGuildID: guildID},
	)
	if err != nil {
		return defaultLanguage, err
	}
	if lang, ok := doc[serverSettingsLanguage].(string); ok && lang != "" {
		return lang, nil
	}
	return defaultLanguage, nil
}

// commandLanguage stores the guild's language in server_settings,
// updating the guild's document or creating it.
func (b *Bot) commandLanguage(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) (*discordgo.InteractionResponse, error) {
	if i.GuildID == "" {
		return ephemeralResponse(msgGuildOnly), nil
	}
	if !memberHasPermission(i, discordgo.PermissionManageServer) {
		return ephemeralResponse(msgNoPermission), nil
	}
	lang := strings.ToLower(stringOption(i, optionLanguage))
	name, ok := supportedLanguages[lang]
	if !ok {
		return ephemeralResponse(msgUnsupportedLanguage), nil
	}

	query := datastore.Document{serverSettingsGuildID: i.GuildID}
	now := b.now().Format(time.RFC3339)

	existing, err := b.store.FindOne(ctx, datastore.CollectionServerSettings, query)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		_, err = b.store.UpdateOne(
			ctx,
			datastore.CollectionServerSettings,
			query,
			datastore.Patch{
				Set: datastore.Document{
					serverSettingsLanguage: lang,
					serverSettingsUpdated:  now,
				},
			},
		)
	} else {
		_, err = b.store.InsertOne(
			ctx,
			datastore.CollectionServerSettings,
			datastore.Document{
				serverSettingsGuildID:  i.GuildID,
				serverSettingsLanguage: lang,
				serverSettingsUpdated:  now,
			},
		)
	}
	if err != nil {
		return nil, err
	}
	return messageResponse(fmt.Sprintf("🌐 Idioma del servidor cambiado a **%s**.", name)), nil
}

// commandStatus shows the store mode, uptime, active games and the
// guild's language.
func (b *Bot) commandStatus(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) (*discordgo.InteractionResponse, error) {
	mode := b.store.Mode()
	storage := "🟢 Base de datos remota"
	if mode == datastore.ModeLocal {
		storage = "🟡 Almacenamiento local"
	}

	pending := b.store.Pending()
	total := 0
	names := make([]string, 0, len(pending))
	for name, n := range pending {
		total += n
		names = append(names, name)
	}
	slices.Sort(names)
	pendingDetail := fmt.Sprintf("%d", total)
	if total > 0 {
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s: %d", name, pending[name]))
		}
		pendingDetail += " (" + strings.Join(parts, ", ") + ")"
	}

	lang, err := b.serverLanguage(ctx, i.GuildID)
	if err != nil {
		contextLoggerOr(ctx, b.logger).WarnContext(ctx, "error reading server language", tint.Err(err))
	}
	langName := supportedLanguages[lang]
	if langName == "" {
		langName = lang
	}

	ai := "Deshabilitada"
	if b.openai.enabled() {
		ai = "Habilitada"
	}

	uptime := time.Since(b.startedAt).Round(time.Second)
	fields := []*discordgo.MessageEmbedField{
		{Name: "Almacenamiento", Value: storage, Inline: true},
		{Name: "Documentos sin sincronizar", Value: pendingDetail, Inline: true},
		{Name: "Juegos activos", Value: fmt.Sprintf("%d", b.games.count()), Inline: true},
		{Name: "Tiempo activo", Value: uptime.String(), Inline: true},
		{Name: "Iniciado", Value: b.startedAt.In(b.location).Format(statusTimeFormat), Inline: true},
		{Name: "Idioma", Value: langName, Inline: true},
		{Name: "IA", Value: ai, Inline: true},
		{Name: "Latencia", Value: fmt.Sprintf("%dms", b.discord.session.HeartbeatLatency().Milliseconds()), Inline: true},
	}
	return embedResponse(
		&discordgo.MessageEmbed{
			Title:     "📊 Estado de Ansagrado",
			Color:     embedColor,
			Fields:    fields,
			Timestamp: b.now().Format(time.RFC3339),
		},
	), nil
}

// commandSync migrates locally buffered documents to the remote
// database. Administrators only.
func (b *Bot) commandSync(
	ctx context.Context,
	handler InteractionHandler,
) (*discordgo.InteractionResponse, error) {
	i := handler.GetInteraction()
	logger := handler.Logger()
	if !memberHasPermission(i, discordgo.PermissionAdministrator) {
		return ephemeralResponse(msgNoPermission), nil
	}
	if b.store.Mode() == datastore.ModeRemote {
		return ephemeralResponse(msgSyncAlreadyDone), nil
	}

	if err := handler.Respond(
		ctx,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
		},
	); err != nil {
		handler.Logger().ErrorContext(ctx, "error deferring sync response", tint.Err(err))
		return nil, nil
	}

	var content string
	report, err := b.SyncStore(ctx)
	switch {
	case err == nil:
		content = syncSummary(report)
	case errors.Is(err, ErrNoRemoteConfigured):
		content = msgSyncNoRemote
	case errors.Is(err, datastore.ErrConnectivity):
		logger.WarnContext(ctx, "remote unreachable during sync", tint.Err(err))
		content = msgSyncUnreachable
	default:
		logger.ErrorContext(ctx, "error syncing store", tint.Err(err))
		content = msgSyncFailed
	}
	_, _ = handler.Edit(ctx, &discordgo.WebhookEdit{Content: &content})
	return nil, nil
}

func syncSummary(report datastore.SyncReport) string {
	if report.Documents == 0 {
		return msgSyncAlreadyDone
	}
	names := make([]string, 0, len(report.Migrated))
	for name := range report.Migrated {
		names = append(names, name)
	}
	slices.Sort(names)

	b := &strings.Builder{}
	fmt.Fprintf(b, "✅ Sincronización completa: %d documentos migrados a %s.", report.Documents, report.Backend)
	for _, name := range names {
		fmt.Fprintf(b, "\n• %s: %d", name, report.Migrated[name])
		if skipped := report.Skipped[name]; skipped > 0 {
			fmt.Fprintf(b, " (%d ya existían)", skipped)
		}
	}
	return b.String()
}
