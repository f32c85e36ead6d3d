package ansagrado

import (
	"context"
	"github.com/Sitedirector05/Vesta-Technologies-Ansagrado-BASIC-Bot/datastore"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"log/slog"
	"time"
)

// Values of the "tipo" field of documents in the logs collection
const (
	logTypeInteraction = "interaccion"
	logTypeGame        = "juego"
	logTypeAI          = "ia"
)

// InteractionHandler responds to a single Discord interaction.
type InteractionHandler interface {
	// Respond sends the initial response to the interaction.
	Respond(ctx context.Context, i *discordgo.InteractionResponse) error

	// Edit modifies an existing interaction response.
	Edit(
		ctx context.Context,
		e *discordgo.WebhookEdit,
		opts ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// Delete removes an interaction response.
	Delete(ctx context.Context, opts ...discordgo.RequestOption)

	// GetInteraction returns the original InteractionCreate event.
	GetInteraction() *discordgo.InteractionCreate

	// Logger returns the logger associated with this handler.
	Logger() *slog.Logger
}

// GatewayHandler implements [InteractionHandler] for interactions
// received via the discord websocket gateway.
type GatewayHandler struct {
	session     DiscordSessionHandler
	interaction *discordgo.InteractionCreate
	logger      *slog.Logger
}

func (w GatewayHandler) Respond(
	ctx context.Context,
	response *discordgo.InteractionResponse,
) error {
	err := w.session.InteractionRespond(w.interaction.Interaction, response)
	if err != nil {
		w.logger.ErrorContext(ctx, "error responding to interaction", tint.Err(err))
	} else {
		w.logger.DebugContext(ctx, "responded to interaction")
	}
	return err
}

func (w GatewayHandler) GetInteraction() *discordgo.InteractionCreate {
	return w.interaction
}

func (w GatewayHandler) Edit(
	ctx context.Context,
	wh *discordgo.WebhookEdit,
	opts ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	msg, err := w.session.InteractionResponseEdit(
		w.interaction.Interaction,
		wh,
		opts...,
	)
	if err != nil {
		w.logger.ErrorContext(ctx, "error editing interaction response", tint.Err(err))
	}
	return msg, err
}

func (w GatewayHandler) Delete(ctx context.Context, opts ...discordgo.RequestOption) {
	err := w.session.InteractionResponseDelete(
		w.interaction.Interaction,
		opts...,
	)
	if err != nil {
		w.logger.ErrorContext(ctx, "error deleting interaction response", tint.Err(err))
	}
}

func (w GatewayHandler) Logger() *slog.Logger {
	return w.logger
}

// interactionCommandName returns the slash command name or component
// custom ID of the interaction.
func interactionCommandName(i *discordgo.InteractionCreate) string {
	switch i.Type {
	case discordgo.InteractionApplicationCommand,
		discordgo.InteractionApplicationCommandAutocomplete:
		return i.ApplicationCommandData().Name
	case discordgo.InteractionMessageComponent:
		return i.MessageComponentData().CustomID
	default:
		return ""
	}
}

// newInteractionLog builds the logs collection document recording an
// incoming interaction.
func newInteractionLog(
	i *discordgo.InteractionCreate,
	u *discordgo.User,
	now time.Time,
) datastore.Document {
	doc := datastore.Document{
		"tipo":           logTypeInteraction,
		"interaction_id": i.ID,
		"type":           i.Type.String(),
		"comando":        interactionCommandName(i),
		"guild_id":       i.GuildID,
		"channel_id":     i.ChannelID,
		"timestamp":      now.Format(time.RFC3339),
	}
	if u != nil {
		doc["user_id"] = u.ID
		doc["username"] = u.Username
	}
	if i.Type == discordgo.InteractionApplicationCommand {
		options := map[string]any{}
		for name, opt := range discordInteractionOptions(i) {
			options[name] = opt.Value
		}
		if len(options) > 0 {
			doc["opciones"] = options
		}
	}
	return doc
}
