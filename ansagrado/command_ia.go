package ansagrado

import (
	"context"
	"fmt"
	"github.com/Sitedirector05/Vesta-Technologies-Ansagrado-BASIC-Bot/datastore"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"time"
)

const msgAIEmptyPrompt = "⚠️ Escribe una pregunta."

// newAILog builds the logs collection document recording an /ia request.
func newAILog(
	i *discordgo.InteractionCreate,
	u *discordgo.User,
	prompt string,
	now time.Time,
) datastore.Document {
	return datastore.Document{
		"tipo":       logTypeAI,
		"user_id":    u.ID,
		"username":   u.Username,
		"guild_id":   i.GuildID,
		"channel_id": i.ChannelID,
		"pregunta":   prompt,
		"bloqueado":  false,
		"timestamp":  now.Format(time.RFC3339),
	}
}

// commandAI answers a question with the chat model. Questions matching a
// programming keyword get the configured block message instead, while
// blocking is enabled.
func (b *Bot) commandAI(
	ctx context.Context,
	handler InteractionHandler,
	u *discordgo.User,
) (*discordgo.InteractionResponse, error) {
	i := handler.GetInteraction()
	logger := handler.Logger()

	prompt := truncate(stringOption(i, optionPrompt), aiPromptMaxLength)
	if prompt == "" {
		return ephemeralResponse(msgAIEmptyPrompt), nil
	}
	aiLog := newAILog(i, u, prompt, b.now())

	settings := b.runtimeConfig.Get()
	if kw, blocked := settings.BlockedKeyword(prompt); blocked {
		logger.InfoContext(ctx, "blocked ai prompt", "keyword", kw)
		aiLog["bloqueado"] = true
		aiLog["palabra_clave"] = kw
		b.writeLog(ctx, aiLog)
		return messageResponse(settings.BlockMessage), nil
	}

	if !b.openai.enabled() {
		return ephemeralResponse(msgAIUnavailable), nil
	}

	if err := handler.Respond(
		ctx,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		},
	); err != nil {
		handler.Logger().ErrorContext(ctx, "error deferring ai response", tint.Err(err))
		return nil, nil
	}

	start := time.Now()
	answer, err := b.openai.Ask(ctx, prompt)
	aiLog["duracion_ms"] = time.Since(start).Milliseconds()

	var content string
	if err != nil {
		logger.ErrorContext(ctx, "error getting ai reply", tint.Err(err))
		aiLog["error"] = err.Error()
		content = msgAIError
	} else {
		aiLog["respuesta"] = answer
		content = shortenString(
			fmt.Sprintf("❓ **%s**\n\n%s", prompt, answer),
			discordMaxMessageLength,
		)
	}
	b.writeLog(context.WithoutCancel(ctx), aiLog)

	_, _ = handler.Edit(ctx, &discordgo.WebhookEdit{Content: &content})
	return nil, nil
}
