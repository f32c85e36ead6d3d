package ansagrado

import (
	"context"
	"errors"
	"github.com/Sitedirector05/Vesta-Technologies-Ansagrado-BASIC-Bot/datastore"
	"github.com/bwmarrin/discordgo"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"strings"
	"testing"
)

func withAIClient(bot *Bot) *mockChatCompleter {
	m := &mockChatCompleter{}
	bot.openai.client = m
	return m
}

func aiInteraction(u *discordgo.User, prompt string) *discordgo.InteractionCreate {
	return newCommandInteraction(u, 0, CommandAI, stringOpt(optionPrompt, prompt))
}

func TestCommandAI(t *testing.T) {
	bot := newTestBot(t)
	u := newDiscordUser(t)
	m := withAIClient(bot)
	m.On(
		"CreateChatCompletion",
		mock.Anything,
		mock.MatchedBy(
			func(req openai.ChatCompletionRequest) bool {
				return len(req.Messages) == 2 &&
					req.Messages[0].Role == openai.ChatMessageRoleSystem &&
					req.Messages[1].Content == "¿Qué es la fotosíntesis?"
			},
		),
	).Return(chatReply("  Es el proceso con el que las plantas producen su alimento.  "), nil).Once()

	h := runInteraction(t, bot, aiInteraction(u, "¿Qué es la fotosíntesis?"))
	resp := waitForResponse(t, h)
	assert.Equal(t, discordgo.InteractionResponseDeferredChannelMessageWithSource, resp.Type)

	edit := waitForEdit(t, h)
	require.NotNil(t, edit.Content)
	assert.Equal(
		t,
		"❓ **¿Qué es la fotosíntesis?**\n\nEs el proceso con el que las plantas producen su alimento.",
		*edit.Content,
	)
	m.AssertExpectations(t)

	logs := logDocuments(t, bot, datastore.Document{"tipo": logTypeAI})
	require.Len(t, logs, 1)
	assert.Equal(t, "¿Qué es la fotosíntesis?", logs[0]["pregunta"])
	assert.Equal(t, false, logs[0]["bloqueado"])
	assert.Equal(t, "Es el proceso con el que las plantas producen su alimento.", logs[0]["respuesta"])
	assert.Contains(t, logs[0], "duracion_ms")
}

func TestCommandAI_Error(t *testing.T) {
	bot := newTestBot(t)
	u := newDiscordUser(t)
	m := withAIClient(bot)
	m.On("CreateChatCompletion", mock.Anything, mock.Anything).
		Return(openai.ChatCompletionResponse{}, errors.New("upstream unavailable")).Once()

	h := runInteraction(t, bot, aiInteraction(u, "¿Cuál es la capital de Francia?"))
	waitForResponse(t, h)
	edit := waitForEdit(t, h)
	require.NotNil(t, edit.Content)
	assert.Equal(t, msgAIError, *edit.Content)

	logs := logDocuments(t, bot, datastore.Document{"tipo": logTypeAI})
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0]["error"], "upstream unavailable")
	assert.NotContains(t, logs[0], "respuesta")
}

func TestCommandAI_EmptyReply(t *testing.T) {
	bot := newTestBot(t)
	u := newDiscordUser(t)
	m := withAIClient(bot)
	m.On("CreateChatCompletion", mock.Anything, mock.Anything).Return(chatReply("   "), nil).Once()

	h := runInteraction(t, bot, aiInteraction(u, "Hola"))
	waitForResponse(t, h)
	edit := waitForEdit(t, h)
	assert.Equal(t, msgAIError, *edit.Content)
}

func TestCommandAI_Blocked(t *testing.T) {
	bot := newTestBot(t)
	u := newDiscordUser(t)
	m := withAIClient(bot)

	content := respondContent(t, bot, aiInteraction(u, "¿Cómo aprendo Python?"), false)
	assert.Equal(t, DefaultBlockMessage, content)
	m.AssertNotCalled(t, "CreateChatCompletion", mock.Anything, mock.Anything)

	logs := logDocuments(t, bot, datastore.Document{"tipo": logTypeAI})
	require.Len(t, logs, 1)
	assert.Equal(t, true, logs[0]["bloqueado"])
	assert.Equal(t, "python", logs[0]["palabra_clave"])
}

func TestCommandAI_BlockingDisabled(t *testing.T) {
	bot := newTestBot(t)
	u := newDiscordUser(t)
	m := withAIClient(bot)
	m.On("CreateChatCompletion", mock.Anything, mock.Anything).Return(chatReply("Con práctica."), nil).Once()

	disabled := false
	_, err := bot.runtimeConfig.Update(
		context.Background(),
		RuntimeSettingsUpdate{BlockProgramming: &disabled},
	)
	require.NoError(t, err)

	h := runInteraction(t, bot, aiInteraction(u, "¿Cómo aprendo Python?"))
	waitForResponse(t, h)
	edit := waitForEdit(t, h)
	assert.True(t, strings.HasSuffix(*edit.Content, "Con práctica."))
	m.AssertExpectations(t)
}

func TestCommandAI_CustomBlockMessage(t *testing.T) {
	bot := newTestBot(t)
	u := newDiscordUser(t)
	withAIClient(bot)

	msg := "No hablo de código."
	_, err := bot.runtimeConfig.Update(
		context.Background(),
		RuntimeSettingsUpdate{BlockMessage: &msg, ProgrammingKeywords: []string{"rust"}},
	)
	require.NoError(t, err)

	content := respondContent(t, bot, aiInteraction(u, "me gusta rust"), false)
	assert.Equal(t, msg, content)
}

func TestCommandAI_Unavailable(t *testing.T) {
	bot := newTestBot(t)
	bot.openai.client = nil
	u := newDiscordUser(t)

	content := respondContent(t, bot, aiInteraction(u, "¿Qué hora es?"), true)
	assert.Equal(t, msgAIUnavailable, content)

	// blocked prompts are answered even without a client
	content = respondContent(t, bot, aiInteraction(u, "ayúdame con mi script"), false)
	assert.Equal(t, DefaultBlockMessage, content)
}

func TestCommandAI_EmptyPrompt(t *testing.T) {
	bot := newTestBot(t)
	u := newDiscordUser(t)
	content := respondContent(t, bot, aiInteraction(u, "   "), true)
	assert.Equal(t, msgAIEmptyPrompt, content)
}

func TestCommandAI_LongPromptTruncated(t *testing.T) {
	bot := newTestBot(t)
	u := newDiscordUser(t)
	m := withAIClient(bot)
	m.On(
		"CreateChatCompletion",
		mock.Anything,
		mock.MatchedBy(
			func(req openai.ChatCompletionRequest) bool {
				return len([]rune(req.Messages[1].Content)) <= aiPromptMaxLength
			},
		),
	).Return(chatReply("ok"), nil).Once()

	h := runInteraction(t, bot, aiInteraction(u, strings.Repeat("a", aiPromptMaxLength*2)))
	waitForResponse(t, h)
	waitForEdit(t, h)
	m.AssertExpectations(t)
}
