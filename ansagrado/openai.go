package ansagrado

import (
	"context"
	"errors"
	"fmt"
	"github.com/Sitedirector05/Vesta-Technologies-Ansagrado-BASIC-Bot/games"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	aiRequestTimeout = 60 * time.Second
	aiSystemPrompt   = "Eres Ansagrado, un asistente amable de un servidor de Discord. " +
		"Responde siempre en español, de forma clara y breve."
)

var (
	ErrAIUnavailable = errors.New("ai client not configured")
	ErrAIEmptyReply  = errors.New("empty ai reply")
)

// OpenAI wraps an OpenAI-compatible chat completion client shared by
// /ia and the hangman word generator.
type OpenAI struct {
	client         games.ChatCompleter
	config         *OpenAIConfig
	requestLimiter *rate.Limiter
	logger         *slog.Logger
}

// newOpenAI returns an OpenAI without a client if no token is set.
func newOpenAI(config *OpenAIConfig, httpClient *http.Client) *OpenAI {
	o := &OpenAI{
		config: config,
		logger: newComponentLogger("openai", config.LogLevel),
	}

	limit := rate.Limit(config.MaxRequestsPerSecond)
	if config.MaxRequestsPerSecond <= 0 {
		limit = rate.Limit(DefaultOpenAIMaxRequestsPerSecond)
	}
	o.requestLimiter = rate.NewLimiter(limit, 1)

	if config.Token == "" {
		o.logger.Warn("no openai token configured, ai features disabled")
		return o
	}

	clientCfg := openai.DefaultConfig(config.Token)
	if config.BaseURL != "" {
		clientCfg.BaseURL = config.BaseURL
	}
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}
	o.client = openai.NewClientWithConfig(clientCfg)
	return o
}

func (o *OpenAI) enabled() bool {
	return o != nil && o.client != nil
}

// wordGenerator returns a hangman word generator sharing this client
// and its rate limit.
func (o *OpenAI) wordGenerator() *games.WordGenerator {
	return games.NewWordGenerator(o.client, o.config.Model, o.requestLimiter, o.logger)
}

// Ask sends a single question to the chat model and returns its reply.
func (o *OpenAI) Ask(ctx context.Context, prompt string) (string, error) {
	if !o.enabled() {
		return "", ErrAIUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, aiRequestTimeout)
	defer cancel()

	if err := o.requestLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: o.config.Model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: aiSystemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			MaxTokens:   o.config.ChatMaxTokens,
			Temperature: o.config.ChatTemperature,
		},
	)
	if err != nil {
		return "", fmt.Errorf("error creating chat completion: %w", err)
	}
	o.logger.InfoContext(
		ctx,
		"chat completion",
		"model", resp.Model,
		"elapsed", time.Since(start),
		slog.Group(
			"usage",
			"prompt_tokens", resp.Usage.PromptTokens,
			"completion_tokens", resp.Usage.CompletionTokens,
		),
	)
	if len(resp.Choices) == 0 {
		return "", ErrAIEmptyReply
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrAIEmptyReply
	}
	return content, nil
}
