package games

import (
	"context"
	"errors"
	"fmt"
	"github.com/lmittmann/tint"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"
	"unicode"
)

const (
	DefaultWordModel       = "deepseek/deepseek-chat"
	DefaultWordTemperature = 0.7
	DefaultWordMaxTokens   = 100
	DefaultWordTimeout     = 30 * time.Second
	wordReplySeparator     = "|"
)

// Word is a hangman word with its hints.
type Word struct {
	Word  string   `json:"palabra"`
	Hints []string `json:"pistas"`
}

// FallbackWords are used when no text-generation client is configured,
// or when it fails.
var FallbackWords = []Word{
	{"PYTHON", []string{"Lenguaje de programación", "Creado por Guido van Rossum"}},
	{"JAVA", []string{"Lenguaje de programación", "Desarrollado por Sun Microsystems"}},
	{"JAVASCRIPT", []string{"Lenguaje de programación", "Usado en navegadores web"}},
	{"PROGRAMACION", []string{"Proceso de crear software", "Involucra escribir código"}},
	{"ALGORITMO", []string{"Secuencia de pasos", "Usado para resolver problemas"}},
}

var wordTopics = []string{
	"ciudades del mundo",
	"animales",
	"frutas",
	"países",
	"deportes",
	"películas famosas",
	"libros clásicos",
	"inventos importantes",
	"elementos químicos",
	"instrumentos musicales",
}

const wordPromptFormat = `Necesito una palabra para un juego del ahorcado sobre %s.
La palabra debe tener entre 5 y 12 letras y ser común en español.
También necesito 2 pistas cortas (máximo 20 caracteres cada una) que ayuden a adivinarla.

Por favor, responde SOLO con el siguiente formato, sin explicaciones adicionales:
PALABRA|Pista 1|Pista 2

Ejemplo:
ELEFANTE|Animal grande|Tiene trompa`

// ChatCompleter is the part of an OpenAI-compatible client used to
// generate words. *openai.Client satisfies it.
type ChatCompleter interface {
	CreateChatCompletion(
		ctx context.Context,
		request openai.ChatCompletionRequest,
	) (openai.ChatCompletionResponse, error)
}

// WordGenerator asks a chat-completion model for hangman words, falling
// back to [FallbackWords].
type WordGenerator struct {
	client  ChatCompleter
	model   string
	limiter *rate.Limiter
	timeout time.Duration
	logger  *slog.Logger
}

// NewWordGenerator returns a generator using client. A nil client always
// yields fallback words. A nil limiter disables rate limiting.
func NewWordGenerator(
	client ChatCompleter,
	model string,
	limiter *rate.Limiter,
	logger *slog.Logger,
) *WordGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	if model == "" {
		model = DefaultWordModel
	}
	return &WordGenerator{
		client:  client,
		model:   model,
		limiter: limiter,
		timeout: DefaultWordTimeout,
		logger:  logger.With("logger", "word_generator"),
	}
}

// Generate returns a new word. It never fails: any problem reaching the
// model, or a reply in the wrong format, yields a fallback word.
func (g *WordGenerator) Generate(ctx context.Context) Word {
	if g == nil || g.client == nil {
		return RandomFallbackWord()
	}
	w, err := g.generate(ctx)
	if err != nil {
		g.logger.WarnContext(ctx, "word generation failed, using fallback", tint.Err(err))
		return RandomFallbackWord()
	}
	return w
}

func (g *WordGenerator) generate(ctx context.Context) (Word, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return Word{}, fmt.Errorf("rate limiter: %w", err)
		}
	}

	topic := wordTopics[rand.IntN(len(wordTopics))]
	resp, err := g.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: g.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: fmt.Sprintf(wordPromptFormat, topic),
				},
			},
			Temperature: DefaultWordTemperature,
			MaxTokens:   DefaultWordMaxTokens,
		},
	)
	if err != nil {
		return Word{}, err
	}
	if len(resp.Choices) == 0 {
		return Word{}, errors.New("no choices in response")
	}
	content := resp.Choices[0].Message.Content
	w, ok := ParseWordReply(content)
	if !ok {
		return Word{}, fmt.Errorf("unexpected reply format: %q", content)
	}
	g.logger.DebugContext(ctx, "generated word", "topic", topic, "length", len([]rune(w.Word)))
	return w, nil
}

// ParseWordReply parses a "PALABRA|pista 1|pista 2" reply. The word is
// uppercased; extra fields are ignored.
func ParseWordReply(content string) (Word, bool) {
	content = strings.TrimSpace(content)
	if !strings.Contains(content, wordReplySeparator) {
		return Word{}, false
	}
	parts := strings.Split(content, wordReplySeparator)
	if len(parts) < 3 {
		return Word{}, false
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	word := strings.ToUpper(parts[0])
	if word == "" || !strings.ContainsFunc(word, unicode.IsLetter) {
		return Word{}, false
	}
	return Word{Word: word, Hints: []string{parts[1], parts[2]}}, true
}

// RandomFallbackWord picks one of [FallbackWords].
func RandomFallbackWord() Word {
	w := FallbackWords[rand.IntN(len(FallbackWords))]
	return Word{Word: w.Word, Hints: append([]string(nil), w.Hints...)}
}
