package games

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type fakeCompleter struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests []openai.ChatCompletionRequest
}

func (f *fakeCompleter) CreateChatCompletion(
	_ context.Context,
	req openai.ChatCompletionRequest,
) (openai.ChatCompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: f.reply}},
		},
	}, nil
}

func isFallback(w Word) bool {
	return slices.ContainsFunc(FallbackWords, func(f Word) bool {
		return f.Word == w.Word && slices.Equal(f.Hints, w.Hints)
	})
}

func TestParseWordReply(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		input  string
		want   Word
		wantOK bool
	}{
		{
			name:   "ok",
			input:  "elefante|Animal grande|Tiene trompa",
			want:   Word{Word: "ELEFANTE", Hints: []string{"Animal grande", "Tiene trompa"}},
			wantOK: true,
		},
		{
			name:   "whitespace and extra fields",
			input:  "\n PARIS | Ciudad | Torre Eiffel | extra\n",
			want:   Word{Word: "PARIS", Hints: []string{"Ciudad", "Torre Eiffel"}},
			wantOK: true,
		},
		{name: "no separator", input: "ELEFANTE"},
		{name: "two fields", input: "ELEFANTE|Animal"},
		{name: "empty word", input: "|a|b"},
		{name: "no letters", input: "123|a|b"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseWordReply(tc.input)
			assert.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestWordGenerator_Generate(t *testing.T) {
	t.Parallel()
	client := &fakeCompleter{reply: "guitarra|Instrumento|Tiene cuerdas"}
	g := NewWordGenerator(client, "", nil, slog.Default())

	w := g.Generate(context.Background())
	assert.Equal(t, Word{Word: "GUITARRA", Hints: []string{"Instrumento", "Tiene cuerdas"}}, w)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, DefaultWordModel, req.Model)
	assert.InDelta(t, DefaultWordTemperature, req.Temperature, 0.0001)
	assert.Equal(t, DefaultWordMaxTokens, req.MaxTokens)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, openai.ChatMessageRoleUser, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "PALABRA|Pista 1|Pista 2")
}

func TestWordGenerator_Fallback(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		client ChatCompleter
	}{
		{"nil client", nil},
		{"client error", &fakeCompleter{err: errors.New("boom")}},
		{"bad format", &fakeCompleter{reply: "lo siento, no puedo"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := NewWordGenerator(tc.client, "", nil, nil)
			assert.True(t, isFallback(g.Generate(context.Background())))
		})
	}

	var nilGen *WordGenerator
	assert.True(t, isFallback(nilGen.Generate(context.Background())))
}

func TestWordGenerator_RateLimited(t *testing.T) {
	t.Parallel()
	client := &fakeCompleter{reply: "TIGRE|Felino|Rayas"}
	limiter := rate.NewLimiter(rate.Limit(0.001), 1)
	g := NewWordGenerator(client, "modelo", limiter, nil)

	assert.Equal(t, "TIGRE", g.Generate(context.Background()).Word)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, isFallback(g.Generate(ctx)))
	assert.Len(t, client.requests, 1)
	assert.Equal(t, "modelo", client.requests[0].Model)
}

func TestRandomFallbackWord_Copy(t *testing.T) {
	t.Parallel()
	w := RandomFallbackWord()
	w.Hints[0] = "changed"
	for _, f := range FallbackWords {
		assert.NotEqual(t, "changed", f.Hints[0])
	}
}
