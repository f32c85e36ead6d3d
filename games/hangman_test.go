package games

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHangman_Win(t *testing.T) {
	t.Parallel()
	h := NewHangman("gato", []string{"Animal", "Maúlla"})
	assert.Equal(t, "GATO", h.Word())
	assert.Equal(t, "_ _ _ _", h.Masked())
	assert.Equal(t, StateInProgress, h.State())

	for _, l := range []string{"g", "A", "t"} {
		res, err := h.GuessLetter(l)
		require.NoError(t, err)
		assert.Equal(t, GuessHit, res, l)
	}
	assert.Equal(t, "G A T _", h.Masked())
	assert.Equal(t, StateInProgress, h.State())

	res, err := h.GuessLetter("o")
	require.NoError(t, err)
	assert.Equal(t, GuessHit, res)
	assert.Equal(t, StateFinished, h.State())
	assert.True(t, h.Won())
	assert.Equal(t, DefaultHangmanAttempts, h.AttemptsLeft())

	_, err = h.GuessLetter("x")
	assert.ErrorIs(t, err, ErrGameOver)
}

func TestHangman_Lose(t *testing.T) {
	t.Parallel()
	h := NewHangman("SOL", nil)
	misses := []string{"A", "B", "C", "D", "E", "F"}
	for i, l := range misses {
		res, err := h.GuessLetter(l)
		require.NoError(t, err)
		assert.Equal(t, GuessMiss, res)
		assert.Equal(t, DefaultHangmanAttempts-i-1, h.AttemptsLeft())
	}
	assert.Equal(t, StateFinished, h.State())
	assert.False(t, h.Won())
	assert.Equal(t, 0, h.AttemptsLeft())
}

func TestHangman_FreeGuesses(t *testing.T) {
	t.Parallel()
	h := NewHangman("LUNA", nil)

	_, err := h.GuessLetter("z")
	require.NoError(t, err)
	assert.Equal(t, DefaultHangmanAttempts-1, h.AttemptsLeft())

	tests := []struct {
		input string
		want  GuessResult
	}{
		{"Z", GuessRepeated},
		{"z", GuessRepeated},
		{"", GuessInvalid},
		{"ab", GuessInvalid},
		{"1", GuessInvalid},
		{"?", GuessInvalid},
	}
	for _, tc := range tests {
		res, err := h.GuessLetter(tc.input)
		require.NoError(t, err)
		assert.Equal(t, tc.want, res, "input %q", tc.input)
	}
	assert.Equal(t, DefaultHangmanAttempts-1, h.AttemptsLeft())
	assert.Equal(t, []string{"Z"}, h.TriedLetters())
}

func TestHangman_NonLettersRevealed(t *testing.T) {
	t.Parallel()
	h := NewHangman("nueva york", nil)
	assert.Equal(t, "_ _ _ _ _   _ _ _ _", h.Masked())
}

func TestHangman_GuessWord(t *testing.T) {
	t.Parallel()
	h := NewHangman("PERRO", nil)

	ok, err := h.GuessWord("gato")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, DefaultHangmanAttempts-1, h.AttemptsLeft())
	assert.Equal(t, StateInProgress, h.State())

	ok, err = h.GuessWord(" perro ")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, h.Won())
	assert.Equal(t, "P E R R O", h.Masked())

	_, err = h.GuessWord("perro")
	assert.ErrorIs(t, err, ErrGameOver)
}

func TestHangman_GuessWordLastAttempt(t *testing.T) {
	t.Parallel()
	h := NewHangman("MAR", nil)
	for _, l := range []string{"B", "C", "D", "E", "F"} {
		_, err := h.GuessLetter(l)
		require.NoError(t, err)
	}
	ok, err := h.GuessWord("MAL")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, StateFinished, h.State())
	assert.False(t, h.Won())
}

func TestHangman_Hints(t *testing.T) {
	t.Parallel()
	h := NewHangman("PYTHON", []string{"Lenguaje", "Serpiente", "Extra"})
	assert.Equal(t, 2, h.HintsLeft())

	hint, ok := h.Hint()
	assert.True(t, ok)
	assert.Equal(t, "Lenguaje", hint)

	hint, ok = h.Hint()
	assert.True(t, ok)
	assert.Equal(t, "Serpiente", hint)

	_, ok = h.Hint()
	assert.False(t, ok)
	assert.Equal(t, 0, h.HintsLeft())

	noHints := NewHangman("PYTHON", nil)
	_, ok = noHints.Hint()
	assert.False(t, ok)
}

func TestHangman_Cancel(t *testing.T) {
	t.Parallel()
	h := NewHangman("RIO", nil)
	h.Cancel()
	assert.Equal(t, StateCancelled, h.State())
	_, err := h.GuessLetter("R")
	assert.ErrorIs(t, err, ErrGameOver)
}

func TestHangman_Render(t *testing.T) {
	t.Parallel()
	h := NewHangman("OSO", nil)
	out := h.Render()
	assert.True(t, strings.HasPrefix(out, "```\n"))
	assert.True(t, strings.HasSuffix(out, "```"))
	assert.Contains(t, out, "_ _ _")
	assert.Contains(t, out, "Letras intentadas: Ninguna")
	assert.Contains(t, out, "Intentos restantes: 6")
	assert.NotContains(t, out, "O\n")

	_, err := h.GuessLetter("x")
	require.NoError(t, err)
	_, err = h.GuessLetter("o")
	require.NoError(t, err)
	out = h.Render()
	assert.Contains(t, out, "O _ O")
	assert.Contains(t, out, "Letras intentadas: O, X")
	assert.Contains(t, out, "Intentos restantes: 5")
	assert.Contains(t, out, "|  O\n")
}

func TestGuessResult_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "hit", GuessHit.String())
	assert.Equal(t, "GuessResult(9)", GuessResult(9).String())
}
