package games

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuestion_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		q       Question
		wantErr bool
	}{
		{"ok", Question{Text: "¿?", Options: []string{"a", "b"}, Answer: 1}, false},
		{"empty text", Question{Text: " ", Options: []string{"a", "b"}}, true},
		{"one option", Question{Text: "¿?", Options: []string{"a"}}, true},
		{"six options", Question{Text: "¿?", Options: []string{"a", "b", "c", "d", "e", "f"}}, true},
		{"negative answer", Question{Text: "¿?", Options: []string{"a", "b"}, Answer: -1}, true},
		{"answer out of range", Question{Text: "¿?", Options: []string{"a", "b"}, Answer: 2}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.q.Validate()
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidQuestion)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultQuestionsValid(t *testing.T) {
	t.Parallel()
	require.NotEmpty(t, DefaultQuestions)
	for _, q := range DefaultQuestions {
		assert.NoError(t, q.Validate(), q.Text)
	}
}

func TestNewTrivia_Defaults(t *testing.T) {
	t.Parallel()
	_, err := NewTrivia(Question{Text: "x"})
	assert.ErrorIs(t, err, ErrInvalidQuestion)

	opts := []string{"a", "b"}
	tr, err := NewTrivia(Question{Text: "¿?", Options: opts})
	require.NoError(t, err)
	q := tr.Question()
	assert.Equal(t, DefaultTriviaCategory, q.Category)
	assert.Equal(t, DefaultTriviaDifficulty, q.Difficulty)

	opts[0] = "changed"
	assert.Equal(t, "a", tr.Question().Options[0])
}

func TestTrivia(t *testing.T) {
	t.Parallel()
	tr, err := NewTrivia(DefaultQuestions[0])
	require.NoError(t, err)
	assert.Equal(t, StateInProgress, tr.State())

	correct, err := tr.Answer("ana", 1)
	require.NoError(t, err)
	assert.True(t, correct)

	correct, err = tr.Answer("bruno", 0)
	require.NoError(t, err)
	assert.False(t, correct)

	_, err = tr.Answer("carla", 4)
	assert.ErrorIs(t, err, ErrInvalidAnswer)

	correct, err = tr.Answer("carla", 1)
	require.NoError(t, err)
	assert.True(t, correct)

	// the last answer counts
	_, err = tr.Answer("ana", 3)
	require.NoError(t, err)
	correct, err = tr.Answer("bruno", 1)
	require.NoError(t, err)
	assert.True(t, correct)

	assert.Equal(t, map[string]bool{"ana": false, "bruno": true, "carla": true}, tr.Results())
	assert.Equal(t, []string{"bruno", "carla"}, tr.Winners())

	tr.Finish()
	assert.Equal(t, StateFinished, tr.State())
	_, err = tr.Answer("dani", 1)
	assert.ErrorIs(t, err, ErrGameOver)

	tr.Cancel()
	assert.Equal(t, StateFinished, tr.State())
}

func TestTrivia_NoWinners(t *testing.T) {
	t.Parallel()
	tr, err := NewTrivia(DefaultQuestions[1])
	require.NoError(t, err)
	assert.Empty(t, tr.Winners())
	tr.Cancel()
	assert.Equal(t, StateCancelled, tr.State())
}
