package games

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

const (
	DefaultTriviaCategory   = "General"
	DefaultTriviaDifficulty = "Media"
	maxTriviaOptions        = 5
)

// Question is a multiple-choice trivia question, as stored in the
// "preguntas" collection.
type Question struct {
	Text       string   `json:"pregunta" mapstructure:"pregunta"`
	Options    []string `json:"opciones" mapstructure:"opciones"`
	Answer     int      `json:"respuesta" mapstructure:"respuesta"`
	Category   string   `json:"categoria,omitempty" mapstructure:"categoria"`
	Difficulty string   `json:"dificultad,omitempty" mapstructure:"dificultad"`
}

// Validate checks the question has text, two to five options, and a
// correct-answer index within range.
func (q Question) Validate() error {
	switch {
	case strings.TrimSpace(q.Text) == "":
		return fmt.Errorf("%w: empty question", ErrInvalidQuestion)
	case len(q.Options) < 2 || len(q.Options) > maxTriviaOptions:
		return fmt.Errorf("%w: needs 2-%d options, got %d", ErrInvalidQuestion, maxTriviaOptions, len(q.Options))
	case q.Answer < 0 || q.Answer >= len(q.Options):
		return fmt.Errorf("%w: answer index %d out of range", ErrInvalidQuestion, q.Answer)
	}
	return nil
}

// DefaultQuestions are used when the question collection is empty.
var DefaultQuestions = []Question{
	{
		Text:       "¿Cuál es el planeta más grande del sistema solar?",
		Options:    []string{"Saturno", "Júpiter", "Neptuno", "Tierra"},
		Answer:     1,
		Category:   "Ciencia",
		Difficulty: "Fácil",
	},
	{
		Text:       "¿En qué año llegó el ser humano a la Luna?",
		Options:    []string{"1965", "1969", "1972", "1959"},
		Answer:     1,
		Category:   "Historia",
		Difficulty: DefaultTriviaDifficulty,
	},
	{
		Text:       "¿Qué lenguaje de programación creó Guido van Rossum?",
		Options:    []string{"Java", "Ruby", "Python", "Go"},
		Answer:     2,
		Category:   "Tecnología",
		Difficulty: "Fácil",
	},
	{
		Text:       "¿Cuál es el símbolo químico del oro?",
		Options:    []string{"Ag", "Au", "Fe", "Or"},
		Answer:     1,
		Category:   "Ciencia",
		Difficulty: DefaultTriviaDifficulty,
	},
	{
		Text:       "¿Cuántos jugadores tiene un equipo de fútbol en el campo?",
		Options:    []string{"9", "10", "11", "12"},
		Answer:     2,
		Category:   "Deportes",
		Difficulty: "Fácil",
	},
}

// Trivia is one question open to every player in a channel. Players may
// change their answer until the game is finished; the last one counts.
type Trivia struct {
	mu       sync.Mutex
	question Question
	answers  map[string]int
	order    []string
	state    State
}

func NewTrivia(q Question) (*Trivia, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if q.Category == "" {
		q.Category = DefaultTriviaCategory
	}
	if q.Difficulty == "" {
		q.Difficulty = DefaultTriviaDifficulty
	}
	q.Options = slices.Clone(q.Options)
	return &Trivia{
		question: q,
		answers:  map[string]int{},
		state:    StateInProgress,
	}, nil
}

func (t *Trivia) Question() Question {
	t.mu.Lock()
	defer t.mu.Unlock()
	q := t.question
	q.Options = slices.Clone(q.Options)
	return q
}

// Answer records a player's answer and reports whether it's correct.
func (t *Trivia) Answer(player string, option int) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateInProgress {
		return false, ErrGameOver
	}
	if option < 0 || option >= len(t.question.Options) {
		return false, fmt.Errorf("%w: %d", ErrInvalidAnswer, option)
	}
	if _, ok := t.answers[player]; !ok {
		t.order = append(t.order, player)
	}
	t.answers[player] = option
	return option == t.question.Answer, nil
}

// Results maps each player to whether their answer is correct.
func (t *Trivia) Results() map[string]bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	results := make(map[string]bool, len(t.answers))
	for player, option := range t.answers {
		results[player] = option == t.question.Answer
	}
	return results
}

// Winners returns the players who answered correctly, in the order they
// first answered.
func (t *Trivia) Winners() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var winners []string
	for _, player := range t.order {
		if t.answers[player] == t.question.Answer {
			winners = append(winners, player)
		}
	}
	return winners
}

// Finish closes the question to further answers.
func (t *Trivia) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Active() {
		t.state = StateFinished
	}
}

func (t *Trivia) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Active() {
		t.state = StateCancelled
	}
}

func (t *Trivia) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
