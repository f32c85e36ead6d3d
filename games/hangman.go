package games

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultHangmanAttempts = 6
	maxHangmanHints        = 2
	hiddenLetter           = '_'
)

// GuessResult is the outcome of a single letter guess.
type GuessResult int

const (
	GuessMiss GuessResult = iota
	GuessHit
	GuessRepeated
	GuessInvalid
)

func (r GuessResult) String() string {
	switch r {
	case GuessMiss:
		return "miss"
	case GuessHit:
		return "hit"
	case GuessRepeated:
		return "repeated"
	case GuessInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("GuessResult(%d)", int(r))
	}
}

var hangmanStages = [DefaultHangmanAttempts + 1]string{
	"  ____\n  |  |\n  |\n  |\n  |\n__|__",
	"  ____\n  |  |\n  |  O\n  |\n  |\n__|__",
	"  ____\n  |  |\n  |  O\n  |  |\n  |\n__|__",
	"  ____\n  |  |\n  |  O\n  | /|\n  |\n__|__",
	"  ____\n  |  |\n  |  O\n  | /|\\\n  |\n__|__",
	"  ____\n  |  |\n  |  O\n  | /|\\\n  | /\n__|__",
	"  ____\n  |  |\n  |  O\n  | /|\\\n  | / \\\n__|__",
}

// Hangman is a game of ahorcado. The word is kept uppercase; characters
// that aren't letters (spaces, hyphens) are shown from the start.
type Hangman struct {
	mu           sync.Mutex
	word         []rune
	masked       []rune
	tried        map[rune]bool
	attemptsLeft int
	state        State
	won          bool
	hints        []string
	hintsShown   int
	maxHints     int
}

// NewHangman starts a game for word. Up to two of hints can be revealed
// with [Hangman.Hint].
func NewHangman(word string, hints []string) *Hangman {
	w := []rune(strings.ToUpper(strings.TrimSpace(word)))
	masked := make([]rune, len(w))
	for i, r := range w {
		if unicode.IsLetter(r) {
			masked[i] = hiddenLetter
		} else {
			masked[i] = r
		}
	}
	h := &Hangman{
		word:         w,
		masked:       masked,
		tried:        map[rune]bool{},
		attemptsLeft: DefaultHangmanAttempts,
		state:        StateInProgress,
		hints:        slices.Clone(hints),
	}
	if len(hints) > 0 {
		h.maxHints = min(maxHangmanHints, len(hints))
	}
	return h
}

// GuessLetter tries a single letter. A wrong letter costs an attempt;
// letters already tried and input that isn't one letter cost nothing.
func (h *Hangman) GuessLetter(letter string) (GuessResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateInProgress {
		return GuessInvalid, ErrGameOver
	}

	letter = strings.ToUpper(strings.TrimSpace(letter))
	if utf8.RuneCountInString(letter) != 1 {
		return GuessInvalid, nil
	}
	r, _ := utf8.DecodeRuneInString(letter)
	if !unicode.IsLetter(r) {
		return GuessInvalid, nil
	}
	if h.tried[r] {
		return GuessRepeated, nil
	}
	h.tried[r] = true

	if !slices.Contains(h.word, r) {
		h.attemptsLeft--
		if h.attemptsLeft <= 0 {
			h.attemptsLeft = 0
			h.finish(false)
		}
		return GuessMiss, nil
	}

	for i, l := range h.word {
		if l == r {
			h.masked[i] = r
		}
	}
	if !slices.Contains(h.masked, hiddenLetter) {
		h.finish(true)
	}
	return GuessHit, nil
}

// GuessWord tries the whole word, case-insensitively. A wrong guess costs
// one attempt.
func (h *Hangman) GuessWord(word string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateInProgress {
		return false, ErrGameOver
	}

	if strings.ToUpper(strings.TrimSpace(word)) == string(h.word) {
		copy(h.masked, h.word)
		h.finish(true)
		return true, nil
	}

	h.attemptsLeft = max(0, h.attemptsLeft-1)
	if h.attemptsLeft == 0 {
		h.finish(false)
	}
	return false, nil
}

func (h *Hangman) finish(won bool) {
	h.state = StateFinished
	h.won = won
}

// Hint returns the next unrevealed hint, or false when none are left.
func (h *Hangman) Hint() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hintsShown >= h.maxHints {
		return "", false
	}
	hint := h.hints[h.hintsShown]
	h.hintsShown++
	return hint, true
}

// HintsLeft returns how many hints can still be revealed.
func (h *Hangman) HintsLeft() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.maxHints - h.hintsShown
}

// Cancel ends an unfinished game without a winner.
func (h *Hangman) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.Active() {
		h.state = StateCancelled
	}
}

func (h *Hangman) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Won reports whether the word was guessed. Only meaningful once the
// game is finished.
func (h *Hangman) Won() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.won
}

func (h *Hangman) Word() string {
	return string(h.word)
}

func (h *Hangman) AttemptsLeft() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attemptsLeft
}

// Masked returns the word with unguessed letters as underscores,
// separated by spaces.
func (h *Hangman) Masked() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.maskedLocked()
}

func (h *Hangman) maskedLocked() string {
	parts := make([]string, len(h.masked))
	for i, r := range h.masked {
		parts[i] = string(r)
	}
	return strings.Join(parts, " ")
}

// TriedLetters returns the guessed letters, sorted.
func (h *Hangman) TriedLetters() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.triedLocked()
}

func (h *Hangman) triedLocked() []string {
	letters := make([]string, 0, len(h.tried))
	for r := range h.tried {
		letters = append(letters, string(r))
	}
	slices.Sort(letters)
	return letters
}

// Render draws the gallows, the masked word, tried letters and
// remaining attempts as a Discord code block.
func (h *Hangman) Render() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	attempts := min(max(0, h.attemptsLeft), DefaultHangmanAttempts)
	tried := "Ninguna"
	if len(h.tried) > 0 {
		tried = strings.Join(h.triedLocked(), ", ")
	}

	b := &strings.Builder{}
	b.WriteString("```\n")
	b.WriteString(hangmanStages[DefaultHangmanAttempts-attempts])
	b.WriteString("\n\n")
	b.WriteString(h.maskedLocked())
	b.WriteString("\n\nLetras intentadas: ")
	b.WriteString(tried)
	_, _ = fmt.Fprintf(b, "\nIntentos restantes: %d\n```", h.attemptsLeft)
	return b.String()
}
