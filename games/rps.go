package games

import (
	"fmt"
	"strings"
	"sync"
)

// Choice is a rock-paper-scissors hand.
type Choice string

const (
	ChoiceRock     Choice = "piedra"
	ChoicePaper    Choice = "papel"
	ChoiceScissors Choice = "tijeras"
)

// Choices lists the valid hands, in display order.
var Choices = []Choice{ChoiceRock, ChoicePaper, ChoiceScissors}

// beats maps each hand to the hand it defeats.
var beats = map[Choice]Choice{
	ChoiceRock:     ChoiceScissors,
	ChoicePaper:    ChoiceRock,
	ChoiceScissors: ChoicePaper,
}

// ParseChoice accepts a hand name in any case.
func ParseChoice(s string) (Choice, error) {
	c := Choice(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := beats[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidChoice, s)
	}
	return c, nil
}

// Compare returns 1 if a beats b, -1 if b beats a, and 0 on a tie.
func Compare(a, b Choice) int {
	switch {
	case a == b:
		return 0
	case beats[a] == b:
		return 1
	default:
		return -1
	}
}

// RockPaperScissors is a two-player game. The first player to join waits
// for a second, distinct player; then each picks a hand once.
type RockPaperScissors struct {
	mu      sync.Mutex
	players [2]string
	choices [2]Choice
	state   State
	winner  string
	draw    bool
}

func NewRockPaperScissors() *RockPaperScissors {
	return &RockPaperScissors{state: StateWaiting}
}

// Join adds a player, returning true once the game has two players and
// has started.
func (g *RockPaperScissors) Join(player string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case g.state != StateWaiting:
		return false
	case g.players[0] == "":
		g.players[0] = player
		return false
	case player != g.players[0]:
		g.players[1] = player
		g.state = StateInProgress
		return true
	default:
		return false
	}
}

// Play records a player's hand, returning true once both players have
// played and the game is decided.
func (g *RockPaperScissors) Play(player string, choice string) (bool, error) {
	c, err := ParseChoice(choice)
	if err != nil {
		return false, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateInProgress {
		return false, ErrGameOver
	}

	idx := g.playerIndex(player)
	if idx < 0 {
		return false, ErrNotAPlayer
	}
	if g.choices[idx] != "" {
		return false, ErrAlreadyPlayed
	}
	g.choices[idx] = c

	if g.choices[0] == "" || g.choices[1] == "" {
		return false, nil
	}

	switch Compare(g.choices[0], g.choices[1]) {
	case 1:
		g.winner = g.players[0]
	case -1:
		g.winner = g.players[1]
	default:
		g.draw = true
	}
	g.state = StateFinished
	return true, nil
}

func (g *RockPaperScissors) playerIndex(player string) int {
	for i, p := range g.players {
		if p != "" && p == player {
			return i
		}
	}
	return -1
}

// Outcome returns the winning player, or draw=true on a tie. Both are
// zero until the game is finished.
func (g *RockPaperScissors) Outcome() (winner string, draw bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.winner, g.draw
}

// Players returns the joined players.
func (g *RockPaperScissors) Players() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var players []string
	for _, p := range g.players {
		if p != "" {
			players = append(players, p)
		}
	}
	return players
}

// ChoiceOf returns the hand a player picked, if any.
func (g *RockPaperScissors) ChoiceOf(player string) (Choice, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx := g.playerIndex(player)
	if idx < 0 || g.choices[idx] == "" {
		return "", false
	}
	return g.choices[idx], true
}

func (g *RockPaperScissors) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state.Active() {
		g.state = StateCancelled
	}
}

func (g *RockPaperScissors) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}
