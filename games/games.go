// Package games implements the bot's text mini-games: hangman
// (ahorcado), rock-paper-scissors (piedra, papel o tijeras) and trivia.
//
// Each game is a small state machine safe for concurrent use; the bot
// keeps at most one active game per channel.
package games

import "errors"

// State is the lifecycle state of a game.
type State string

const (
	StateWaiting    State = "en_espera"
	StateInProgress State = "en_curso"
	StateFinished   State = "terminado"
	StateCancelled  State = "cancelado"
)

func (s State) String() string {
	return string(s)
}

// Active reports whether the game still accepts moves.
func (s State) Active() bool {
	return s == StateWaiting || s == StateInProgress
}

var (
	ErrGameOver        = errors.New("game is not in progress")
	ErrInvalidChoice   = errors.New("invalid choice")
	ErrNotAPlayer      = errors.New("not a player in this game")
	ErrAlreadyPlayed   = errors.New("player already made a choice")
	ErrInvalidQuestion = errors.New("invalid trivia question")
	ErrInvalidAnswer   = errors.New("answer out of range")
)
