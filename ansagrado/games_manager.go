package ansagrado

import (
	"errors"
	"github.com/Sitedirector05/Vesta-Technologies-Ansagrado-BASIC-Bot/games"
	"sync"
	"time"
)

var errGameInProgress = errors.New("a game is already in progress in this channel")

type gameKind string

const (
	gameHangman gameKind = "ahorcado"
	gameRPS     gameKind = "ppt"
	gameTrivia  gameKind = "trivia"
)

type game interface {
	State() games.State
	Cancel()
}

// activeGame is a game running in a channel
type activeGame struct {
	kind      gameKind
	game      game
	channelID string
	guildID   string
	startedBy string
	startedAt time.Time
}

// channelGames tracks at most one active game per channel.
type channelGames struct {
	mu    sync.Mutex
	games map[string]*activeGame
}

func newChannelGames() *channelGames {
	return &channelGames{games: map[string]*activeGame{}}
}

// start registers g as the channel's game. A finished or cancelled game
// still registered for the channel is replaced.
func (c *channelGames) start(g *activeGame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.games[g.channelID]; ok && existing.game.State().Active() {
		return errGameInProgress
	}
	c.games[g.channelID] = g
	return nil
}

// get returns the channel's active game of the given kind.
func (c *channelGames) get(channelID string, kind gameKind) (*activeGame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.games[channelID]
	if !ok || g.kind != kind || !g.game.State().Active() {
		return nil, false
	}
	return g, true
}

// current returns the channel's active game of any kind.
func (c *channelGames) current(channelID string) (*activeGame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.games[channelID]
	if !ok || !g.game.State().Active() {
		return nil, false
	}
	return g, true
}

// remove drops g from its channel, if it's still the channel's game.
func (c *channelGames) remove(g *activeGame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.games[g.channelID] == g {
		delete(c.games, g.channelID)
	}
}

// cancelAll cancels every active game, returning how many were cancelled.
func (c *channelGames) cancelAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, g := range c.games {
		if g.game.State().Active() {
			g.game.Cancel()
			n++
		}
		delete(c.games, id)
	}
	return n
}

func (c *channelGames) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, g := range c.games {
		if g.game.State().Active() {
			n++
		}
	}
	return n
}

func (g *activeGame) hangman() *games.Hangman {
	h, _ := g.game.(*games.Hangman)
	return h
}

func (g *activeGame) rps() *games.RockPaperScissors {
	r, _ := g.game.(*games.RockPaperScissors)
	return r
}

func (g *activeGame) trivia() *games.Trivia {
	t, _ := g.game.(*games.Trivia)
	return t
}
