// internal/models/room.go
package models

import "time"

// GameState is the room lifecycle phase.
type GameState string

const (
	StateWaiting GameState = "waiting"
	StatePlaying GameState = "playing"
	StateEnded   GameState = "ended" // terminal
)

// PlayerScore is one player's result at game end.
type PlayerScore struct {
	UserID   string   `json:"userId"`
	Name     string   `json:"name"`
	Deadwood []Card   `json:"deadwood"`
	Points   int      `json:"points"`
	Melds    [][]Card `json:"melds,omitempty"`
	Winner   bool     `json:"winner"`
}

// Room is the persisted record of a single game session.
type Room struct {
	RoomID        string    `json:"roomId"`
	GameType      GameType  `json:"gameType"`
	MaxPlayers    int       `json:"maxPlayers"`
	PracticeMode  bool      `json:"practiceMode"`
	CreatorUserID string    `json:"creatorUserId"`
	Players       []*Player `json:"players"`
	GameState     GameState `json:"gameState"`

	Deck        []Card `json:"deck"`
	DiscardPile []Card `json:"discardPile"`
	JokerCard   string `json:"jokerCard"`

	CurrentTurnIndex int        `json:"currentTurnIndex"`
	TurnExpiresAt    *time.Time `json:"turnExpiresAt"`

	// Hands is keyed by userId so a hand survives reconnection.
	Hands map[string][]Card `json:"hands"`

	WinnerIndex *int          `json:"winnerIndex"`
	Scores      []PlayerScore `json:"scores,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`

	// InitialDeckSize is the card count dealt from at start; used to assert conservation.
	InitialDeckSize int `json:"initialDeckSize"`
}

// Variant returns the room's variant parameters.
func (r *Room) Variant() Variant {
	v, _ := LookupVariant(r.GameType)
	return v
}

// PlayerIndexByUser returns the seat index of a user, or -1.
func (r *Room) PlayerIndexByUser(userID string) int {
	for i, p := range r.Players {
		if p.UserID == userID {
			return i
		}
	}
	return -1
}

// PlayerByUser returns a user's seat, or nil.
func (r *Room) PlayerByUser(userID string) *Player {
	if i := r.PlayerIndexByUser(userID); i >= 0 {
		return r.Players[i]
	}
	return nil
}

// CurrentPlayer returns the player whose turn it is, or nil when out of range.
func (r *Room) CurrentPlayer() *Player {
	if r.CurrentTurnIndex < 0 || r.CurrentTurnIndex >= len(r.Players) {
		return nil
	}
	return r.Players[r.CurrentTurnIndex]
}

// TopDiscard returns the most recent discard and false if the pile is empty.
func (r *Room) TopDiscard() (Card, bool) {
	if len(r.DiscardPile) == 0 {
		return "", false
	}
	return r.DiscardPile[len(r.DiscardPile)-1], true
}

// CardCount is |deck| + |discardPile| + sum of hand sizes.
func (r *Room) CardCount() int {
	n := len(r.Deck) + len(r.DiscardPile)
	for _, h := range r.Hands {
		n += len(h)
	}
	return n
}

// Abandoned reports whether every real player has disconnected.
func (r *Room) Abandoned() bool {
	for _, p := range r.RealPlayers() {
		if !p.Disconnected {
			return false
		}
	}
	return true
}

// RealPlayers returns the non-bot players in seat order.
func (r *Room) RealPlayers() []*Player {
	var out []*Player
	for _, p := range r.Players {
		if !p.IsBot {
			out = append(out, p)
		}
	}
	return out
}
