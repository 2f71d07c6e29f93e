// internal/game/view.go
package game

import (
	"time"

	"github.com/jason-s-yu/rummy/internal/models"
)

// RoomView is the public state of a room, optionally with the viewer's hand.
// Other players' hands are reduced to their sizes.
type RoomView struct {
	RoomID           string               `json:"roomId"`
	GameType         models.GameType      `json:"gameType"`
	MaxPlayers       int                  `json:"maxPlayers"`
	PracticeMode     bool                 `json:"practiceMode"`
	CreatorUserID    string               `json:"creatorUserId"`
	Players          []*models.Player     `json:"players"`
	GameState        models.GameState     `json:"gameState"`
	JokerRank        string               `json:"jokerRank"`
	DiscardTop       *models.Card         `json:"discardTop,omitempty"`
	DiscardPile      []models.Card        `json:"discardPile"`
	DeckSize         int                  `json:"deckSize"`
	CurrentTurnIndex int                  `json:"currentTurnIndex"`
	TurnExpiresAt    *time.Time           `json:"turnExpiresAt"`
	RemainingMs      int64                `json:"remainingMs,omitempty"`
	HandSizes        map[string]int       `json:"handSizes"`
	Hand             []models.Card        `json:"hand,omitempty"`
	WinnerIndex      *int                 `json:"winnerIndex"`
	Scores           []models.PlayerScore `json:"scores,omitempty"`
}

// NewRoomView builds the view of room as seen by viewerUserID. An empty
// viewer yields the public view only.
func NewRoomView(room *models.Room, viewerUserID string, now time.Time) RoomView {
	v := RoomView{
		RoomID:           room.RoomID,
		GameType:         room.GameType,
		MaxPlayers:       room.MaxPlayers,
		PracticeMode:     room.PracticeMode,
		CreatorUserID:    room.CreatorUserID,
		Players:          room.Players,
		GameState:        room.GameState,
		JokerRank:        room.JokerCard,
		DiscardPile:      room.DiscardPile,
		DeckSize:         len(room.Deck),
		CurrentTurnIndex: room.CurrentTurnIndex,
		TurnExpiresAt:    room.TurnExpiresAt,
		HandSizes:        make(map[string]int, len(room.Hands)),
		WinnerIndex:      room.WinnerIndex,
		Scores:           room.Scores,
	}
	if top, ok := room.TopDiscard(); ok {
		v.DiscardTop = &top
	}
	for uid, h := range room.Hands {
		v.HandSizes[uid] = len(h)
	}
	if viewerUserID != "" {
		v.Hand = room.Hands[viewerUserID]
	}
	if room.TurnExpiresAt != nil {
		if ms := room.TurnExpiresAt.Sub(now).Milliseconds(); ms > 0 {
			v.RemainingMs = ms
		}
	}
	return v
}
