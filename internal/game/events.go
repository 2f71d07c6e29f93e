// internal/game/events.go
package game

import (
	"context"

	"github.com/jason-s-yu/rummy/internal/models"
)

// EventType names an outbound notification.
type EventType string

const (
	EventPlayerJoined       EventType = "player_joined"
	EventPlayerRejoined     EventType = "player_rejoined"
	EventPlayerLeft         EventType = "player_left"
	EventPlayerDisconnected EventType = "player_disconnected"
	EventGameStarted        EventType = "game_started"  // deal summary
	EventPlayerPicked       EventType = "player_picked" // public draw notice, never the card from the deck
	EventTurnAdvanced       EventType = "turn_advanced"
	EventTimerArmed         EventType = "timer_armed"
	EventAutoPlay           EventType = "auto_play"
	EventGameOver           EventType = "game_over"

	EventPrivateHand     EventType = "private_hand"
	EventPrivateSnapshot EventType = "private_snapshot" // sent on rejoin
	EventPrivatePreview  EventType = "private_preview"
)

// Event is the envelope every notification is sent in.
type Event struct {
	Type    EventType      `json:"type"`
	RoomID  string         `json:"roomId"`
	UserID  string         `json:"userId,omitempty"`
	Card    *models.Card   `json:"card,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Notifier delivers events to connections, wherever they are held.
type Notifier interface {
	// Broadcast sends ev to every connection on the room's roster.
	Broadcast(ctx context.Context, roomID string, ev Event)
	// SendToUser sends ev to the connection currently bound to userID.
	SendToUser(ctx context.Context, userID string, ev Event)
}

func (e *Engine) broadcast(ctx context.Context, roomID string, ev Event) {
	ev.RoomID = roomID
	e.notify.Broadcast(ctx, roomID, ev)
}

func (e *Engine) sendHand(ctx context.Context, room *models.Room, userID string) {
	p := room.PlayerByUser(userID)
	if p == nil || p.IsBot {
		return
	}
	e.notify.SendToUser(ctx, userID, Event{
		Type:   EventPrivateHand,
		RoomID: room.RoomID,
		UserID: userID,
		Payload: map[string]any{
			"hand":      room.Hands[userID],
			"jokerRank": room.JokerCard,
		},
	})
}

func (e *Engine) announceTimer(ctx context.Context, room *models.Room) {
	if room.TurnExpiresAt == nil {
		return
	}
	e.broadcast(ctx, room.RoomID, Event{
		Type: EventTimerArmed,
		Payload: map[string]any{
			"currentTurnIndex": room.CurrentTurnIndex,
			"turnExpiresAt":    room.TurnExpiresAt,
		},
	})
}
