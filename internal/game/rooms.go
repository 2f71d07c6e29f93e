// internal/game/rooms.go
package game

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jason-s-yu/rummy/internal/deck"
	"github.com/jason-s-yu/rummy/internal/errs"
	"github.com/jason-s-yu/rummy/internal/models"
	"github.com/jason-s-yu/rummy/internal/store"
)

// roomCodeAlphabet leaves out 0/O and 1/I/L.
const (
	roomCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	roomCodeLength   = 6
	roomCodeAttempts = 8
)

var (
	errGameStarted      = errs.New(errs.InvalidState, "game_already_started")
	errRoomFull         = errs.New(errs.InvalidState, "room_full")
	errAlreadyJoined    = errs.New(errs.InvalidState, "already_in_room")
	errNotCreator       = errs.New(errs.Unauthorized, "not_creator")
	errNotEnoughPlayers = errs.New(errs.InvalidState, "not_enough_players")
)

// CreateOptions are the settings of a new room.
type CreateOptions struct {
	GameType     models.GameType `json:"gameType"`
	MaxPlayers   int             `json:"maxPlayers"`
	PracticeMode bool            `json:"practiceMode"`
	Bots         int             `json:"bots"`
}

func (e *Engine) newRoomCode() string {
	var b strings.Builder
	for i := 0; i < roomCodeLength; i++ {
		b.WriteByte(roomCodeAlphabet[e.shuffler.Intn(len(roomCodeAlphabet))])
	}
	return b.String()
}

// CreateRoom allocates a waiting room with the actor as creator and first seat.
func (e *Engine) CreateRoom(ctx context.Context, a Actor, opts CreateOptions) (*models.Room, error) {
	if a.UserID == "" {
		return nil, errs.New(errs.InvalidPayload, "user_required")
	}
	if opts.GameType == "" {
		opts.GameType = models.GameRummy13
	}
	v, ok := models.LookupVariant(opts.GameType)
	if !ok {
		return nil, errs.New(errs.InvalidPayload, "invalid_game_type")
	}
	maxPlayers := opts.MaxPlayers
	switch {
	case maxPlayers == 0:
		maxPlayers = v.MaxPlayers
	case maxPlayers < v.MinPlayers:
		return nil, errs.New(errs.InvalidPayload, "invalid_max_players")
	case maxPlayers > v.MaxPlayers:
		maxPlayers = v.MaxPlayers
	}

	room := &models.Room{
		GameType:      v.Type,
		MaxPlayers:    maxPlayers,
		PracticeMode:  opts.PracticeMode,
		CreatorUserID: a.UserID,
		Players: []*models.Player{{
			ID:     a.ConnID,
			UserID: a.UserID,
			Name:   a.Name,
		}},
		GameState:        models.StateWaiting,
		Hands:            map[string][]models.Card{},
		CurrentTurnIndex: 0,
		CreatedAt:        e.timers.Now().UTC(),
	}
	if opts.PracticeMode {
		bots := opts.Bots
		if bots <= 0 {
			bots = 1
		}
		if bots > maxPlayers-1 {
			bots = maxPlayers - 1
		}
		for i := 0; i < bots; i++ {
			id := "bot-" + uuid.NewString()
			room.Players = append(room.Players, &models.Player{
				ID:     id,
				UserID: id,
				Name:   fmt.Sprintf("Bot %d", i+1),
				IsBot:  true,
			})
		}
	}

	var err error
	for i := 0; i < roomCodeAttempts; i++ {
		room.RoomID = e.newRoomCode()
		err = e.store.CreateRoom(ctx, room)
		if !errors.Is(err, store.ErrRoomExists) {
			break
		}
	}
	if errors.Is(err, store.ErrRoomExists) {
		return nil, errs.New(errs.ResourceExhausted, "room_code_exhausted")
	}
	if err != nil {
		return nil, err
	}

	e.bind(ctx, room.RoomID, a)
	e.log(room.RoomID, a.UserID).WithField("gameType", room.GameType).Info("room created")
	return room, nil
}

// JoinRoom appends the actor to a waiting room.
func (e *Engine) JoinRoom(ctx context.Context, a Actor, roomID string) (*models.Room, error) {
	room, err := e.store.UpdateRoom(ctx, roomID, func(r *models.Room) error {
		if r.GameState != models.StateWaiting {
			return errGameStarted
		}
		if r.PlayerByUser(a.UserID) != nil {
			return errAlreadyJoined
		}
		if len(r.Players) >= r.MaxPlayers || len(r.Players) >= r.Variant().MaxPlayers {
			return errRoomFull
		}
		r.Players = append(r.Players, &models.Player{ID: a.ConnID, UserID: a.UserID, Name: a.Name})
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.bind(ctx, roomID, a)
	e.broadcast(ctx, roomID, Event{
		Type:   EventPlayerJoined,
		UserID: a.UserID,
		Payload: map[string]any{
			"name":    a.Name,
			"players": room.Players,
		},
	})
	e.log(roomID, a.UserID).Info("player joined")
	return room, nil
}

// RejoinRoom rebinds a known user to a new connection. Hand and turn state
// are untouched; the new connection gets a snapshot.
func (e *Engine) RejoinRoom(ctx context.Context, a Actor, roomID string) (*models.Room, error) {
	var oldConn string
	room, err := e.store.UpdateRoom(ctx, roomID, func(r *models.Room) error {
		p := r.PlayerByUser(a.UserID)
		if p == nil {
			return errs.ErrNotMember
		}
		oldConn = p.ID
		p.ID = a.ConnID
		p.Disconnected = false
		if a.Name != "" {
			p.Name = a.Name
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if oldConn != "" && oldConn != a.ConnID {
		if err := e.store.RemoveConnection(ctx, roomID, oldConn); err != nil {
			e.log(roomID, a.UserID).WithError(err).Warn("failed to drop stale connection")
		}
	}
	e.bind(ctx, roomID, a)
	e.broadcast(ctx, roomID, Event{Type: EventPlayerRejoined, UserID: a.UserID})
	e.notify.SendToUser(ctx, a.UserID, Event{
		Type:    EventPrivateSnapshot,
		RoomID:  roomID,
		UserID:  a.UserID,
		Payload: map[string]any{"room": e.View(room, a.UserID)},
	})
	e.log(roomID, a.UserID).Info("player rejoined")
	e.syncTimer(room)
	return room, nil
}

// LeaveRoom removes the actor. A waiting room drops the seat, passing the
// creator role on and deleting the room once no real player is left. A game
// in progress keeps the seat, marked disconnected, so the timer plays it.
func (e *Engine) LeaveRoom(ctx context.Context, a Actor, roomID string) error {
	var empty bool
	room, err := e.store.UpdateRoom(ctx, roomID, func(r *models.Room) error {
		empty = false
		i := r.PlayerIndexByUser(a.UserID)
		if i < 0 {
			return errs.ErrNotMember
		}
		switch r.GameState {
		case models.StateWaiting:
			r.Players = append(r.Players[:i], r.Players[i+1:]...)
			humans := r.RealPlayers()
			if len(humans) == 0 {
				empty = true
				return nil
			}
			if r.CreatorUserID == a.UserID {
				r.CreatorUserID = humans[0].UserID
			}
		case models.StatePlaying:
			r.Players[i].Disconnected = true
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.unbind(ctx, roomID, a)
	if empty {
		e.timers.Clear(roomID)
		if err := e.store.DeleteRoom(ctx, roomID); err != nil {
			return err
		}
		e.log(roomID, a.UserID).Info("last player left, room deleted")
		return nil
	}
	e.broadcast(ctx, roomID, Event{
		Type:   EventPlayerLeft,
		UserID: a.UserID,
		Payload: map[string]any{
			"players":       room.Players,
			"creatorUserId": room.CreatorUserID,
		},
	})
	e.log(roomID, a.UserID).Info("player left")
	return nil
}

// HandleDisconnect marks the seat bound to the closed connection as
// disconnected. A seat already rebound to a newer connection is left alone.
func (e *Engine) HandleDisconnect(ctx context.Context, a Actor, roomID string) error {
	changed := false
	_, err := e.store.UpdateRoom(ctx, roomID, func(r *models.Room) error {
		changed = false
		p := r.PlayerByUser(a.UserID)
		if p == nil || p.ID != a.ConnID || p.Disconnected {
			return nil
		}
		p.Disconnected = true
		changed = true
		return nil
	})
	e.unbind(ctx, roomID, a)
	if errors.Is(err, errs.NotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if changed {
		e.broadcast(ctx, roomID, Event{Type: EventPlayerDisconnected, UserID: a.UserID})
		e.log(roomID, a.UserID).Info("player disconnected")
	}
	return nil
}

// StartGame deals the hands and flips the first discard, which fixes the
// joker rank for the rest of the session.
func (e *Engine) StartGame(ctx context.Context, a Actor, roomID string) (*models.Room, error) {
	room, err := e.store.UpdateRoom(ctx, roomID, func(r *models.Room) error {
		if r.PlayerByUser(a.UserID) == nil {
			return errs.ErrNotMember
		}
		if r.CreatorUserID != a.UserID {
			return errNotCreator
		}
		if r.GameState != models.StateWaiting {
			return errGameStarted
		}
		v := r.Variant()
		if len(r.Players) < v.MinPlayers {
			return errNotEnoughPlayers
		}

		cards, err := deck.DecksForPlayers(v, len(r.Players))
		if err != nil {
			return err
		}
		e.shuffler.Shuffle(cards)
		r.InitialDeckSize = len(cards)

		r.Hands = make(map[string][]models.Card, len(r.Players))
		for i := 0; i < v.CardsPerPlayer; i++ {
			for _, p := range r.Players {
				var c models.Card
				c, cards, _ = deck.Draw(cards)
				r.Hands[p.UserID] = append(r.Hands[p.UserID], c)
			}
		}
		starter, rest, _ := deck.Draw(cards)
		r.Deck = rest
		r.DiscardPile = []models.Card{starter}
		r.JokerCard = ""
		if !starter.IsWildToken() {
			r.JokerCard = starter.Rank()
		}

		r.GameState = models.StatePlaying
		r.CurrentTurnIndex = 0
		r.WinnerIndex = nil
		r.Scores = nil
		e.setDeadline(r)
		return nil
	})
	if err != nil {
		return nil, err
	}

	top, _ := room.TopDiscard()
	e.broadcast(ctx, roomID, Event{
		Type: EventGameStarted,
		Card: &top,
		Payload: map[string]any{
			"discardTop":       top,
			"jokerRank":        room.JokerCard,
			"currentTurnIndex": room.CurrentTurnIndex,
			"players":          room.Players,
			"deckSize":         len(room.Deck),
		},
	})
	for _, p := range room.Players {
		e.sendHand(ctx, room, p.UserID)
	}
	e.log(roomID, a.UserID).WithField("jokerRank", room.JokerCard).Info("game started")
	e.announceTimer(ctx, room)
	e.syncTimer(room)
	return room, nil
}
