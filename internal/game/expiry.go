// internal/game/expiry.go
package game

import (
	"context"
	"errors"

	"github.com/jason-s-yu/rummy/internal/errs"
	"github.com/jason-s-yu/rummy/internal/models"
)

// forcedMove is a committed move that was made on a player's behalf.
type forcedMove struct {
	userID  string
	card    models.Card
	drew    bool
	blocked bool // nothing could be drawn; the turn passed without a discard
}

// errRoomAbandoned stops a forced move when nobody is left to play for.
var errRoomAbandoned = errors.New("all players disconnected")

// botMove plays the bot whose turn it is: draw from the deck, then discard a
// uniformly random card. Bots never declare.
func (e *Engine) botMove(ctx context.Context, roomID string) error {
	m, room, err := e.forceMove(ctx, roomID, -1, true)
	if err != nil {
		return err
	}
	e.finishForcedMove(ctx, room, m)
	return nil
}

// HandleExpiry is the turn-timer callback. It re-reads the room and acts only
// if the persisted deadline really passed and the game is still on.
func (e *Engine) HandleExpiry(ctx context.Context, roomID string) {
	log := e.log(roomID, "")
	room, err := e.store.GetRoom(ctx, roomID)
	if errors.Is(err, errs.NotFound) {
		log.Debug("expired room is gone")
		e.timers.Clear(roomID)
		if err := e.store.ForgetDeadline(ctx, roomID); err != nil {
			log.WithError(err).Warn("failed to drop deadline")
		}
		return
	}
	if err != nil {
		log.WithError(err).Error("failed to load room on expiry")
		return
	}
	if room.GameState != models.StatePlaying || room.TurnExpiresAt == nil {
		log.Debug("stale timer, room not playing")
		return
	}
	if room.TurnExpiresAt.After(e.timers.Now()) {
		// turn already moved on elsewhere
		e.timers.Arm(roomID, *room.TurnExpiresAt)
		return
	}

	if room.Abandoned() {
		e.park(ctx, roomID)
		return
	}

	cur := room.CurrentPlayer()
	if cur == nil {
		log.Error("current turn index out of range")
		return
	}
	m, next, err := e.forceMove(ctx, roomID, room.CurrentTurnIndex, cur.IsBot)
	if errors.Is(err, errRoomAbandoned) {
		e.park(ctx, roomID)
		return
	}
	if errors.Is(err, errTurnAlreadyMoved) {
		log.Debug("expiry lost the race to another move")
		if fresh, gerr := e.store.GetRoom(ctx, roomID); gerr == nil {
			e.syncTimer(fresh)
		}
		return
	}
	if err != nil {
		log.WithError(err).Error("forced move failed")
		return
	}
	if !cur.IsBot {
		e.broadcast(ctx, roomID, Event{
			Type:   EventAutoPlay,
			UserID: m.userID,
			Card:   cardPtr(m),
			Payload: map[string]any{
				"drew": m.drew,
			},
		})
		log.WithField("user", m.userID).Info("turn timed out, auto-played")
	}
	e.finishForcedMove(ctx, next, m)
}

// park stops driving a room whose players are all gone. Nothing is written, so
// the room's TTL runs down and it expires. A rejoin persists the overdue
// deadline again and the turn is played then.
func (e *Engine) park(ctx context.Context, roomID string) {
	e.log(roomID, "").Debug("all players disconnected, parking turn")
	e.timers.Clear(roomID)
	if err := e.store.ForgetDeadline(ctx, roomID); err != nil {
		e.log(roomID, "").WithError(err).Warn("failed to drop deadline")
	}
}

func cardPtr(m forcedMove) *models.Card {
	if m.blocked {
		return nil
	}
	c := m.card
	return &c
}

// forceMove commits a move for the current player. expectTurn >= 0 requires
// the turn to still be at that index with its deadline passed; a bot picks a
// random discard, a human loses the first card in hand.
func (e *Engine) forceMove(ctx context.Context, roomID string, expectTurn int, bot bool) (forcedMove, *models.Room, error) {
	var m forcedMove
	room, err := e.store.UpdateRoom(ctx, roomID, func(r *models.Room) error {
		m = forcedMove{}
		if r.GameState != models.StatePlaying {
			return errTurnAlreadyMoved
		}
		cur := r.CurrentPlayer()
		if cur == nil {
			return errs.New(errs.Internal, "turn_index_out_of_range")
		}
		if expectTurn >= 0 {
			if r.CurrentTurnIndex != expectTurn || r.TurnExpiresAt == nil || r.TurnExpiresAt.After(e.timers.Now()) {
				return errTurnAlreadyMoved
			}
			if r.Abandoned() {
				return errRoomAbandoned
			}
		} else if !cur.IsBot {
			return errNotBotTurn
		}
		m.userID = cur.UserID

		cpp := r.Variant().CardsPerPlayer
		if len(r.Hands[cur.UserID]) == cpp {
			c, _, err := e.drawFromDeck(r)
			if errors.Is(err, errs.ErrNoCardsAvailable) {
				m.blocked = true
				e.advanceTurn(r)
				return nil
			}
			if err != nil {
				return err
			}
			r.Hands[cur.UserID] = append(r.Hands[cur.UserID], c)
			m.drew = true
		}

		hand := r.Hands[cur.UserID]
		if len(hand) == 0 {
			return errs.New(errs.Internal, "empty_hand")
		}
		i := 0
		if bot {
			i = e.shuffler.Intn(len(hand))
		}
		m.card = hand[i]
		return e.discard(r, cur.UserID, m.card)
	})
	return m, room, err
}

func (e *Engine) finishForcedMove(ctx context.Context, room *models.Room, m forcedMove) {
	if m.blocked {
		e.broadcast(ctx, room.RoomID, Event{
			Type:   EventTurnAdvanced,
			UserID: m.userID,
			Payload: map[string]any{
				"currentTurnIndex": room.CurrentTurnIndex,
				"discardPile":      room.DiscardPile,
				"deckSize":         len(room.Deck),
				"noCards":          true,
			},
		})
		e.announceTimer(ctx, room)
		e.syncTimer(room)
		return
	}
	if m.drew {
		e.broadcast(ctx, room.RoomID, Event{
			Type:    EventPlayerPicked,
			UserID:  m.userID,
			Payload: map[string]any{"source": SourceDeck, "deckSize": len(room.Deck)},
		})
	}
	e.afterTurn(ctx, room, m.userID, m.card)
}
