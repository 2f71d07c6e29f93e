// internal/game/turns.go
package game

import (
	"context"
	"errors"

	"github.com/jason-s-yu/rummy/internal/deck"
	"github.com/jason-s-yu/rummy/internal/errs"
	"github.com/jason-s-yu/rummy/internal/meld"
	"github.com/jason-s-yu/rummy/internal/models"
	"github.com/jason-s-yu/rummy/internal/rating"
)

// Draw sources.
const (
	SourceDeck    = "deck"
	SourceDiscard = "discard"
)

var (
	errInvalidSource    = errs.New(errs.InvalidPayload, "invalid_source")
	errInvalidCard      = errs.New(errs.InvalidPayload, "invalid_card")
	errAlreadyPicked    = errs.New(errs.RuleViolation, "already_picked")
	errMustPickFirst    = errs.New(errs.RuleViolation, "must_pick_first")
	errDiscardEmpty     = errs.New(errs.ResourceExhausted, "discard_pile_empty")
	errGroupsRequired   = errs.New(errs.InvalidPayload, "groups_required")
	errCardsRequired    = errs.New(errs.InvalidPayload, "cards_required")
	errCardCount        = errs.New(errs.RuleViolation, "card_count_mismatch")
	errCardsDoNotMatch  = errs.New(errs.RuleViolation, "cards_do_not_match_hand")
	errNotBotTurn       = errs.New(errs.InvalidState, "not_bot_turn")
	errTurnAlreadyMoved = errors.New("turn already moved on")
)

// checkTurn validates membership, phase and turn ownership, in that order.
func checkTurn(r *models.Room, userID string) (*models.Player, error) {
	p := r.PlayerByUser(userID)
	if p == nil {
		return nil, errs.ErrNotMember
	}
	if r.GameState != models.StatePlaying {
		return nil, errs.ErrNotPlaying
	}
	if cur := r.CurrentPlayer(); cur == nil || cur.UserID != userID {
		return nil, errs.ErrNotYourTurn
	}
	return p, nil
}

// drawFromDeck pops the deck. An empty deck is rebuilt from the discard pile
// minus its top card, which stays behind as the only discard.
func (e *Engine) drawFromDeck(r *models.Room) (card models.Card, reshuffled bool, err error) {
	if len(r.Deck) == 0 {
		if len(r.DiscardPile) <= 1 {
			return "", false, errs.ErrNoCardsAvailable
		}
		n := len(r.DiscardPile)
		top := r.DiscardPile[n-1]
		recycled := append([]models.Card(nil), r.DiscardPile[:n-1]...)
		e.shuffler.Shuffle(recycled)
		r.Deck = recycled
		r.DiscardPile = []models.Card{top}
		reshuffled = true
	}
	card, r.Deck, _ = deck.Draw(r.Deck)
	return card, reshuffled, nil
}

// advanceTurn is the only place currentTurnIndex moves during play.
func (e *Engine) advanceTurn(r *models.Room) {
	r.CurrentTurnIndex = (r.CurrentTurnIndex + 1) % len(r.Players)
	e.setDeadline(r)
}

// PickCard draws for the current player from the deck or the discard pile.
// The card drawn from the deck is only revealed to the drawer.
func (e *Engine) PickCard(ctx context.Context, a Actor, roomID, source string) (models.Card, error) {
	if source != SourceDeck && source != SourceDiscard {
		return "", errInvalidSource
	}
	var (
		picked     models.Card
		reshuffled bool
	)
	room, err := e.store.UpdateRoom(ctx, roomID, func(r *models.Room) error {
		reshuffled = false
		if _, err := checkTurn(r, a.UserID); err != nil {
			return err
		}
		if len(r.Hands[a.UserID]) != r.Variant().CardsPerPlayer {
			return errAlreadyPicked
		}
		switch source {
		case SourceDeck:
			c, rs, err := e.drawFromDeck(r)
			if err != nil {
				return err
			}
			picked, reshuffled = c, rs
		default:
			if len(r.DiscardPile) == 0 {
				return errDiscardEmpty
			}
			picked, r.DiscardPile, _ = deck.Draw(r.DiscardPile)
		}
		r.Hands[a.UserID] = append(r.Hands[a.UserID], picked)
		return nil
	})
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"source":     source,
		"deckSize":   len(room.Deck),
		"reshuffled": reshuffled,
	}
	if top, ok := room.TopDiscard(); ok {
		payload["discardTop"] = top
	}
	ev := Event{Type: EventPlayerPicked, UserID: a.UserID, Payload: payload}
	if source == SourceDiscard {
		ev.Card = &picked
	}
	e.broadcast(ctx, roomID, ev)
	e.sendHand(ctx, room, a.UserID)
	e.syncTimer(room)
	return picked, nil
}

// DiscardCard ends the current player's turn by discarding one held card.
func (e *Engine) DiscardCard(ctx context.Context, a Actor, roomID string, card models.Card) (*models.Room, error) {
	if !card.Valid() {
		return nil, errInvalidCard
	}
	room, err := e.store.UpdateRoom(ctx, roomID, func(r *models.Room) error {
		if _, err := checkTurn(r, a.UserID); err != nil {
			return err
		}
		return e.discard(r, a.UserID, card)
	})
	if err != nil {
		return nil, err
	}
	e.afterTurn(ctx, room, a.UserID, card)
	return room, nil
}

func (e *Engine) discard(r *models.Room, userID string, card models.Card) error {
	if len(r.Hands[userID]) != r.Variant().CardsPerPlayer+1 {
		return errMustPickFirst
	}
	hand, ok := models.RemoveCard(r.Hands[userID], card)
	if !ok {
		return errs.ErrCardNotInHand
	}
	r.Hands[userID] = hand
	r.DiscardPile = append(r.DiscardPile, card)
	e.advanceTurn(r)
	return nil
}

// afterTurn notifies a committed discard and arms the next deadline.
func (e *Engine) afterTurn(ctx context.Context, room *models.Room, userID string, card models.Card) {
	e.sendHand(ctx, room, userID)
	e.broadcast(ctx, room.RoomID, Event{
		Type:   EventTurnAdvanced,
		UserID: userID,
		Card:   &card,
		Payload: map[string]any{
			"currentTurnIndex": room.CurrentTurnIndex,
			"discardPile":      room.DiscardPile,
			"deckSize":         len(room.Deck),
		},
	})
	e.announceTimer(ctx, room)
	e.syncTimer(room)
}

// DeclareRequest is a claimed finished hand.
type DeclareRequest struct {
	Cards      []models.Card   `json:"cards"`
	Groups     [][]models.Card `json:"groups"`
	FinishCard *models.Card    `json:"finishCard,omitempty"`
}

// GameOver summarizes a declared game.
type GameOver struct {
	WinnerUserID string               `json:"winnerUserId"`
	WinnerIndex  int                  `json:"winnerIndex"`
	Scores       []models.PlayerScore `json:"scores"`
	Ratings      []rating.Outcome     `json:"ratings,omitempty"`
}

// Declare ends the game if the actor's grouping satisfies the variant's
// meld rule. A finishCard is discarded first when the actor still holds the
// drawn card.
func (e *Engine) Declare(ctx context.Context, a Actor, roomID string, req DeclareRequest) (*GameOver, error) {
	if len(req.Groups) == 0 {
		return nil, errGroupsRequired
	}
	if len(req.Cards) == 0 {
		return nil, errCardsRequired
	}
	if req.FinishCard != nil && !req.FinishCard.Valid() {
		return nil, errInvalidCard
	}

	room, err := e.store.UpdateRoom(ctx, roomID, func(r *models.Room) error {
		winner, err := checkTurn(r, a.UserID)
		if err != nil {
			return err
		}
		v := r.Variant()
		hand := append([]models.Card(nil), r.Hands[a.UserID]...)
		discardPile := r.DiscardPile
		if req.FinishCard != nil && len(hand) == v.CardsPerPlayer+1 {
			var ok bool
			if hand, ok = models.RemoveCard(hand, *req.FinishCard); !ok {
				return errs.ErrCardNotInHand
			}
			discardPile = append(append([]models.Card(nil), discardPile...), *req.FinishCard)
		}
		if len(req.Cards) != len(hand) {
			return errCardCount
		}
		if !sameCards(req.Cards, hand) {
			return errCardsDoNotMatch
		}
		res, err := meld.Validate(v, hand, req.Groups, r.JokerCard)
		if err != nil {
			return err
		}

		r.Hands[a.UserID] = hand
		r.DiscardPile = discardPile
		r.GameState = models.StateEnded
		r.TurnExpiresAt = nil
		idx := r.CurrentTurnIndex
		r.WinnerIndex = &idx
		r.Scores = make([]models.PlayerScore, 0, len(r.Players))
		for _, p := range r.Players {
			if p.UserID == winner.UserID {
				r.Scores = append(r.Scores, models.PlayerScore{
					UserID:   p.UserID,
					Name:     p.Name,
					Deadwood: res.Deadwood,
					Points:   res.DeadwoodPoints,
					Melds:    res.Melds(),
					Winner:   true,
				})
				continue
			}
			h := r.Hands[p.UserID]
			r.Scores = append(r.Scores, models.PlayerScore{
				UserID:   p.UserID,
				Name:     p.Name,
				Deadwood: h,
				Points:   meld.DeadwoodPoints(h, r.JokerCard),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.timers.Clear(roomID)

	over := &GameOver{
		WinnerUserID: a.UserID,
		WinnerIndex:  *room.WinnerIndex,
		Scores:       room.Scores,
	}
	if !room.PracticeMode {
		outcomes, err := e.ratings.Settle(ctx, a.UserID, room.Players)
		if err != nil {
			// the game has already ended; report it without ratings
			e.log(roomID, a.UserID).WithError(err).Error("rating settlement failed")
		}
		over.Ratings = outcomes
	}

	e.broadcast(ctx, roomID, Event{
		Type:   EventGameOver,
		UserID: a.UserID,
		Payload: map[string]any{
			"winnerIndex": over.WinnerIndex,
			"scores":      over.Scores,
			"ratings":     over.Ratings,
		},
	})
	e.log(roomID, a.UserID).Info("game declared")
	return over, nil
}

func sameCards(a, b []models.Card) bool {
	ca, cb := models.CountCards(a), models.CountCards(b)
	if len(ca) != len(cb) {
		return false
	}
	for c, n := range ca {
		if cb[c] != n {
			return false
		}
	}
	return true
}

// PreviewHand evaluates a grouping against the actor's hand without changing
// anything. It may be called by any seated player at any point during play.
func (e *Engine) PreviewHand(ctx context.Context, a Actor, roomID string, groups [][]models.Card) (meld.Result, error) {
	room, err := e.GetRoom(ctx, roomID)
	if err != nil {
		return meld.Result{}, err
	}
	if room.PlayerByUser(a.UserID) == nil {
		return meld.Result{}, errs.ErrNotMember
	}
	if room.GameState != models.StatePlaying {
		return meld.Result{}, errs.ErrNotPlaying
	}
	res, err := meld.Evaluate(room.Hands[a.UserID], groups, room.JokerCard)
	if err != nil {
		return meld.Result{}, err
	}
	e.notify.SendToUser(ctx, a.UserID, Event{
		Type:    EventPrivatePreview,
		RoomID:  roomID,
		UserID:  a.UserID,
		Payload: map[string]any{"result": res},
	})
	return res, nil
}
