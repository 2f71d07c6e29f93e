package game

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/jason-s-yu/rummy/internal/errs"
	"github.com/jason-s-yu/rummy/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cards(tokens ...string) []models.Card {
	out := make([]models.Card, len(tokens))
	for i, s := range tokens {
		out[i] = models.Card(s)
	}
	return out
}

// cardNotIn returns a valid card the hand does not hold.
func cardNotIn(hand []models.Card) models.Card {
	held := models.CountCards(hand)
	for _, s := range models.Suits {
		for _, r := range models.Ranks {
			if c := models.NewCard(r, s); held[c] == 0 {
				return c
			}
		}
	}
	panic("hand holds every card")
}

func snapshot(t *testing.T, r *models.Room) string {
	t.Helper()
	b, err := json.Marshal(r)
	require.NoError(t, err)
	return string(b)
}

func TestPickAndDiscardAdvanceTurn(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.startGame(t)
	id := room.RoomID

	_, err := h.eng.PickCard(ctx, bob, id, SourceDeck)
	assert.ErrorIs(t, err, errs.ErrNotYourTurn)

	_, err = h.eng.PickCard(ctx, alice, id, "hand")
	assert.ErrorIs(t, err, errs.InvalidPayload)

	_, err = h.eng.DiscardCard(ctx, alice, id, room.Hands["alice"][0])
	assert.ErrorIs(t, err, errMustPickFirst)

	topDeck := room.Deck[len(room.Deck)-1]
	picked, err := h.eng.PickCard(ctx, alice, id, SourceDeck)
	require.NoError(t, err)
	assert.Equal(t, topDeck, picked)

	r := h.room(t, id)
	assert.Len(t, r.Hands["alice"], 14)
	assert.Equal(t, 0, r.CurrentTurnIndex, "pick does not advance the turn")
	assertConserved(t, r)
	ev := h.rec.lastBroadcast(id, EventPlayerPicked)
	require.NotNil(t, ev)
	assert.Nil(t, ev.Card, "a deck draw stays private")

	_, err = h.eng.PickCard(ctx, alice, id, SourceDeck)
	assert.ErrorIs(t, err, errAlreadyPicked)

	// failed actions leave the record untouched
	before := snapshot(t, h.room(t, id))
	_, err = h.eng.DiscardCard(ctx, alice, id, cardNotIn(r.Hands["alice"]))
	assert.ErrorIs(t, err, errs.ErrCardNotInHand)
	_, err = h.eng.DiscardCard(ctx, alice, id, "11-X")
	assert.ErrorIs(t, err, errs.InvalidPayload)
	assert.Equal(t, before, snapshot(t, h.room(t, id)))

	discard := r.Hands["alice"][3]
	r, err = h.eng.DiscardCard(ctx, alice, id, discard)
	require.NoError(t, err)
	assert.Equal(t, 1, r.CurrentTurnIndex)
	assert.Len(t, r.Hands["alice"], 13)
	top, _ := r.TopDiscard()
	assert.Equal(t, discard, top)
	assertConserved(t, r)

	armed, ok := h.timer.deadline(id)
	require.True(t, ok)
	assert.Equal(t, *r.TurnExpiresAt, armed)

	adv := h.rec.lastBroadcast(id, EventTurnAdvanced)
	require.NotNil(t, adv)
	assert.Equal(t, 1, adv.Payload["currentTurnIndex"])
	assert.Equal(t, discard, *adv.Card)

	_, err = h.eng.PickCard(ctx, alice, id, SourceDeck)
	assert.ErrorIs(t, err, errs.ErrNotYourTurn)
}

func TestPickFromDiscard(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.startGame(t)
	id := room.RoomID
	top := room.DiscardPile[0]

	picked, err := h.eng.PickCard(ctx, alice, id, SourceDiscard)
	require.NoError(t, err)
	assert.Equal(t, top, picked)

	r := h.room(t, id)
	assert.Empty(t, r.DiscardPile)
	assertConserved(t, r)
	ev := h.rec.lastBroadcast(id, EventPlayerPicked)
	require.NotNil(t, ev)
	assert.Equal(t, top, *ev.Card)

	_, err = h.eng.DiscardCard(ctx, alice, id, r.Hands["alice"][0])
	require.NoError(t, err)

	// bob cannot draw from an emptied pile
	_, err = h.store.UpdateRoom(ctx, id, func(r *models.Room) error {
		r.Deck = append(r.Deck, r.DiscardPile...)
		r.DiscardPile = nil
		return nil
	})
	require.NoError(t, err)
	_, err = h.eng.PickCard(ctx, bob, id, SourceDiscard)
	assert.ErrorIs(t, err, errs.ResourceExhausted)
}

func TestReshuffleWhenDeckEmpty(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.startGame(t)
	id := room.RoomID

	top := room.DiscardPile[0]
	_, err := h.store.UpdateRoom(ctx, id, func(r *models.Room) error {
		r.DiscardPile = append(r.Deck, top)
		r.Deck = nil
		return nil
	})
	require.NoError(t, err)

	_, err = h.eng.PickCard(ctx, alice, id, SourceDeck)
	require.NoError(t, err)

	r := h.room(t, id)
	assert.Equal(t, []models.Card{top}, r.DiscardPile)
	assert.Len(t, r.Deck, 106-27-1)
	assertConserved(t, r)
	ev := h.rec.lastBroadcast(id, EventPlayerPicked)
	require.NotNil(t, ev)
	assert.Equal(t, true, ev.Payload["reshuffled"])
}

func TestNoCardsAvailable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.startGame(t)
	id := room.RoomID

	_, err := h.store.UpdateRoom(ctx, id, func(r *models.Room) error {
		r.Deck = nil
		return nil
	})
	require.NoError(t, err)

	_, err = h.eng.PickCard(ctx, alice, id, SourceDeck)
	assert.ErrorIs(t, err, errs.ErrNoCardsAvailable)
	assert.ErrorIs(t, err, errs.ResourceExhausted)
}

func TestConcurrentDiscardsCommitOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.startGame(t)
	id := room.RoomID

	_, err := h.eng.PickCard(ctx, alice, id, SourceDeck)
	require.NoError(t, err)
	hand := h.room(t, id).Hands["alice"]

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = h.eng.DiscardCard(ctx, alice, id, hand[i])
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range results {
		if err == nil {
			ok++
		}
	}
	assert.Equal(t, 1, ok)
	r := h.room(t, id)
	assert.Equal(t, 1, r.CurrentTurnIndex)
	assert.Len(t, r.Hands["alice"], 13)
	assertConserved(t, r)
}

// winningHand is a legal rummy13 hand when fives are wild.
var winningHand = cards(
	"A-S", "2-S", "3-S", "4-S",
	"7-H", "8-H", "JOKER",
	"9-C", "9-D", "9-S",
	"K-C", "K-D", "K-H",
)

var winningGroups = [][]models.Card{
	cards("A-S", "2-S", "3-S", "4-S"),
	cards("7-H", "8-H", "JOKER"),
	cards("9-C", "9-D", "9-S"),
	cards("K-C", "K-D", "K-H"),
}

func (h *harness) rigHand(t *testing.T, roomID, userID string, hand []models.Card) {
	t.Helper()
	_, err := h.store.UpdateRoom(context.Background(), roomID, func(r *models.Room) error {
		r.JokerCard = "5"
		r.Hands[userID] = append([]models.Card(nil), hand...)
		return nil
	})
	require.NoError(t, err)
}

func TestDeclareWins(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.startGame(t)
	id := room.RoomID
	h.rigHand(t, id, "alice", append(cards("2-D"), winningHand...))

	over, err := h.eng.Declare(ctx, alice, id, DeclareRequest{
		Cards:      winningHand,
		Groups:     winningGroups,
		FinishCard: cardPtrOf("2-D"),
	})
	require.NoError(t, err)

	assert.Equal(t, "alice", over.WinnerUserID)
	assert.Equal(t, 0, over.WinnerIndex)
	require.Len(t, over.Scores, 2)
	assert.True(t, over.Scores[0].Winner)
	assert.Equal(t, 0, over.Scores[0].Points)
	assert.Empty(t, over.Scores[0].Deadwood)
	assert.Len(t, over.Scores[0].Melds, 4)

	r := h.room(t, id)
	assert.Equal(t, models.StateEnded, r.GameState)
	assert.Nil(t, r.TurnExpiresAt)
	top, _ := r.TopDiscard()
	assert.Equal(t, models.Card("2-D"), top)
	assert.Equal(t, r.Hands["bob"], over.Scores[1].Deadwood)
	assert.Positive(t, over.Scores[1].Points)

	_, armed := h.timer.deadline(id)
	assert.False(t, armed)

	require.Len(t, over.Ratings, 2)
	assert.Equal(t, 1020, over.Ratings[0].After)
	assert.Equal(t, 980, over.Ratings[1].After)
	assert.NotNil(t, h.rec.lastBroadcast(id, EventGameOver))

	_, err = h.eng.PickCard(ctx, bob, id, SourceDeck)
	assert.ErrorIs(t, err, errs.ErrNotPlaying)
}

func cardPtrOf(s string) *models.Card {
	c := models.Card(s)
	return &c
}

func TestDeclareRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.startGame(t)
	id := room.RoomID
	h.rigHand(t, id, "alice", winningHand)
	before := snapshot(t, h.room(t, id))

	cases := []struct {
		name string
		req  DeclareRequest
		want error
	}{
		{"no groups", DeclareRequest{Cards: winningHand}, errGroupsRequired},
		{"no cards", DeclareRequest{Groups: winningGroups}, errCardsRequired},
		{"short hand", DeclareRequest{Cards: winningHand[:12], Groups: winningGroups}, errCardCount},
		{"cards differ", DeclareRequest{
			Cards:  append(cards("Q-D"), winningHand[1:]...),
			Groups: winningGroups,
		}, errCardsDoNotMatch},
		{"one sequence", DeclareRequest{
			Cards:  winningHand,
			Groups: [][]models.Card{winningGroups[0], winningGroups[2], winningGroups[3]},
		}, errs.New(errs.RuleViolation, "insufficient_sequences")},
		{"invalid group", DeclareRequest{
			Cards:  winningHand,
			Groups: [][]models.Card{winningGroups[0], winningGroups[1], cards("9-C", "K-C", "9-D")},
		}, errs.New(errs.RuleViolation, "invalid_meld")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.eng.Declare(ctx, alice, id, tc.req)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, before, snapshot(t, h.room(t, id)))
		})
	}

	_, err := h.eng.Declare(ctx, bob, id, DeclareRequest{Cards: winningHand, Groups: winningGroups})
	assert.ErrorIs(t, err, errs.ErrNotYourTurn)
}

func TestPracticeDeclareSkipsRatings(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room, err := h.eng.CreateRoom(ctx, alice, CreateOptions{PracticeMode: true})
	require.NoError(t, err)
	_, err = h.eng.StartGame(ctx, alice, room.RoomID)
	require.NoError(t, err)
	h.rigHand(t, room.RoomID, "alice", winningHand)

	over, err := h.eng.Declare(ctx, alice, room.RoomID, DeclareRequest{Cards: winningHand, Groups: winningGroups})
	require.NoError(t, err)
	assert.Empty(t, over.Ratings)

	rec, err := h.store.GetRating(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.TotalGames)
}

func TestPreviewHand(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.startGame(t)
	id := room.RoomID
	h.rigHand(t, id, "bob", winningHand)
	before := snapshot(t, h.room(t, id))

	res, err := h.eng.PreviewHand(ctx, bob, id, winningGroups[:2])
	require.NoError(t, err)
	assert.Equal(t, 1, res.PureSequences)
	assert.Equal(t, 1, res.ImpureSequences)
	assert.Equal(t, cards("9-C", "9-D", "9-S", "K-C", "K-D", "K-H"), res.Deadwood)
	assert.Equal(t, 57, res.DeadwoodPoints)
	assert.Equal(t, before, snapshot(t, h.room(t, id)))
	assert.NotNil(t, h.rec.lastDirect("bob", EventPrivatePreview))

	_, err = h.eng.PreviewHand(ctx, carol, id, winningGroups)
	assert.ErrorIs(t, err, errs.ErrNotMember)
}
