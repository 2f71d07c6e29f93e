package game

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/coder/quartz"
	"github.com/jason-s-yu/rummy/internal/deck"
	"github.com/jason-s-yu/rummy/internal/errs"
	"github.com/jason-s-yu/rummy/internal/models"
	"github.com/jason-s-yu/rummy/internal/rating"
	"github.com/jason-s-yu/rummy/internal/store"
	"github.com/jason-s-yu/rummy/internal/turntimer"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpiryBeforeDeadlineRearms(t *testing.T) {
	h := newHarness(t)
	room := h.startGame(t)
	before := snapshot(t, h.room(t, room.RoomID))

	h.timer.advance(10 * time.Second)
	h.eng.HandleExpiry(context.Background(), room.RoomID)

	assert.Equal(t, before, snapshot(t, h.room(t, room.RoomID)))
	armed, ok := h.timer.deadline(room.RoomID)
	require.True(t, ok)
	assert.Equal(t, *room.TurnExpiresAt, armed)
}

func TestExpiryAutoPlaysFirstCard(t *testing.T) {
	h := newHarness(t)
	room := h.startGame(t)
	first := room.Hands["alice"][0]

	h.timer.advance(DefaultTurnDuration + time.Second)
	h.eng.HandleExpiry(context.Background(), room.RoomID)

	r := h.room(t, room.RoomID)
	assert.Equal(t, 1, r.CurrentTurnIndex)
	assert.Len(t, r.Hands["alice"], 13)
	top, _ := r.TopDiscard()
	assert.Equal(t, first, top)
	assertConserved(t, r)

	ev := h.rec.lastBroadcast(room.RoomID, EventAutoPlay)
	require.NotNil(t, ev)
	assert.Equal(t, "alice", ev.UserID)
	assert.Equal(t, first, *ev.Card)
	assert.Equal(t, true, ev.Payload["drew"])

	armed, ok := h.timer.deadline(room.RoomID)
	require.True(t, ok)
	assert.Equal(t, h.timer.Now().Add(DefaultTurnDuration), armed)
}

func TestExpiryAfterPickDiscardsWithoutDrawing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.startGame(t)

	_, err := h.eng.PickCard(ctx, alice, room.RoomID, SourceDeck)
	require.NoError(t, err)
	first := h.room(t, room.RoomID).Hands["alice"][0]

	h.timer.advance(DefaultTurnDuration)
	h.eng.HandleExpiry(ctx, room.RoomID)

	r := h.room(t, room.RoomID)
	assert.Equal(t, 1, r.CurrentTurnIndex)
	top, _ := r.TopDiscard()
	assert.Equal(t, first, top)
	assert.Equal(t, false, h.rec.lastBroadcast(room.RoomID, EventAutoPlay).Payload["drew"])
}

func TestExpiryIgnoresEndedAndMissingRooms(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.startGame(t)
	h.rigHand(t, room.RoomID, "alice", winningHand)
	_, err := h.eng.Declare(ctx, alice, room.RoomID, DeclareRequest{Cards: winningHand, Groups: winningGroups})
	require.NoError(t, err)
	before := snapshot(t, h.room(t, room.RoomID))

	h.timer.advance(time.Hour)
	h.eng.HandleExpiry(ctx, room.RoomID)
	assert.Equal(t, before, snapshot(t, h.room(t, room.RoomID)))
	assert.Nil(t, h.rec.lastBroadcast(room.RoomID, EventAutoPlay))

	assert.NotPanics(t, func() { h.eng.HandleExpiry(ctx, "GONE42") })
}

func TestRejoinAfterDeadlineRecoversTimer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.startGame(t)

	// the instance that armed the timer went away before it fired
	h.timer.Clear(room.RoomID)
	h.timer.advance(DefaultTurnDuration * 2)

	_, err := h.eng.RejoinRoom(ctx, Actor{UserID: "bob", ConnID: "conn-b2"}, room.RoomID)
	require.NoError(t, err)

	r := h.room(t, room.RoomID)
	assert.Equal(t, 1, r.CurrentTurnIndex, "overdue turn played on recovery")
	assert.True(t, r.TurnExpiresAt.After(h.timer.Now()))
	assertConserved(t, r)
}

func TestBotMove(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room, err := h.eng.CreateRoom(ctx, alice, CreateOptions{PracticeMode: true})
	require.NoError(t, err)
	room, err = h.eng.StartGame(ctx, alice, room.RoomID)
	require.NoError(t, err)
	id := room.RoomID
	bot := room.Players[1]

	assert.ErrorIs(t, h.eng.botMove(ctx, id), errNotBotTurn)

	_, err = h.eng.PickCard(ctx, alice, id, SourceDeck)
	require.NoError(t, err)
	r, err := h.eng.DiscardCard(ctx, alice, id, h.room(t, id).Hands["alice"][0])
	require.NoError(t, err)
	assert.Equal(t, 1, r.CurrentTurnIndex)
	assert.Equal(t, h.timer.Now().Add(DefaultBotDelay), *r.TurnExpiresAt)

	h.timer.advance(DefaultBotDelay)
	h.eng.HandleExpiry(ctx, id)

	r = h.room(t, id)
	assert.Equal(t, 0, r.CurrentTurnIndex)
	assert.Len(t, r.Hands[bot.UserID], 13)
	assert.Len(t, r.DiscardPile, 3)
	assertConserved(t, r)
	assert.Nil(t, h.rec.lastBroadcast(id, EventAutoPlay), "bots are not auto-played")

	_, err = h.store.UpdateRoom(ctx, id, func(r *models.Room) error {
		r.CurrentTurnIndex = 1
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, h.eng.botMove(ctx, id))
	assert.Equal(t, 0, h.room(t, id).CurrentTurnIndex)
}

func TestCardConservationOverManyTurns(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.startGame(t)
	id := room.RoomID

	players := []Actor{alice, bob}
	for turn := 0; turn < 120; turn++ {
		r := h.room(t, id)
		require.Equal(t, turn%2, r.CurrentTurnIndex)
		a := players[r.CurrentTurnIndex]
		if turn%3 == 0 {
			h.timer.advance(DefaultTurnDuration)
			h.eng.HandleExpiry(ctx, id)
		} else {
			source := SourceDeck
			if turn%2 == 0 {
				source = SourceDiscard
			}
			_, err := h.eng.PickCard(ctx, a, id, source)
			require.NoError(t, err)
			hand := h.room(t, id).Hands[a.UserID]
			_, err = h.eng.DiscardCard(ctx, a, id, hand[len(hand)/2])
			require.NoError(t, err)
		}
		assertConserved(t, h.room(t, id))
	}
}

func TestCoordinatorDrivesAutoPlay(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	clock := quartz.NewMock(t)
	coord := turntimer.New(clock, logger)
	t.Cleanup(coord.Stop)
	st := store.New(rdb)
	eng := NewEngine(st, coord, rating.NewService(st, logger), newRecorder(), logger,
		WithShuffler(deck.NewSeededShuffler(3)))

	room, err := eng.CreateRoom(ctx, alice, CreateOptions{})
	require.NoError(t, err)
	_, err = eng.JoinRoom(ctx, bob, room.RoomID)
	require.NoError(t, err)
	_, err = eng.StartGame(ctx, alice, room.RoomID)
	require.NoError(t, err)

	d, w := clock.AdvanceNext()
	w.MustWait(ctx)
	assert.Equal(t, DefaultTurnDuration, d)

	require.Eventually(t, func() bool {
		r, err := st.GetRoom(ctx, room.RoomID)
		return err == nil && r.CurrentTurnIndex == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAbandonedRoomStopsAutoPlay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.startGame(t)
	id := room.RoomID

	require.NoError(t, h.eng.HandleDisconnect(ctx, alice, id))
	require.NoError(t, h.eng.HandleDisconnect(ctx, bob, id))
	before := snapshot(t, h.room(t, id))

	for i := 0; i < 20; i++ {
		h.timer.advance(DefaultTurnDuration + time.Second)
		h.mr.FastForward(DefaultTurnDuration + time.Second)
		h.eng.HandleExpiry(ctx, id)
	}

	assert.Equal(t, before, snapshot(t, h.room(t, id)), "nobody to play for, nothing written")
	assert.Nil(t, h.rec.lastBroadcast(id, EventAutoPlay))
	assert.Less(t, h.mr.TTL("rummy:room:"+id), 2*time.Hour-10*time.Minute)
	_, armed := h.timer.deadline(id)
	assert.False(t, armed)
	overdue, err := h.store.OverdueRooms(ctx, h.timer.Now(), 10)
	require.NoError(t, err)
	assert.NotContains(t, overdue, id)

	// an abandoned game runs out its TTL like any idle room
	h.mr.FastForward(2 * time.Hour)
	_, err = h.store.GetRoom(ctx, id)
	assert.ErrorIs(t, err, errs.ErrRoomNotFound)
}

func TestRejoinResumesParkedRoom(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.startGame(t)
	id := room.RoomID

	require.NoError(t, h.eng.HandleDisconnect(ctx, alice, id))
	require.NoError(t, h.eng.HandleDisconnect(ctx, bob, id))
	h.timer.advance(DefaultTurnDuration * 3)
	h.eng.HandleExpiry(ctx, id)
	require.Equal(t, 0, h.room(t, id).CurrentTurnIndex)

	_, err := h.eng.RejoinRoom(ctx, Actor{UserID: "bob", ConnID: "conn-b2", Name: "Bob"}, id)
	require.NoError(t, err)

	r := h.room(t, id)
	assert.Equal(t, 1, r.CurrentTurnIndex, "overdue turn played once someone is back")
	assert.NotNil(t, h.rec.lastBroadcast(id, EventAutoPlay))
	armed, ok := h.timer.deadline(id)
	require.True(t, ok)
	assert.Equal(t, *r.TurnExpiresAt, armed)
	assertConserved(t, r)
}

func TestLoadingRoomRecoversOverdueTurn(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.startGame(t)
	id := room.RoomID
	h.rigHand(t, id, "bob", winningHand)

	h.timer.Clear(id)
	h.timer.advance(DefaultTurnDuration * 2)

	res, err := h.eng.PreviewHand(ctx, bob, id, winningGroups[:2])
	require.NoError(t, err)
	assert.Equal(t, 1, res.PureSequences)
	assert.Equal(t, 1, h.room(t, id).CurrentTurnIndex)

	h.timer.Clear(id)
	h.timer.advance(DefaultTurnDuration * 2)
	r, err := h.eng.GetRoom(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, r.CurrentTurnIndex, "GetRoom returns the room after the overdue move")
	assert.True(t, r.TurnExpiresAt.After(h.timer.Now()))
}
