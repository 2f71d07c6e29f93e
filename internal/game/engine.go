// internal/game/engine.go
//
// Package game is the session engine: the room and turn state machine. It
// keeps no room state in memory. Every action is a read-validate-mutate-persist
// cycle against the shared store; only the copy returned by the store is used
// for notifications afterwards.
package game

import (
	"context"
	"time"

	"github.com/jason-s-yu/rummy/internal/deck"
	"github.com/jason-s-yu/rummy/internal/models"
	"github.com/jason-s-yu/rummy/internal/rating"
	"github.com/jason-s-yu/rummy/internal/store"
	"github.com/jason-s-yu/rummy/internal/turntimer"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTurnDuration = 30 * time.Second
	DefaultBotDelay     = 1500 * time.Millisecond
)

// Timer is the local scheduling side of turn deadlines.
type Timer interface {
	Arm(roomID string, deadline time.Time) bool
	Clear(roomID string)
	Now() time.Time
	SetExpiryHandler(fn turntimer.ExpiryFunc)
}

// Settler applies rating changes for a finished game.
type Settler interface {
	Settle(ctx context.Context, winnerUserID string, players []*models.Player) ([]rating.Outcome, error)
}

// Actor identifies who performs an action and over which connection.
type Actor struct {
	UserID string
	ConnID string
	Name   string
}

// Engine runs room transitions.
type Engine struct {
	store    *store.Store
	timers   Timer
	ratings  Settler
	notify   Notifier
	shuffler deck.Shuffler
	logger   logrus.FieldLogger

	turnDuration time.Duration
	botDelay     time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithShuffler replaces the default random shuffler, e.g. with a seeded one.
func WithShuffler(s deck.Shuffler) Option {
	return func(e *Engine) { e.shuffler = s }
}

// WithTurnDuration sets the human turn window.
func WithTurnDuration(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.turnDuration = d
		}
	}
}

// WithBotDelay sets how long a bot waits before playing.
func WithBotDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.botDelay = d
		}
	}
}

// NewEngine wires the engine and installs its expiry handler on timers.
func NewEngine(st *store.Store, timers Timer, ratings Settler, notify Notifier, logger logrus.FieldLogger, opts ...Option) *Engine {
	e := &Engine{
		store:        st,
		timers:       timers,
		ratings:      ratings,
		notify:       notify,
		shuffler:     deck.NewShuffler(),
		logger:       logger.WithField("component", "engine"),
		turnDuration: DefaultTurnDuration,
		botDelay:     DefaultBotDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	timers.SetExpiryHandler(e.HandleExpiry)
	return e
}

func (e *Engine) log(roomID, userID string) logrus.FieldLogger {
	f := logrus.Fields{"room": roomID}
	if userID != "" {
		f["user"] = userID
	}
	return e.logger.WithFields(f)
}

// turnWindow is the deadline length for whoever is to act.
func (e *Engine) turnWindow(p *models.Player) time.Duration {
	if p != nil && p.IsBot {
		return e.botDelay
	}
	return e.turnDuration
}

func (e *Engine) setDeadline(room *models.Room) {
	t := e.timers.Now().Add(e.turnWindow(room.CurrentPlayer()))
	room.TurnExpiresAt = &t
}

// syncTimer rebuilds the local callback from the persisted deadline. A
// deadline that already passed runs the expiry action right away, in which
// case it reports true and room is stale.
func (e *Engine) syncTimer(room *models.Room) bool {
	if room.GameState == models.StatePlaying && room.TurnExpiresAt != nil {
		return e.timers.Arm(room.RoomID, *room.TurnExpiresAt)
	}
	e.timers.Clear(room.RoomID)
	return false
}

// bind records the connection on the room roster and the identity map.
func (e *Engine) bind(ctx context.Context, roomID string, a Actor) {
	if a.ConnID == "" {
		return
	}
	if err := e.store.BindIdentity(ctx, a.UserID, a.ConnID); err != nil {
		e.log(roomID, a.UserID).WithError(err).Error("failed to bind identity")
	}
	if err := e.store.AddConnection(ctx, roomID, a.ConnID); err != nil {
		e.log(roomID, a.UserID).WithError(err).Error("failed to add connection to roster")
	}
}

func (e *Engine) unbind(ctx context.Context, roomID string, a Actor) {
	if a.ConnID == "" {
		return
	}
	if err := e.store.RemoveConnection(ctx, roomID, a.ConnID); err != nil {
		e.log(roomID, a.UserID).WithError(err).Error("failed to remove connection from roster")
	}
	if err := e.store.UnbindIdentity(ctx, a.UserID, a.ConnID); err != nil {
		e.log(roomID, a.UserID).WithError(err).Error("failed to unbind identity")
	}
}

// GetRoom loads a room and re-arms its turn timer.
func (e *Engine) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	room, err := e.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if e.syncTimer(room) {
		return e.store.GetRoom(ctx, roomID)
	}
	return room, nil
}

// View returns the room as seen by userID.
func (e *Engine) View(room *models.Room, userID string) RoomView {
	return NewRoomView(room, userID, e.timers.Now())
}
