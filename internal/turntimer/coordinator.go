// internal/turntimer/coordinator.go
//
// Package turntimer holds this instance's local turn callbacks. The deadline
// itself is persisted on the room; a local timer is only a scheduling shortcut
// and is rebuilt from the persisted deadline whenever a room is touched.
package turntimer

import (
	"context"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/sirupsen/logrus"
)

// ExpiryFunc runs the expiry action for a room. It must re-read the room
// rather than trust anything captured at arm time.
type ExpiryFunc func(ctx context.Context, roomID string)

type entry struct {
	timer    *quartz.Timer
	deadline time.Time
}

// Coordinator schedules per-room expiry callbacks.
type Coordinator struct {
	clock  quartz.Clock
	logger logrus.FieldLogger

	mu       sync.Mutex
	timers   map[string]*entry
	onExpire ExpiryFunc
}

// New returns a coordinator driven by clock.
func New(clock quartz.Clock, logger logrus.FieldLogger) *Coordinator {
	return &Coordinator{
		clock:  clock,
		logger: logger.WithField("component", "turntimer"),
		timers: make(map[string]*entry),
	}
}

// SetExpiryHandler installs the action run when a deadline passes.
func (c *Coordinator) SetExpiryHandler(fn ExpiryFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onExpire = fn
}

// Now is the coordinator's clock time.
func (c *Coordinator) Now() time.Time {
	return c.clock.Now()
}

// Arm replaces any pending callback for the room with one firing at deadline.
// A deadline that already passed runs the expiry action immediately, on the
// caller's goroutine, and reports true.
func (c *Coordinator) Arm(roomID string, deadline time.Time) (firedNow bool) {
	c.mu.Lock()
	c.stopLocked(roomID)
	delay := deadline.Sub(c.clock.Now())
	if delay <= 0 {
		c.mu.Unlock()
		c.logger.WithField("room", roomID).Debug("deadline already passed, expiring now")
		c.fire(roomID)
		return true
	}
	e := &entry{deadline: deadline}
	e.timer = c.clock.AfterFunc(delay, func() { c.expired(roomID, e) }, "turntimer", roomID)
	c.timers[roomID] = e
	c.mu.Unlock()
	return false
}

// Clear cancels the pending callback for the room, if any.
func (c *Coordinator) Clear(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked(roomID)
}

// Pending returns the deadline of the room's local callback.
func (c *Coordinator) Pending(roomID string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.timers[roomID]; ok {
		return e.deadline, true
	}
	return time.Time{}, false
}

// Stop cancels every pending callback.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.timers {
		c.stopLocked(id)
	}
}

func (c *Coordinator) stopLocked(roomID string) {
	if e, ok := c.timers[roomID]; ok {
		e.timer.Stop()
		delete(c.timers, roomID)
	}
}

func (c *Coordinator) expired(roomID string, e *entry) {
	c.mu.Lock()
	if c.timers[roomID] != e {
		// replaced or cleared after the timer was already firing
		c.mu.Unlock()
		return
	}
	delete(c.timers, roomID)
	c.mu.Unlock()
	c.fire(roomID)
}

// fire runs the expiry action. A panic is logged so one room cannot take the
// process down.
func (c *Coordinator) fire(roomID string) {
	c.mu.Lock()
	fn := c.onExpire
	c.mu.Unlock()
	if fn == nil {
		c.logger.WithField("room", roomID).Warn("turn expired with no handler installed")
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithFields(logrus.Fields{"room": roomID, "panic": r}).Error("turn expiry panicked")
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	fn(ctx, roomID)
}
