// internal/turntimer/sweeper.go
package turntimer

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// DeadlineSource lists rooms whose persisted deadline has passed.
type DeadlineSource interface {
	OverdueRooms(ctx context.Context, now time.Time, limit int64) ([]string, error)
}

const sweepBatch = 100

// Sweeper recovers deadlines whose local callback was lost, e.g. because the
// instance that armed it went away. Expiry actions are idempotent, so several
// instances sweeping the same room is harmless.
type Sweeper struct {
	coord    *Coordinator
	source   DeadlineSource
	interval time.Duration
}

// NewSweeper returns a sweeper that checks every interval.
func NewSweeper(coord *Coordinator, source DeadlineSource, interval time.Duration) *Sweeper {
	return &Sweeper{coord: coord, source: source, interval: interval}
}

// Run sweeps until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	w := s.coord.clock.TickerFunc(ctx, s.interval, func() error {
		s.SweepOnce(ctx)
		return nil
	}, "sweeper")
	err := w.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// SweepOnce expires every overdue room that has no local callback pending.
// It returns how many rooms it expired.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	ids, err := s.source.OverdueRooms(ctx, s.coord.Now(), sweepBatch)
	if err != nil {
		s.coord.logger.WithError(err).Error("deadline sweep failed")
		return 0
	}
	n := 0
	for _, id := range ids {
		if _, pending := s.coord.Pending(id); pending {
			continue
		}
		s.coord.logger.WithFields(logrus.Fields{"room": id}).Info("recovering overdue turn")
		s.coord.fire(id)
		n++
	}
	return n
}
