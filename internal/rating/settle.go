// internal/rating/settle.go
package rating

import (
	"context"

	"github.com/jason-s-yu/rummy/internal/models"
	"github.com/jason-s-yu/rummy/internal/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Outcome is one player's rating change after a settled game.
type Outcome struct {
	UserID string `json:"userId"`
	Before int    `json:"before"`
	After  int    `json:"after"`
	Delta  int    `json:"delta"`
	Tier   string `json:"tier"`
}

// Stats is a user's record together with its derived tier.
type Stats struct {
	models.RatingRecord
	Tier string `json:"tier"`
}

// Service settles finished games and serves rating queries.
type Service struct {
	store  *store.Store
	logger logrus.FieldLogger
}

// NewService returns a rating service over the shared store.
func NewService(st *store.Store, logger logrus.FieldLogger) *Service {
	return &Service{store: st, logger: logger.WithField("component", "rating")}
}

// Settle updates every real player of a finished game. Snapshots are read
// first, new ratings are computed from them together, then each player's
// update is committed in its own transaction. Games with fewer than two real
// players only move the win/loss counters.
func (s *Service) Settle(ctx context.Context, winnerUserID string, players []*models.Player) ([]Outcome, error) {
	var humans []*models.Player
	for _, p := range players {
		if !p.IsBot {
			humans = append(humans, p)
		}
	}
	if len(humans) == 0 {
		return nil, nil
	}

	snapshots := make([]models.RatingRecord, len(humans))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range humans {
		g.Go(func() error {
			rec, err := s.store.GetRating(gctx, p.UserID)
			if err != nil {
				return err
			}
			snapshots[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	participants := make([]Participant, len(humans))
	for i, p := range humans {
		participants[i] = Participant{
			UserID: p.UserID,
			Rating: snapshots[i].Rating,
			Games:  snapshots[i].TotalGames,
			Winner: p.UserID == winnerUserID,
		}
	}
	useElo := len(participants) >= 2
	next := Compute(participants)

	outcomes := make([]Outcome, len(humans))
	g, gctx = errgroup.WithContext(ctx)
	for i, p := range participants {
		g.Go(func() error {
			u := store.RatingUpdate{UserID: p.UserID, Won: p.Winner}
			if useElo {
				u.NewRating = &next[i]
			}
			rec, err := s.store.ApplyRating(gctx, u)
			if err != nil {
				return err
			}
			outcomes[i] = Outcome{
				UserID: p.UserID,
				Before: p.Rating,
				After:  rec.Rating,
				Delta:  rec.Rating - p.Rating,
				Tier:   Tier(rec.Rating),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.WithError(err).WithField("winner", winnerUserID).Error("rating settlement incomplete")
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"winner":  winnerUserID,
		"players": len(humans),
		"elo":     useElo,
	}).Info("settled ratings")
	return outcomes, nil
}

// GetStats returns a user's record with its tier.
func (s *Service) GetStats(ctx context.Context, userID string) (Stats, error) {
	rec, err := s.store.GetRating(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	return Stats{RatingRecord: rec, Tier: Tier(rec.Rating)}, nil
}

// Leaderboard returns the top limit users with rank and tier.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	rows, err := s.store.Leaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]models.LeaderboardEntry, len(rows))
	for i, r := range rows {
		out[i] = models.LeaderboardEntry{
			Rank:   i + 1,
			UserID: r.UserID,
			Rating: r.Rating,
			Tier:   Tier(r.Rating),
		}
	}
	return out, nil
}
