// internal/store/ratings.go
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jason-s-yu/rummy/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	fieldTotalGames = "totalGames"
	fieldWins       = "wins"
	fieldLosses     = "losses"
	fieldRating     = "rating"
	fieldPeak       = "peakRating"
)

// GetRating returns a user's record, creating the default record on first read.
func (s *Store) GetRating(ctx context.Context, userID string) (models.RatingRecord, error) {
	key := ratingKey(userID)
	vals, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return models.RatingRecord{}, fmt.Errorf("failed to read rating of %s: %w", userID, err)
	}
	if len(vals) > 0 {
		return parseRating(userID, vals), nil
	}

	rec := models.NewRatingRecord(userID)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		// HSETNX keeps a concurrent first write intact.
		pipe.HSetNX(ctx, key, fieldTotalGames, 0)
		pipe.HSetNX(ctx, key, fieldWins, 0)
		pipe.HSetNX(ctx, key, fieldLosses, 0)
		pipe.HSetNX(ctx, key, fieldRating, rec.Rating)
		pipe.HSetNX(ctx, key, fieldPeak, rec.PeakRating)
		pipe.Expire(ctx, key, s.ratingTTL)
		return nil
	})
	if err != nil {
		return models.RatingRecord{}, fmt.Errorf("failed to create rating of %s: %w", userID, err)
	}
	return rec, nil
}

func parseRating(userID string, vals map[string]string) models.RatingRecord {
	rec := models.NewRatingRecord(userID)
	atoi := func(field string, dst *int) {
		if v, ok := vals[field]; ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	atoi(fieldTotalGames, &rec.TotalGames)
	atoi(fieldWins, &rec.Wins)
	atoi(fieldLosses, &rec.Losses)
	atoi(fieldRating, &rec.Rating)
	atoi(fieldPeak, &rec.PeakRating)
	return rec
}

// RatingUpdate is one participant's settlement. A nil NewRating only bumps
// the win/loss counters.
type RatingUpdate struct {
	UserID    string
	Won       bool
	NewRating *int
}

// ApplyRating commits counters, rating, peak rating and the leaderboard score
// for one user in a single MULTI/EXEC. It returns the record as written.
func (s *Store) ApplyRating(ctx context.Context, u RatingUpdate) (models.RatingRecord, error) {
	key := ratingKey(u.UserID)
	var out models.RatingRecord

	txf := func(tx *redis.Tx) error {
		vals, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		rec := parseRating(u.UserID, vals)
		if u.NewRating != nil {
			rec.Rating = *u.NewRating
		}
		if rec.Rating > rec.PeakRating {
			rec.PeakRating = rec.Rating
		}
		rec.TotalGames++
		result := fieldLosses
		if u.Won {
			rec.Wins++
			result = fieldWins
		} else {
			rec.Losses++
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HIncrBy(ctx, key, fieldTotalGames, 1)
			pipe.HIncrBy(ctx, key, result, 1)
			pipe.HSet(ctx, key, fieldRating, rec.Rating, fieldPeak, rec.PeakRating)
			pipe.Expire(ctx, key, s.ratingTTL)
			pipe.ZAdd(ctx, leaderboardKey, redis.Z{Score: float64(rec.Rating), Member: u.UserID})
			return nil
		})
		if err != nil {
			return err
		}
		out = rec
		return nil
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return models.RatingRecord{}, fmt.Errorf("failed to apply rating of %s: %w", u.UserID, err)
	}
	return models.RatingRecord{}, ErrConflict
}

// LeaderboardEntry is a raw leaderboard row; tiers are derived by the caller.
type LeaderboardEntry struct {
	UserID string
	Rating int
}

// Leaderboard returns the top limit users by rating, highest first.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	zs, err := s.rdb.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}
	out := make([]LeaderboardEntry, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		out = append(out, LeaderboardEntry{UserID: member, Rating: int(z.Score)})
	}
	return out, nil
}
