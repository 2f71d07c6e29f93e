// internal/models/rating.go
package models

// DefaultRating is the starting rating of a new record.
const DefaultRating = 1000

// RatingRecord is the aggregate per-user statistics record.
type RatingRecord struct {
	UserID     string `json:"userId"`
	TotalGames int    `json:"totalGames"`
	Wins       int    `json:"wins"`
	Losses     int    `json:"losses"`
	Rating     int    `json:"rating"`
	PeakRating int    `json:"peakRating"`
}

// NewRatingRecord returns the default record created on first read.
func NewRatingRecord(userID string) RatingRecord {
	return RatingRecord{
		UserID:     userID,
		Rating:     DefaultRating,
		PeakRating: DefaultRating,
	}
}

// LeaderboardEntry is one ranked row of the leaderboard.
type LeaderboardEntry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"userId"`
	Rating int    `json:"rating"`
	Tier   string `json:"tier"`
}
