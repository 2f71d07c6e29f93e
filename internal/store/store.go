// internal/store/store.go
//
// Package store is the typed adapter over the shared Redis instance. All room,
// identity and rating state lives here; server instances keep nothing that
// cannot be rebuilt from it.
package store

import (
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "rummy:"

// DeliverChannel is the pub/sub channel used to hand outbound events to the
// instance holding a connection.
const DeliverChannel = keyPrefix + "deliver"

const (
	defaultRoomTTL   = 2 * time.Hour
	defaultRatingTTL = 365 * 24 * time.Hour

	// maxTxRetries bounds optimistic transaction retries on WATCH conflicts.
	maxTxRetries = 8
)

func roomKey(roomID string) string   { return keyPrefix + "room:" + roomID }
func rosterKey(roomID string) string { return keyPrefix + "room:" + roomID + ":conns" }
func ratingKey(userID string) string { return keyPrefix + "rating:" + userID }

var (
	identityKey    = keyPrefix + "identity"
	leaderboardKey = keyPrefix + "leaderboard"
	deadlinesKey   = keyPrefix + "deadlines"
)

// Store reads and writes shared state.
type Store struct {
	rdb       *redis.Client
	roomTTL   time.Duration
	ratingTTL time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithRoomTTL sets the inactivity expiry of room records.
func WithRoomTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.roomTTL = d
		}
	}
}

// WithRatingTTL sets the expiry of rating records.
func WithRatingTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.ratingTTL = d
		}
	}
}

// New wraps a connected Redis client.
func New(rdb *redis.Client, opts ...Option) *Store {
	s := &Store{
		rdb:       rdb,
		roomTTL:   defaultRoomTTL,
		ratingTTL: defaultRatingTTL,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client exposes the underlying client for pub/sub.
func (s *Store) Client() *redis.Client {
	return s.rdb
}
