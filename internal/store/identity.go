// internal/store/identity.go
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// BindIdentity points userID at its current connection id.
func (s *Store) BindIdentity(ctx context.Context, userID, connID string) error {
	if err := s.rdb.HSet(ctx, identityKey, userID, connID).Err(); err != nil {
		return fmt.Errorf("failed to bind %s to %s: %w", userID, connID, err)
	}
	return nil
}

// LookupConnection returns the connection id bound to userID; ok is false
// when the user has no live connection.
func (s *Store) LookupConnection(ctx context.Context, userID string) (connID string, ok bool, err error) {
	connID, err = s.rdb.HGet(ctx, identityKey, userID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up %s: %w", userID, err)
	}
	return connID, true, nil
}

// unbindScript deletes the field only while it still holds the expected value.
var unbindScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], ARGV[1]) == ARGV[2] then
	return redis.call("HDEL", KEYS[1], ARGV[1])
end
return 0
`)

// UnbindIdentity removes the mapping only if it still points at connID, so a
// late disconnect cannot erase a newer connection's binding.
func (s *Store) UnbindIdentity(ctx context.Context, userID, connID string) error {
	if err := unbindScript.Run(ctx, s.rdb, []string{identityKey}, userID, connID).Err(); err != nil {
		return fmt.Errorf("failed to unbind %s: %w", userID, err)
	}
	return nil
}
