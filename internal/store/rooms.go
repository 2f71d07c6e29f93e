// internal/store/rooms.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jason-s-yu/rummy/internal/errs"
	"github.com/jason-s-yu/rummy/internal/models"
	"github.com/redis/go-redis/v9"
)

// ErrRoomExists is returned by CreateRoom when the room code is taken.
var ErrRoomExists = errors.New("room code already in use")

// ErrConflict is returned when an optimistic update keeps losing races.
var ErrConflict = errs.New(errs.Internal, "store_conflict")

// CreateRoom persists a new room only if its code is unused.
func (s *Store) CreateRoom(ctx context.Context, room *models.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to marshal room %s: %w", room.RoomID, err)
	}
	ok, err := s.rdb.SetNX(ctx, roomKey(room.RoomID), data, s.roomTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to create room %s: %w", room.RoomID, err)
	}
	if !ok {
		return ErrRoomExists
	}
	return nil
}

// GetRoom loads a room. A missing or expired room is errs.ErrRoomNotFound.
func (s *Store) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	data, err := s.rdb.Get(ctx, roomKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errs.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room %s: %w", roomID, err)
	}
	return decodeRoom(data)
}

func decodeRoom(data []byte) (*models.Room, error) {
	var room models.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("failed to decode room: %w", err)
	}
	if room.Hands == nil {
		room.Hands = map[string][]models.Card{}
	}
	return &room, nil
}

// UpdateRoom runs read-validate-mutate-persist on one room inside a WATCH
// transaction. If fn returns an error nothing is written and the error is
// returned unchanged. fn may run more than once when another writer wins the
// race, so it must only touch the room it is given.
func (s *Store) UpdateRoom(ctx context.Context, roomID string, fn func(*models.Room) error) (*models.Room, error) {
	key := roomKey(roomID)
	var out *models.Room

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return errs.ErrRoomNotFound
		}
		if err != nil {
			return err
		}
		room, err := decodeRoom(data)
		if err != nil {
			return err
		}
		if err := fn(room); err != nil {
			return err
		}
		next, err := json.Marshal(room)
		if err != nil {
			return fmt.Errorf("failed to marshal room %s: %w", roomID, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, s.roomTTL)
			pipe.Expire(ctx, rosterKey(roomID), s.roomTTL)
			if room.GameState == models.StatePlaying && room.TurnExpiresAt != nil {
				pipe.ZAdd(ctx, deadlinesKey, redis.Z{
					Score:  float64(room.TurnExpiresAt.UnixMilli()),
					Member: roomID,
				})
			} else {
				pipe.ZRem(ctx, deadlinesKey, roomID)
			}
			return nil
		})
		if err != nil {
			return err
		}
		out = room
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
		return nil, err
	}
	return nil, ErrConflict
}

// DeleteRoom removes a room and its roster.
func (s *Store) DeleteRoom(ctx context.Context, roomID string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, roomKey(roomID), rosterKey(roomID))
		pipe.ZRem(ctx, deadlinesKey, roomID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete room %s: %w", roomID, err)
	}
	return nil
}

// OverdueRooms returns up to limit rooms whose persisted turn deadline is at
// or before now.
func (s *Store) OverdueRooms(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, deadlinesKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan turn deadlines: %w", err)
	}
	return ids, nil
}

// ForgetDeadline drops a room from the deadline index, e.g. once it expired.
func (s *Store) ForgetDeadline(ctx context.Context, roomID string) error {
	return s.rdb.ZRem(ctx, deadlinesKey, roomID).Err()
}

// AddConnection puts a connection id on the room's roster.
func (s *Store) AddConnection(ctx context.Context, roomID, connID string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, rosterKey(roomID), connID)
		pipe.Expire(ctx, rosterKey(roomID), s.roomTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to add %s to roster of %s: %w", connID, roomID, err)
	}
	return nil
}

// RemoveConnection takes a connection id off the room's roster.
func (s *Store) RemoveConnection(ctx context.Context, roomID, connID string) error {
	if err := s.rdb.SRem(ctx, rosterKey(roomID), connID).Err(); err != nil {
		return fmt.Errorf("failed to remove %s from roster of %s: %w", connID, roomID, err)
	}
	return nil
}

// Connections lists the connection ids on the room's roster.
func (s *Store) Connections(ctx context.Context, roomID string) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, rosterKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read roster of %s: %w", roomID, err)
	}
	return ids, nil
}
