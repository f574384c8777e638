package storage

import (
	"context"
	"errors"
	"fmt"

	"ChipClash/internal/game/table"
	"ChipClash/internal/utils"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

// key 约定：
//
//	str: cc:room:{id}      -> JSON room document
//	set: cc:rooms          -> Set(roomID,...)
//	pub: cc:rooms:changed  -> JSON room after every write
const (
	roomIndexKey   = "cc:rooms"
	roomChangedKey = "cc:rooms:changed"
)

func roomKey(id string) string {
	return fmt.Sprintf("cc:room:%s", id)
}

type redisRooms struct {
	rdb *redis.Client
	log *log.Logger
}

func NewRedisRoomStore(rdb *redis.Client) RoomStore {
	return &redisRooms{rdb: rdb, log: utils.Named("rooms.redis")}
}

func (s *redisRooms) Load(ctx context.Context) ([]*table.Room, error) {
	ids, err := s.rdb.SMembers(ctx, roomIndexKey).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*table.Room{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = roomKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*table.Room, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			// indexed but expired or deleted
			continue
		}
		r, err := decodeRoom([]byte(str))
		if err != nil {
			return nil, fmt.Errorf("decode room %s: %w", ids[i], err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *redisRooms) Get(ctx context.Context, id string) (*table.Room, error) {
	data, err := s.rdb.Get(ctx, roomKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeRoom(data)
}

func (s *redisRooms) Create(ctx context.Context, room *table.Room) error {
	room.Version = 1
	data, err := encodeRoom(room)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetNX(ctx, roomKey(room.ID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrRoomExists
	}
	p := s.rdb.Pipeline()
	p.SAdd(ctx, roomIndexKey, room.ID)
	p.Publish(ctx, roomChangedKey, data)
	_, err = p.Exec(ctx)
	return err
}

// Save watches the room key so a concurrent writer between our read and our
// write aborts the transaction instead of being overwritten.
func (s *redisRooms) Save(ctx context.Context, room *table.Room) error {
	key := roomKey(room.ID)
	var written []byte
	var next *table.Room

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrRoomNotFound
		}
		if err != nil {
			return err
		}
		cur, err := decodeRoom(data)
		if err != nil {
			return err
		}
		if cur.Version != room.Version {
			return ErrVersionConflict
		}
		next = bump(room)
		written, err = encodeRoom(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, written, 0)
			return nil
		})
		return err
	}

	err := s.rdb.Watch(ctx, txf, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrVersionConflict
	}
	if err != nil {
		return err
	}

	room.Version, room.UpdatedAt = next.Version, next.UpdatedAt
	if err := s.rdb.Publish(ctx, roomChangedKey, written).Err(); err != nil {
		// the write landed; subscribers catch up on the next change
		s.log.Warn("publish room change failed", "room", room.ID, "err", err)
	}
	return nil
}

func (s *redisRooms) Subscribe(ctx context.Context, fn func(*table.Room)) (func(), error) {
	sub := s.rdb.Subscribe(ctx, roomChangedKey)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", roomChangedKey, err)
	}
	go func() {
		for msg := range sub.Channel() {
			r, err := decodeRoom([]byte(msg.Payload))
			if err != nil {
				s.log.Warn("dropping undecodable room change", "err", err)
				continue
			}
			fn(r)
		}
	}()
	return func() { _ = sub.Close() }, nil
}
