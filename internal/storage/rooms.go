package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"ChipClash/internal/game/table"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomExists      = errors.New("room already exists")
	ErrVersionConflict = errors.New("room version conflict")
)

// RoomStore is the shared record of every room. Save is a compare-and-swap:
// it succeeds only if the stored version still equals room.Version, and on
// success bumps room.Version. Subscribers may see updates late or out of
// order and should compare versions.
type RoomStore interface {
	Load(ctx context.Context) ([]*table.Room, error)
	Get(ctx context.Context, id string) (*table.Room, error)
	Create(ctx context.Context, room *table.Room) error
	Save(ctx context.Context, room *table.Room) error
	Subscribe(ctx context.Context, fn func(*table.Room)) (unsubscribe func(), err error)
}

func encodeRoom(r *table.Room) ([]byte, error) {
	return json.Marshal(r)
}

func decodeRoom(data []byte) (*table.Room, error) {
	var r table.Room
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// bump stamps the next version onto a copy that is about to be written.
func bump(r *table.Room) *table.Room {
	next := r.Clone()
	next.Version = r.Version + 1
	next.UpdatedAt = time.Now().UTC()
	return next
}

// feed fans room updates out to in-process subscribers. Delivery is
// asynchronous so a subscriber may call back into the store.
type feed struct {
	mu   sync.Mutex
	next int
	subs map[int]func(*table.Room)
}

func newFeed() *feed {
	return &feed{subs: make(map[int]func(*table.Room))}
}

func (f *feed) add(fn func(*table.Room)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

func (f *feed) publish(r *table.Room) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fn := range f.subs {
		go fn(r.Clone())
	}
}
