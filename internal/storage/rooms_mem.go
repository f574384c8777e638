package storage

import (
	"context"
	"sort"
	"sync"

	"ChipClash/internal/game/table"
)

type memRooms struct {
	mu    sync.RWMutex
	rooms map[string]*table.Room
	feed  *feed
}

// NewMemoryRoomStore keeps rooms in process. It backs single-instance
// demos and tests.
func NewMemoryRoomStore() RoomStore {
	return &memRooms{
		rooms: make(map[string]*table.Room),
		feed:  newFeed(),
	}
}

func (m *memRooms) Load(ctx context.Context) ([]*table.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*table.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRooms) Get(ctx context.Context, id string) (*table.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r.Clone(), nil
}

func (m *memRooms) Create(ctx context.Context, room *table.Room) error {
	m.mu.Lock()
	if _, ok := m.rooms[room.ID]; ok {
		m.mu.Unlock()
		return ErrRoomExists
	}
	room.Version = 1
	m.rooms[room.ID] = room.Clone()
	m.mu.Unlock()

	m.feed.publish(room)
	return nil
}

func (m *memRooms) Save(ctx context.Context, room *table.Room) error {
	m.mu.Lock()
	cur, ok := m.rooms[room.ID]
	if !ok {
		m.mu.Unlock()
		return ErrRoomNotFound
	}
	if cur.Version != room.Version {
		m.mu.Unlock()
		return ErrVersionConflict
	}
	next := bump(room)
	m.rooms[room.ID] = next
	m.mu.Unlock()

	room.Version, room.UpdatedAt = next.Version, next.UpdatedAt
	m.feed.publish(next)
	return nil
}

func (m *memRooms) Subscribe(ctx context.Context, fn func(*table.Room)) (func(), error) {
	return m.feed.add(fn), nil
}
