package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"ChipClash/internal/game/table"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRoom() *table.Room {
	return table.NewRoom("class-a", table.Team{Name: "Owls", Members: []string{"ann", "ben"}}, table.Team{Name: "Foxes"}, 0)
}

// collector records subscription deliveries.
type collector struct {
	mu    sync.Mutex
	rooms []*table.Room
}

func (c *collector) add(r *table.Room) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms = append(c.rooms, r)
}

func (c *collector) maxVersion(id string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var v int64
	for _, r := range c.rooms {
		if r.ID == id && r.Version > v {
			v = r.Version
		}
	}
	return v
}

// exerciseStore is the contract every RoomStore backend must meet.
func exerciseStore(t *testing.T, s RoomStore) {
	ctx := context.Background()
	c := &collector{}
	unsub, err := s.Subscribe(ctx, c.add)
	require.NoError(t, err)
	defer unsub()

	room := sampleRoom()
	require.NoError(t, s.Create(ctx, room))
	assert.Equal(t, int64(1), room.Version)
	assert.ErrorIs(t, s.Create(ctx, room), ErrRoomExists)

	got, err := s.Get(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, room.TeamA.Name, got.TeamA.Name)
	assert.Equal(t, []string{"ann", "ben"}, got.TeamA.Members)
	assert.Equal(t, table.StatusReady, got.Match.RoundStatus)

	// two writers read version 1; only the first save wins
	w1, err := s.Get(ctx, room.ID)
	require.NoError(t, err)
	w2, err := s.Get(ctx, room.ID)
	require.NoError(t, err)

	w1.TeamA.Winnings = 7
	require.NoError(t, s.Save(ctx, w1))
	assert.Equal(t, int64(2), w1.Version)

	w2.TeamB.Winnings = 9
	assert.ErrorIs(t, s.Save(ctx, w2), ErrVersionConflict)

	got, err = s.Get(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, 7, got.TeamA.Winnings)
	assert.Equal(t, 0, got.TeamB.Winnings)

	// the loser reloads and retries
	got.TeamB.Winnings = 9
	require.NoError(t, s.Save(ctx, got))
	assert.Equal(t, int64(3), got.Version)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	ghost := sampleRoom()
	assert.ErrorIs(t, s.Save(ctx, ghost), ErrRoomNotFound)

	other := sampleRoom()
	require.NoError(t, s.Create(ctx, other))
	all, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	assert.Eventually(t, func() bool {
		return c.maxVersion(room.ID) == 3 && c.maxVersion(other.ID) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMemoryRoomStore(t *testing.T) {
	exerciseStore(t, NewMemoryRoomStore())
}

func TestRedisRoomStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	exerciseStore(t, NewRedisRoomStore(rdb))

	assert.True(t, mr.Exists(roomIndexKey))
}

func TestRedisLoadSkipsVanishedRooms(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisRoomStore(rdb)
	room := sampleRoom()
	require.NoError(t, s.Create(ctx, room))
	mr.Del(roomKey(room.ID))

	all, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSQLiteRoomStore(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer db.Close()

	s, err := NewSQLRoomStore(context.Background(), db, SQLite)
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestPostgresBind(t *testing.T) {
	s := &sqlRooms{dialect: Postgres}
	assert.Equal(t,
		"UPDATE rooms SET version = $1 WHERE id = $2 AND version = $3",
		s.bind("UPDATE rooms SET version = ? WHERE id = ? AND version = ?"))

	s.dialect = SQLite
	assert.Equal(t, "SELECT 1 WHERE id = ?", s.bind("SELECT 1 WHERE id = ?"))
}
