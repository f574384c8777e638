package matchmaker

import (
	"context"
	"math/rand"
	"sync"
)

type memRepo struct {
	mu      sync.Mutex
	pools   map[string]map[string]Ticket // pool -> teamID -> ticket
	teams   map[string]string            // teamID -> pool
	inRooms map[string]string            // teamID -> roomID
	secrets map[string]string            // teamID -> secret hash
}

func NewMemoryRepo() Repo {
	return &memRepo{
		pools:   make(map[string]map[string]Ticket),
		teams:   make(map[string]string),
		inRooms: make(map[string]string),
		secrets: make(map[string]string),
	}
}

func (m *memRepo) Enqueue(ctx context.Context, t Ticket, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pools[t.Pool]; !ok {
		m.pools[t.Pool] = make(map[string]Ticket)
	}
	m.pools[t.Pool][t.TeamID] = t
	m.teams[t.TeamID] = t.Pool
	// 简单忽略 TTL，内存版仅供测试
	return nil
}

func (m *memRepo) PopNRandom(ctx context.Context, pool string, n int) ([]Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.pools[pool]
	if !ok || len(s) < n {
		return []Ticket{}, nil
	}

	all := make([]Ticket, 0, len(s))
	for _, t := range s {
		all = append(all, t)
	}
	rand.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })

	chosen := all[:n]
	for _, t := range chosen {
		delete(s, t.TeamID)
		delete(m.teams, t.TeamID)
	}
	if len(s) == 0 {
		delete(m.pools, pool)
	}
	return chosen, nil
}

func (m *memRepo) Remove(ctx context.Context, teamID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pool, ok := m.teams[teamID]
	if !ok {
		return nil
	}
	if s, ok := m.pools[pool]; ok {
		delete(s, teamID)
		if len(s) == 0 {
			delete(m.pools, pool)
		}
	}
	delete(m.teams, teamID)
	return nil
}

func (m *memRepo) Count(ctx context.Context, pool string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.pools[pool])), nil
}

func (m *memRepo) SetTeamRoom(ctx context.Context, teamID, roomID string, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inRooms[teamID] = roomID
	return nil
}

func (m *memRepo) GetTeamRoom(ctx context.Context, teamID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inRooms[teamID], nil
}

func (m *memRepo) SetSecret(ctx context.Context, teamID, hash string, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[teamID] = hash
	return nil
}

func (m *memRepo) SecretHash(ctx context.Context, teamID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.secrets[teamID], nil
}
