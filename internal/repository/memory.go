package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	oatherr "github.com/thraizz/oath-server-go/internal/errors"
)

type memorySnapshot struct {
	checksum string
	data     []byte
	savedAt  time.Time
}

// MemorySnapshots keeps snapshots in process memory.
type MemorySnapshots struct {
	mu        sync.RWMutex
	snapshots map[string]memorySnapshot
	clock     Clock
}

func NewMemorySnapshots(clock Clock) *MemorySnapshots {
	if clock == nil {
		clock = SystemClock
	}
	return &MemorySnapshots{snapshots: make(map[string]memorySnapshot), clock: clock}
}

func (m *MemorySnapshots) Save(_ context.Context, gameID, checksum string, data []byte) error {
	if gameID == "" {
		return oatherr.InvalidArgumentf("game id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[gameID] = memorySnapshot{
		checksum: checksum,
		data:     append([]byte(nil), data...),
		savedAt:  m.clock.Now(),
	}
	return nil
}

func (m *MemorySnapshots) Load(_ context.Context, gameID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snapshots[gameID]
	if !ok {
		return nil, oatherr.NotFoundf("no snapshot for game %s", gameID)
	}
	return append([]byte(nil), s.data...), nil
}

func (m *MemorySnapshots) Checksum(_ context.Context, gameID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snapshots[gameID]
	if !ok {
		return "", oatherr.NotFoundf("no snapshot for game %s", gameID)
	}
	return s.checksum, nil
}

func (m *MemorySnapshots) List(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.snapshots))
	for id := range m.snapshots {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := m.snapshots[ids[i]].savedAt, m.snapshots[ids[j]].savedAt
		if a.Equal(b) {
			return ids[i] < ids[j]
		}
		return a.After(b)
	})
	return ids, nil
}

func (m *MemorySnapshots) Delete(_ context.Context, gameID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snapshots[gameID]; !ok {
		return oatherr.NotFoundf("no snapshot for game %s", gameID)
	}
	delete(m.snapshots, gameID)
	return nil
}
