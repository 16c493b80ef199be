package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is a process local Store
type Memory struct {
	mu      sync.RWMutex
	records map[Key]Record
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{records: make(map[Key]Record)}
}

func (m *Memory) Save(ctx context.Context, records []Record) error {
	for _, r := range records {
		if !KeyOf(r.Slot).valid() {
			return ErrInvalidRecord
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, r := range records {
		r.UpdatedAt = now
		m.records[KeyOf(r.Slot)] = r
	}
	return nil
}

func (m *Memory) Exists(ctx context.Context, key Key) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[key]
	return ok, nil
}

// List returns records ordered by date, venue, facility and start time
func (m *Memory) List(ctx context.Context) ([]Record, error) {
	m.mu.RLock()
	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := KeyOf(out[i].Slot), KeyOf(out[j].Slot)
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.VenueID != b.VenueID {
			return a.VenueID < b.VenueID
		}
		if a.FacilityID != b.FacilityID {
			return a.FacilityID < b.FacilityID
		}
		return a.StartTime < b.StartTime
	})
	return out, nil
}
