// Package replay хранит недавние события шины для просмотра через API.
package replay

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/annel0/blockverse/internal/eventbus"
)

// DefaultLimit размер выборки по умолчанию
const DefaultLimit = 100

// EventQuery фильтры выборки; пустые поля не ограничивают
type EventQuery struct {
	EventTypes []string   `json:"event_types"`
	StartTime  *time.Time `json:"start_time,omitempty"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	Username   string     `json:"username,omitempty"`
	Limit      int        `json:"limit,omitempty"`
}

// EventStats статистика по событиям в буфере
type EventStats struct {
	TotalEvents int64          `json:"total_events"`
	Buffered    int            `json:"buffered"`
	EventTypes  map[string]int `json:"event_types"`
	Oldest      *time.Time     `json:"oldest,omitempty"`
	Newest      *time.Time     `json:"newest,omitempty"`
}

// MemoryStore кольцевой буфер последних событий
type MemoryStore struct {
	mu    sync.RWMutex
	buf   []*eventbus.Envelope
	next  int
	full  bool
	total int64
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemoryStore{buf: make([]*eventbus.Envelope, capacity)}
}

// Write добавляет событие, вытесняя самое старое
func (s *MemoryStore) Write(ev *eventbus.Envelope) {
	s.mu.Lock()
	s.buf[s.next] = ev
	s.next = (s.next + 1) % len(s.buf)
	if s.next == 0 {
		s.full = true
	}
	s.total++
	s.mu.Unlock()
}

// Attach подписывает буфер на все события шины
func (s *MemoryStore) Attach(ctx context.Context, bus eventbus.EventBus) (eventbus.Subscription, error) {
	return bus.Subscribe(ctx, eventbus.Filter{}, func(_ context.Context, ev *eventbus.Envelope) {
		s.Write(ev)
	})
}

// snapshot события от новых к старым
func (s *MemoryStore) snapshot() []*eventbus.Envelope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := s.next
	if s.full {
		n = len(s.buf)
	}
	out := make([]*eventbus.Envelope, 0, n)
	for i := 1; i <= n; i++ {
		idx := (s.next - i + len(s.buf)) % len(s.buf)
		out = append(out, s.buf[idx])
	}
	return out
}

// Query события, подходящие под фильтр, от новых к старым
func (s *MemoryStore) Query(q EventQuery) []*eventbus.Envelope {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	var out []*eventbus.Envelope
	for _, ev := range s.snapshot() {
		if len(out) >= limit {
			break
		}
		if matches(q, ev) {
			out = append(out, ev)
		}
	}
	return out
}

func matches(q EventQuery, ev *eventbus.Envelope) bool {
	if len(q.EventTypes) > 0 {
		found := false
		for _, t := range q.EventTypes {
			if strings.EqualFold(t, ev.EventType) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.StartTime != nil && ev.Timestamp.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && ev.Timestamp.After(*q.EndTime) {
		return false
	}
	if q.Username != "" {
		var p struct {
			Username string `json:"username"`
		}
		if err := json.Unmarshal(ev.Payload, &p); err != nil || !strings.EqualFold(p.Username, q.Username) {
			return false
		}
	}
	return true
}

// Stats сводка по буферу
func (s *MemoryStore) Stats() EventStats {
	events := s.snapshot()
	s.mu.RLock()
	total := s.total
	s.mu.RUnlock()

	st := EventStats{TotalEvents: total, Buffered: len(events), EventTypes: make(map[string]int)}
	for _, ev := range events {
		st.EventTypes[ev.EventType]++
	}
	if len(events) > 0 {
		newest := events[0].Timestamp
		oldest := events[len(events)-1].Timestamp
		st.Newest, st.Oldest = &newest, &oldest
	}
	return st
}
