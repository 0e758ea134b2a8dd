package logstream

import (
	"sync"
	"time"
)

// Entry is one timestamped log line for a session.
type Entry struct {
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// DefaultCapacity bounds the per-session backlog. Oldest entries are
// evicted first once the cap is reached.
const DefaultCapacity = 500

// Hub fans out per-session log entries.
//
// Contract:
//   - Append MUST be non-blocking.
//   - Subscribers use buffered channels; slow subscribers drop entries.
//   - Subscribe hands over backlog + live stream atomically, so entries
//     appended during the handoff are neither lost nor duplicated.
type Hub struct {
	mu      sync.Mutex
	cap     int
	streams map[string]*stream
}

type stream struct {
	mu      sync.Mutex
	entries []Entry
	subs    map[uint64]*subscriber
	seq     uint64
}

type subscriber struct {
	ch   chan Entry
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

func NewHub() *Hub {
	return NewHubCapacity(DefaultCapacity)
}

func NewHubCapacity(capacity int) *Hub {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Hub{cap: capacity, streams: make(map[string]*stream)}
}

func (h *Hub) get(id string, create bool) *stream {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.streams[id]
	if !ok && create {
		st = &stream{subs: make(map[uint64]*subscriber)}
		h.streams[id] = st
	}
	return st
}

// Append records a timestamped entry for the session and notifies live
// subscribers. Entries beyond the capacity evict the oldest first.
func (h *Hub) Append(id, text string) {
	e := Entry{Time: time.Now(), Text: text}
	st := h.get(id, true)

	st.mu.Lock()
	st.entries = append(st.entries, e)
	if over := len(st.entries) - h.cap; over > 0 {
		st.entries = append([]Entry(nil), st.entries[over:]...)
	}
	subs := make([]*subscriber, 0, len(st.subs))
	for _, sub := range st.subs {
		subs = append(subs, sub)
	}
	st.mu.Unlock()

	for _, sub := range subs {
		// Non-blocking delivery. If the subscriber is slow, we drop.
		// If it unsubscribed concurrently and the channel closed, recover
		// from the send panic.
		func() {
			defer func() { _ = recover() }()
			select {
			case sub.ch <- e:
			default:
			}
		}()
	}
}

// Subscribe returns the current backlog and a live entry channel for the
// session. Backlog capture and subscriber registration happen under one
// lock, so no entry is lost or duplicated across the handoff.
// The returned cancel func is idempotent.
func (h *Hub) Subscribe(id string, buffer int) ([]Entry, <-chan Entry, func()) {
	if buffer <= 0 {
		buffer = 32
	}
	st := h.get(id, true)

	sub := &subscriber{ch: make(chan Entry, buffer)}

	st.mu.Lock()
	backlog := append([]Entry(nil), st.entries...)
	st.seq++
	key := st.seq
	st.subs[key] = sub
	st.mu.Unlock()

	cancel := func() {
		st.mu.Lock()
		delete(st.subs, key)
		st.mu.Unlock()
		// Closing is safe because Append recovers from send panics.
		sub.close()
	}
	return backlog, sub.ch, cancel
}

// Backlog returns a copy of the session's buffered entries.
func (h *Hub) Backlog(id string) []Entry {
	st := h.get(id, false)
	if st == nil {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]Entry(nil), st.entries...)
}

// Drop removes the session's stream entirely and disconnects its
// subscribers. Used when the sweep evicts a session.
func (h *Hub) Drop(id string) {
	h.mu.Lock()
	st := h.streams[id]
	delete(h.streams, id)
	h.mu.Unlock()

	if st == nil {
		return
	}
	st.mu.Lock()
	subs := st.subs
	st.subs = make(map[uint64]*subscriber)
	st.entries = nil
	st.mu.Unlock()
	for _, sub := range subs {
		sub.close()
	}
}
