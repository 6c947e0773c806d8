package provider

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/freeeve/chunkworld/internal/world"
)

// EventKind identifies a provider event.
type EventKind uint8

const (
	// EventRelevant: the position entered the box of some observer.
	EventRelevant EventKind = iota
	// EventIrrelevant: the position left the boxes of every observer.
	EventIrrelevant
	// EventReady: the chunk and its six face neighbors are complete.
	EventReady
	// EventChanged: a block of the chunk was replaced.
	EventChanged
)

var eventNames = [...]string{"relevant", "irrelevant", "ready", "changed"}

func (k EventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("event(%d)", uint8(k))
}

func (k EventKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Event is delivered to subscribers.
type Event struct {
	Kind EventKind      `json:"kind"`
	Pos  world.ChunkPos `json:"pos"`
}

// subscribers fans events out to buffered channels. A subscriber whose
// buffer is full misses the event.
type subscribers struct {
	mu      sync.RWMutex
	chans   map[int]chan Event
	next    int
	closed  bool
	dropped int64
	warn    rate.Sometimes
	log     zerolog.Logger
}

func newSubscribers(log zerolog.Logger) *subscribers {
	return &subscribers{
		chans: make(map[int]chan Event),
		warn:  rate.Sometimes{Interval: 5 * time.Second},
		log:   log,
	}
}

func (s *subscribers) emit(ev Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, ch := range s.chans {
		select {
		case ch <- ev:
		default:
			n := atomic.AddInt64(&s.dropped, 1)
			s.warn.Do(func() {
				s.log.Warn().
					Int("subscriber", id).
					Stringer("event", ev.Kind).
					Int64("dropped_total", n).
					Msg("subscriber too slow, dropping events")
			})
		}
	}
}

func (s *subscribers) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chans)
}

func (s *subscribers) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.chans {
		close(ch)
		delete(s.chans, id)
	}
	s.closed = true
}

// Subscribe returns a channel receiving every event from now on and a
// function that unsubscribes and closes it. Events that do not fit in
// buffer are dropped. After Dispose the returned channel is already closed.
func (p *Provider) Subscribe(buffer int) (<-chan Event, func()) {
	s := p.subs
	ch := make(chan Event, buffer)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.next
	s.next++
	s.chans[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.chans[id]; ok {
				delete(s.chans, id)
				close(ch)
			}
		})
	}
}

// DroppedEvents returns the number of events lost to slow subscribers.
func (p *Provider) DroppedEvents() int64 { return atomic.LoadInt64(&p.subs.dropped) }
