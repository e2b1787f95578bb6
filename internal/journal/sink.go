package journal

import (
	"context"
	"sort"
	"time"
)

// Event is one processed frame on its way to the journal. Seq values are
// assigned by the producers starting at 1 and must not repeat.
type Event struct {
	Seq    int
	Camera int
	At     time.Time
	// Entries are recorded in the journal in order. An event without
	// entries still advances the sequence.
	Entries []any
	// Data is handed to the observer untouched.
	Data any
}

// Observer is called for every event in sequence order.
type Observer func(Event) error

// Sink is the single consumer of a multi-producer scan. Producers may finish
// frames in any order; the sink records them in sequence order.
type Sink struct {
	journal *Journal
	observe Observer
	in      chan Event
	done    chan struct{}

	next     int
	buffer   map[int]Event
	recorded int
	err      error
}

// NewSink starts the consumer goroutine. Either j or observe may be nil.
func NewSink(j *Journal, observe Observer, capacity int) *Sink {
	if capacity < 1 {
		capacity = 1
	}
	s := &Sink{
		journal: j,
		observe: observe,
		in:      make(chan Event, capacity),
		done:    make(chan struct{}),
		next:    1,
		buffer:  make(map[int]Event),
	}
	go s.run()
	return s
}

// Send hands an event to the sink. It only blocks while the channel is full.
func (s *Sink) Send(ctx context.Context, ev Event) error {
	select {
	case s.in <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events, writes out anything still buffered and
// returns the first error the sink hit.
func (s *Sink) Close() error {
	close(s.in)
	<-s.done
	return s.err
}

// Recorded returns the number of events processed so far. Only meaningful after Close.
func (s *Sink) Recorded() int { return s.recorded }

func (s *Sink) run() {
	defer close(s.done)

	for ev := range s.in {
		s.buffer[ev.Seq] = ev

		// Process in strict order
		for {
			next, ok := s.buffer[s.next]
			if !ok {
				break
			}
			delete(s.buffer, s.next)
			s.handle(next)
			s.next++
		}
	}

	// Gaps are left by producers that stopped early.
	rest := make([]int, 0, len(s.buffer))
	for seq := range s.buffer {
		rest = append(rest, seq)
	}
	sort.Ints(rest)
	for _, seq := range rest {
		s.handle(s.buffer[seq])
	}
	s.buffer = nil
}

func (s *Sink) handle(ev Event) {
	s.recorded++
	if s.err != nil {
		return
	}
	if s.observe != nil {
		if err := s.observe(ev); err != nil {
			s.err = err
			return
		}
	}
	if s.journal == nil {
		return
	}
	for _, entry := range ev.Entries {
		if err := s.journal.Record(ev.At, entry); err != nil {
			s.err = err
			return
		}
	}
}
