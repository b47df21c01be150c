// Package toast implements the single-message notification banner and the
// generic error bus that lets any component report a failure to it.
package toast

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultDuration is how long a message stays visible without a manual close.
const DefaultDuration = 7 * time.Second

// Kind selects the banner styling.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

// Message is the currently visible toast.
type Message struct {
	Text  string
	Kind  Kind
	Shown time.Time
}

// Sink shows one message at a time; a new Show replaces the previous message
// and restarts the dismissal timer.
type Sink struct {
	clock    clockwork.Clock
	duration time.Duration

	mu      sync.Mutex
	current *Message
	timer   clockwork.Timer
	seq     uint64
	subs    map[chan struct{}]struct{}
}

// NewSink constructs a sink. A nil clock uses the real clock and a
// non-positive duration uses DefaultDuration.
func NewSink(clock clockwork.Clock, duration time.Duration) *Sink {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Sink{
		clock:    clock,
		duration: duration,
		subs:     make(map[chan struct{}]struct{}),
	}
}

// Show displays message, replacing whatever is visible.
func (s *Sink) Show(text string, kind Kind) {
	if kind == "" {
		kind = KindInfo
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.seq++
	seq := s.seq
	s.current = &Message{Text: text, Kind: kind, Shown: s.clock.Now()}
	s.timer = s.clock.AfterFunc(s.duration, func() {
		s.expire(seq)
	})
	s.notifyLocked()
}

// Close dismisses the visible message, if any.
func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

// Current returns the visible message.
func (s *Sink) Current() (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Message{}, false
	}
	return *s.current, true
}

// Attach routes every error published on bus to the sink and returns the disposer.
func (s *Sink) Attach(bus *Bus) func() {
	return bus.Subscribe(func(ev Event) {
		s.Show(ev.Message, KindError)
	})
}

// Subscribe returns a disposer and a channel signalled whenever the visible
// message changes.
func (s *Sink) Subscribe() (func(), <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan struct{}, 1)
	s.subs[ch] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, ch)
			close(ch)
		})
	}, ch
}

// Stop cancels the pending dismissal timer.
func (s *Sink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Sink) expire(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq {
		return
	}
	s.clearLocked()
}

func (s *Sink) clearLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.current == nil {
		return
	}
	s.current = nil
	s.notifyLocked()
}

func (s *Sink) notifyLocked() {
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
