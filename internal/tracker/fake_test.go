package tracker

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"coursedesk/internal/channel"
	"coursedesk/internal/registry"
	"coursedesk/internal/toast"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// fakeChannel delivers events synchronously to its subscribers.
type fakeChannel struct {
	mu       sync.Mutex
	id       string
	nextID   int
	handlers map[string]map[int]channel.Handler
	any      map[int]channel.Handler
}

func newFakeChannel(id string) *fakeChannel {
	return &fakeChannel{
		id:       id,
		handlers: make(map[string]map[int]channel.Handler),
		any:      make(map[int]channel.Handler),
	}
}

func (f *fakeChannel) CurrentID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id
}

func (f *fakeChannel) setID(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.id = id
}

func (f *fakeChannel) On(event string, h channel.Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	if f.handlers[event] == nil {
		f.handlers[event] = make(map[int]channel.Handler)
	}
	f.handlers[event][id] = h
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers[event], id)
	}
}

func (f *fakeChannel) OnAny(h channel.Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.any[id] = h
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.any, id)
	}
}

func (f *fakeChannel) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.any)
	for _, hs := range f.handlers {
		n += len(hs)
	}
	return n
}

func (f *fakeChannel) emit(t *testing.T, name string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	ev := channel.Event{Name: name, Data: raw}

	f.mu.Lock()
	var hs []channel.Handler
	for _, h := range f.handlers[name] {
		hs = append(hs, h)
	}
	for _, h := range f.any {
		hs = append(hs, h)
	}
	f.mu.Unlock()

	for _, h := range hs {
		h(ev)
	}
}

type shownToast struct {
	Text string
	Kind toast.Kind
}

type fakeNotifier struct {
	mu    sync.Mutex
	shown []shownToast
}

func (n *fakeNotifier) Show(text string, kind toast.Kind) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shown = append(n.shown, shownToast{Text: text, Kind: kind})
}

func (n *fakeNotifier) all() []shownToast {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]shownToast(nil), n.shown...)
}

var testStart = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

type harness struct {
	clock    *clockwork.FakeClock
	channel  *fakeChannel
	registry *registry.Registry
	toasts   *fakeNotifier
	dispose  func()
}

func newHarness(t *testing.T, sid string) *harness {
	t.Helper()
	h := &harness{
		clock:   clockwork.NewFakeClockAt(testStart),
		channel: newFakeChannel(sid),
		toasts:  &fakeNotifier{},
	}
	h.registry = registry.New(registry.Options{Clock: h.clock})
	t.Cleanup(h.registry.Close)

	binder := NewBinder(Options{
		Channel:  h.channel,
		Registry: h.registry,
		Toasts:   h.toasts,
		Clock:    h.clock,
	})
	h.dispose = binder.Bind()
	t.Cleanup(h.dispose)
	return h
}
