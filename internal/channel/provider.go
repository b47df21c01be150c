// Package channel owns the single long-lived push channel of the process.
//
// The provider exposes the live connection identifier (empty while
// disconnected) and lets any number of subscribers listen to named events.
// Transport failures are logged and retried; they are never surfaced to
// callers, so the absence of an identifier is the only failure signal.
package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var errMissingHello = errors.New("server did not send a connect frame")

// Options configure a Provider.
type Options struct {
	URL        string
	Dialer     *websocket.Dialer
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Logger     *zap.Logger
}

// Provider manages the push channel connection and event subscriptions.
type Provider struct {
	url        string
	dialer     *websocket.Dialer
	minBackoff time.Duration
	maxBackoff time.Duration
	logger     *zap.Logger

	mu         sync.RWMutex
	id         string
	credential string
	cancel     context.CancelFunc
	done       chan struct{}

	handlersMu  sync.RWMutex
	nextID      int
	handlers    map[string]map[int]Handler
	anyHandlers map[int]Handler
}

// NewProvider constructs a disconnected provider.
func NewProvider(opts Options) *Provider {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
		}
	}
	minBackoff := opts.MinBackoff
	if minBackoff <= 0 {
		minBackoff = DefaultMinBackoff
	}
	maxBackoff := opts.MaxBackoff
	if maxBackoff < minBackoff {
		maxBackoff = DefaultMaxBackoff
		if maxBackoff < minBackoff {
			maxBackoff = minBackoff
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Provider{
		url:         opts.URL,
		dialer:      dialer,
		minBackoff:  minBackoff,
		maxBackoff:  maxBackoff,
		logger:      logger,
		handlers:    make(map[string]map[int]Handler),
		anyHandlers: make(map[int]Handler),
	}
}

// Connect establishes the channel with credential. It is a no-op when the
// channel is already running with the same credential; a different
// credential tears the current connection down and starts a new one.
// The connection itself is established in the background.
func (p *Provider) Connect(ctx context.Context, credential string) {
	p.mu.Lock()
	if p.cancel != nil && p.credential == credential {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.teardown()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		// A concurrent Connect won the race.
		return
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	p.credential = credential
	p.cancel = cancel
	p.done = done

	p.logger.Info("push channel starting", zap.String("url", p.url))
	go p.run(runCtx, credential, done)
}

// CurrentID returns the live connection identifier, or "" when disconnected.
func (p *Provider) CurrentID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.id
}

// On subscribes handler to the named event and returns an idempotent disposer.
func (p *Provider) On(event string, handler Handler) func() {
	p.handlersMu.Lock()
	defer p.handlersMu.Unlock()

	id := p.nextID
	p.nextID++
	if p.handlers[event] == nil {
		p.handlers[event] = make(map[int]Handler)
	}
	p.handlers[event][id] = handler

	return func() {
		p.handlersMu.Lock()
		defer p.handlersMu.Unlock()
		subscribers := p.handlers[event]
		if subscribers == nil {
			return
		}
		delete(subscribers, id)
		if len(subscribers) == 0 {
			delete(p.handlers, event)
		}
	}
}

// OnAny subscribes handler to every event and returns an idempotent disposer.
func (p *Provider) OnAny(handler Handler) func() {
	p.handlersMu.Lock()
	defer p.handlersMu.Unlock()

	id := p.nextID
	p.nextID++
	p.anyHandlers[id] = handler

	return func() {
		p.handlersMu.Lock()
		defer p.handlersMu.Unlock()
		delete(p.anyHandlers, id)
	}
}

// Close tears the connection down and stops reconnecting. Subscriptions are
// kept; a later Connect resumes delivery to them.
func (p *Provider) Close() {
	p.teardown()
	p.logger.Info("push channel closed")
}

func (p *Provider) teardown() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.done = nil
	p.credential = ""
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// run keeps a connection alive until ctx is cancelled.
func (p *Provider) run(ctx context.Context, credential string, done chan struct{}) {
	defer close(done)

	attempt := 0
	for ctx.Err() == nil {
		connected, err := p.session(ctx, credential)
		p.setID("")
		if ctx.Err() != nil {
			return
		}
		if connected {
			attempt = 0
		}

		delay := reconnectDelay(attempt, p.minBackoff, p.maxBackoff)
		attempt++
		p.logger.Warn("push channel disconnected",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// session dials once and pumps frames until the connection drops. connected
// reports whether an identifier was assigned during the session.
func (p *Provider) session(ctx context.Context, credential string) (connected bool, err error) {
	header := http.Header{}
	if credential != "" {
		header.Set("Authorization", "Bearer "+credential)
	}

	conn, resp, err := p.dialer.DialContext(ctx, p.url, header)
	if err != nil {
		if resp != nil {
			return false, fmt.Errorf("dial %s: %s: %w", p.url, resp.Status, err)
		}
		return false, fmt.Errorf("dial %s: %w", p.url, err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	var first frame
	if err := conn.ReadJSON(&first); err != nil {
		return false, fmt.Errorf("read connect frame: %w", err)
	}
	var h hello
	if first.Event != EventConnect {
		return false, errMissingHello
	}
	if err := (Event{Data: first.Data}).Decode(&h); err != nil || h.SID == "" {
		return false, errMissingHello
	}

	p.setID(h.SID)
	p.logger.Info("push channel connected", zap.String("socket_id", h.SID))
	p.dispatch(Event{Name: EventConnect, Data: first.Data})

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return true, fmt.Errorf("read frame: %w", err)
		}
		if f.Event == "" {
			p.logger.Debug("ignoring frame without event name")
			continue
		}
		p.dispatch(Event{Name: f.Event, Data: f.Data})
	}
}

func (p *Provider) setID(id string) {
	p.mu.Lock()
	p.id = id
	p.mu.Unlock()
}

func (p *Provider) dispatch(ev Event) {
	p.handlersMu.RLock()
	named := p.handlers[ev.Name]
	handlers := make([]Handler, 0, len(named)+len(p.anyHandlers))
	for _, h := range named {
		handlers = append(handlers, h)
	}
	for _, h := range p.anyHandlers {
		handlers = append(handlers, h)
	}
	p.handlersMu.RUnlock()

	for _, h := range handlers {
		p.invoke(h, ev)
	}
}

func (p *Provider) invoke(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("push event handler panicked",
				zap.String("event", ev.Name),
				zap.Any("panic", r))
		}
	}()
	h(ev)
}
