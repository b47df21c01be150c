// Package registry holds the in-memory, ordered set of job progress records
// for this process. One Registry is constructed at startup and injected into
// the event binder and the presentation layer.
package registry

import (
	"sync"
	"time"

	"coursedesk/internal/models"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// DefaultGracePeriod is how long a terminal record stays visible before removal.
const DefaultGracePeriod = 4 * time.Second

const (
	startingMessage = "Starting..."
	doneMessage     = "Done"
	failedMessage   = "Failed"
)

// Options configure a Registry.
type Options struct {
	Clock       clockwork.Clock
	GracePeriod time.Duration
	Logger      *zap.Logger
}

// Registry is the process-wide job registry. Records are stored and returned
// by value, so callers can never mutate registry state through a record.
type Registry struct {
	clock  clockwork.Clock
	grace  time.Duration
	logger *zap.Logger

	mu      sync.Mutex
	order   []string
	records map[string]models.ProgressRecord
	timers  map[string]*graceTimer
	subs    map[chan struct{}]struct{}
	closed  bool
}

// graceTimer is compared by pointer so a stale timer never removes a
// record that was re-registered under the same id.
type graceTimer struct {
	timer clockwork.Timer
}

// New constructs an empty registry.
func New(opts Options) *Registry {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	grace := opts.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Registry{
		clock:   clock,
		grace:   grace,
		logger:  logger,
		records: make(map[string]models.ProgressRecord),
		timers:  make(map[string]*graceTimer),
		subs:    make(map[chan struct{}]struct{}),
	}
}

// Register inserts a new active record. Re-registering an existing id is a no-op.
func (r *Registry) Register(id, title string, meta models.Metadata) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[id]; exists {
		return
	}

	r.records[id] = models.ProgressRecord{
		ID:        id,
		Title:     title,
		Progress:  0,
		Status:    models.StatusActive,
		Message:   startingMessage,
		CreatedAt: r.clock.Now(),
		Metadata:  meta,
	}
	r.order = append(r.order, id)
	r.logger.Debug("job registered", zap.String("job_id", id), zap.String("job_type", string(meta.JobType)))
	r.notifyLocked()
}

// UpdateProgress overwrites the progress (clamped to 0-100) and, when message
// is non-empty, the message of an active record. Absent or terminal records
// are left untouched.
func (r *Registry) UpdateProgress(id string, progress int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.records[id]
	if !exists || rec.Status.IsTerminal() {
		return
	}

	rec.Progress = clamp(progress)
	if message != "" {
		rec.Message = message
	}
	r.records[id] = rec
	r.notifyLocked()
}

// Complete moves an active record to completed (success) or error and
// schedules its removal after the grace period. Absent or already terminal
// records are left untouched, so late duplicates never resurrect a job.
func (r *Registry) Complete(id string, success bool, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.records[id]
	if !exists || rec.Status.IsTerminal() {
		return
	}

	if success {
		rec.Status = models.StatusCompleted
		rec.Progress = 100
		if message == "" {
			message = doneMessage
		}
	} else {
		rec.Status = models.StatusError
		if message == "" {
			message = failedMessage
		}
	}
	rec.Message = message
	r.records[id] = rec
	r.logger.Debug("job finished",
		zap.String("job_id", id),
		zap.String("status", string(rec.Status)),
		zap.String("message", message))

	if !r.closed {
		r.scheduleRemovalLocked(id)
	}
	r.notifyLocked()
}

// Remove deletes a record immediately regardless of status. Idempotent.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(id)
}

// List returns all records in registration order.
func (r *Registry) List() []models.ProgressRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.ProgressRecord, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.records[id])
	}
	return out
}

// Get returns a copy of the record with the given id.
func (r *Registry) Get(id string) (models.ProgressRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	return rec, ok
}

// Len returns the number of tracked records.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Subscribe returns a disposer and a channel that receives a coalesced
// signal after every mutation. The channel is closed on dispose or Close.
func (r *Registry) Subscribe() (func(), <-chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan struct{}, 1)
	if r.closed {
		close(ch)
		return func() {}, ch
	}
	r.subs[ch] = struct{}{}

	dispose := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.subs[ch]; !ok {
			return
		}
		delete(r.subs, ch)
		drainAndClose(ch)
	}
	return dispose, ch
}

// Close stops every pending grace timer and closes all subscriptions.
// Records remain readable.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	for id, gt := range r.timers {
		gt.timer.Stop()
		delete(r.timers, id)
	}
	for ch := range r.subs {
		drainAndClose(ch)
		delete(r.subs, ch)
	}
}

func (r *Registry) scheduleRemovalLocked(id string) {
	if old, ok := r.timers[id]; ok {
		old.timer.Stop()
	}
	gt := &graceTimer{}
	gt.timer = r.clock.AfterFunc(r.grace, func() {
		r.expire(id, gt)
	})
	r.timers[id] = gt
}

func (r *Registry) expire(id string, gt *graceTimer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.timers[id]; !ok || current != gt {
		return
	}
	r.removeLocked(id)
}

func (r *Registry) removeLocked(id string) {
	if gt, ok := r.timers[id]; ok {
		gt.timer.Stop()
		delete(r.timers, id)
	}
	if _, exists := r.records[id]; !exists {
		return
	}
	delete(r.records, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.notifyLocked()
}

func (r *Registry) notifyLocked() {
	for ch := range r.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func clamp(progress int) int {
	switch {
	case progress < 0:
		return 0
	case progress > 100:
		return 100
	default:
		return progress
	}
}

// drainAndClose removes any buffered signal before closing the channel so
// receivers observe a closed channel immediately.
func drainAndClose(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			close(ch)
			return
		}
	}
}
