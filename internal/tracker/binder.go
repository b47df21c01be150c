// Package tracker correlates push channel events with jobs this client
// started and drives the job registry and toast sink from them.
//
// An event is processed only when its socketId equals the live channel
// identifier. Events carrying another (or no) identifier are dropped; after a
// reconnect that includes completions of jobs begun under the old identifier.
package tracker

import (
	"fmt"

	"coursedesk/internal/channel"
	"coursedesk/internal/models"
	"coursedesk/internal/registry"
	"coursedesk/internal/toast"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	connectedMessage   = "Connected to live updates"
	startingJobTitle   = "Starting job..."
	jobFailedMessage   = "Job failed"
	jobCompleteMessage = "Job completed"
)

// Channel is the part of the push channel provider the tracker needs.
type Channel interface {
	CurrentID() string
	On(event string, handler channel.Handler) func()
	OnAny(handler channel.Handler) func()
}

// Notifier shows one-shot messages to the user.
type Notifier interface {
	Show(text string, kind toast.Kind)
}

// Options configure a Binder.
type Options struct {
	Channel  Channel
	Registry *registry.Registry
	Toasts   Notifier
	Clock    clockwork.Clock
	Logger   *zap.Logger
}

// Binder translates push events into registry mutations and toasts.
type Binder struct {
	channel  Channel
	registry *registry.Registry
	toasts   Notifier
	clock    clockwork.Clock
	logger   *zap.Logger
}

// NewBinder creates a binder. Nothing is subscribed until Bind is called.
func NewBinder(opts Options) *Binder {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Binder{
		channel:  opts.Channel,
		registry: opts.Registry,
		toasts:   opts.Toasts,
		clock:    clock,
		logger:   logger,
	}
}

// Bind subscribes to every job event and returns a disposer that removes
// all of the subscriptions.
func (b *Binder) Bind() func() {
	handlers := map[string]func(channel.Event){
		EventConnect:        b.onConnect,
		EventJobStarted:     b.filtered(b.onJobStarted),
		EventJobProgress:    b.filtered(b.onJobProgress),
		EventUploadProgress: b.filtered(b.onUploadProgress),
		EventUploadComplete: b.filtered(b.onUploadComplete),
		EventEmailSent:      b.filtered(b.onEmailSent),
		EventSMSSent:        b.filtered(b.onSMSSent),
		EventJobComplete:    b.filtered(b.onJobComplete),
		EventJobFailed:      b.filtered(b.onJobFailed),
		EventNotification:   b.onNotification,
	}

	disposers := make([]func(), 0, len(handlers)+1)
	for name, h := range handlers {
		disposers = append(disposers, b.channel.On(name, h))
	}
	disposers = append(disposers, b.channel.OnAny(func(ev channel.Event) {
		if _, known := handlers[ev.Name]; !known {
			b.logger.Debug("ignoring unrecognized push event", zap.String("event", ev.Name))
		}
	}))

	return func() {
		for _, dispose := range disposers {
			dispose()
		}
	}
}

// filtered decodes the payload and drops events addressed to another channel.
func (b *Binder) filtered(next func(sid string, p payload)) func(channel.Event) {
	return func(ev channel.Event) {
		var p payload
		if err := ev.Decode(&p); err != nil {
			b.logger.Warn("malformed push event", zap.String("event", ev.Name), zap.Error(err))
			return
		}
		sid := b.channel.CurrentID()
		if sid == "" || p.SocketID != sid {
			b.logger.Debug("dropping push event for another channel",
				zap.String("event", ev.Name),
				zap.String("socket_id", p.SocketID),
				zap.String("current_id", sid))
			return
		}
		next(sid, p)
	}
}

func (b *Binder) onConnect(channel.Event) {
	b.toasts.Show(connectedMessage, toast.KindInfo)
}

func (b *Binder) onJobStarted(sid string, p payload) {
	jobType := p.jobType()
	if jobType == "" {
		jobType = models.JobTypeGeneric
	}
	id := p.JobID
	if id == "" {
		id = models.NewJobID(sid, jobType, b.clock.Now())
	}
	title := firstNonEmpty(p.Title, p.Message, startingJobTitle)

	b.registry.Register(id, title, models.Metadata{JobType: jobType, ChannelID: sid})
}

func (b *Binder) onJobProgress(sid string, p payload) {
	id, ok := b.resolve(sid, p, p.jobType())
	if !ok {
		return
	}
	message := p.countMessage()
	if message == "" {
		message = p.Message
	}
	b.registry.UpdateProgress(id, p.percent(), message)
}

func (b *Binder) onUploadProgress(sid string, p payload) {
	switch p.Status {
	case uploadStatusStart:
		id, ok := b.pendingUpload(sid, p)
		if !ok {
			id = p.JobID
			if id == "" {
				id = models.NewJobID(sid, models.JobTypeUpload, b.clock.Now())
			}
			b.registry.Register(id, uploadTitle(p.Total), models.Metadata{
				JobType:   models.JobTypeUpload,
				ChannelID: sid,
			})
		}
		if msg := p.countMessage(); msg != "" {
			b.registry.UpdateProgress(id, p.percent(), msg)
		}
	case uploadStatusProgress:
		id, ok := b.resolve(sid, p, models.JobTypeUpload)
		if !ok {
			return
		}
		b.registry.UpdateProgress(id, p.percent(), p.countMessage())
	default:
		b.logger.Debug("ignoring upload progress status", zap.String("status", p.Status))
	}
}

func (b *Binder) onUploadComplete(sid string, p payload) {
	message := fmt.Sprintf("Upload complete: %s of %s", count(p.Successful), count(p.Total))
	success := p.Successful >= p.Total

	if id, ok := b.resolve(sid, p, models.JobTypeUpload); ok {
		b.registry.Complete(id, success, message)
	}
	if success {
		b.toasts.Show(message, toast.KindSuccess)
	} else {
		b.toasts.Show(message, toast.KindError)
	}
}

func (b *Binder) onEmailSent(sid string, p payload) {
	b.completeSent(sid, p, models.JobTypeEmail, "Email sent to "+firstNonEmpty(p.To, p.Email))
}

func (b *Binder) onSMSSent(sid string, p payload) {
	b.completeSent(sid, p, models.JobTypeSMS, "SMS sent to "+firstNonEmpty(p.To, p.Phone))
}

func (b *Binder) completeSent(sid string, p payload, jobType models.JobType, message string) {
	if id, ok := b.resolve(sid, p, jobType); ok {
		b.registry.Complete(id, true, message)
	}
	b.toasts.Show(message, toast.KindSuccess)
}

func (b *Binder) onJobComplete(sid string, p payload) {
	jobType := p.jobType()
	message := firstNonEmpty(p.Message, jobCompleteMessage)
	if jobType == models.JobTypeSlides {
		message = "Slides processed"
		if p.FileName != "" {
			message += ": " + p.FileName
		}
	}

	if id, ok := b.resolve(sid, p, jobType); ok {
		b.registry.Complete(id, true, message)
	}
	b.toasts.Show(message, toast.KindSuccess)
}

func (b *Binder) onJobFailed(sid string, p payload) {
	message := firstNonEmpty(p.Error, jobFailedMessage)

	if id, ok := b.resolve(sid, p, p.jobType()); ok {
		b.registry.Complete(id, false, message)
	}
	b.toasts.Show(message, toast.KindError)
}

// onNotification only filters when the payload names a channel.
func (b *Binder) onNotification(ev channel.Event) {
	var p payload
	if err := ev.Decode(&p); err != nil {
		b.logger.Warn("malformed notification", zap.Error(err))
		return
	}
	if p.SocketID != "" && p.SocketID != b.channel.CurrentID() {
		return
	}
	if p.Message == "" {
		return
	}
	b.toasts.Show(p.Message, notificationKind(p.Type))
}

// resolve picks the record an event refers to: the event's jobId when it is
// registered, otherwise the newest active record started under sid whose type
// is jobType, falling back to the newest untyped or generic record. Records
// of another known type are never chosen.
func (b *Binder) resolve(sid string, p payload, jobType models.JobType) (string, bool) {
	if p.JobID != "" {
		if _, ok := b.registry.Get(p.JobID); ok {
			return p.JobID, true
		}
	}

	typed := jobType != "" && jobType != models.JobTypeUnknown && jobType != models.JobTypeGeneric
	records := b.registry.List()
	fallback := ""
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		if rec.Status != models.StatusActive || !rec.BelongsTo(sid) {
			continue
		}
		if typed && rec.Metadata.JobType == jobType {
			return rec.ID, true
		}
		if fallback == "" && isUntyped(rec.Metadata.JobType) {
			fallback = rec.ID
		}
	}
	if fallback == "" {
		b.logger.Debug("no job matches push event",
			zap.String("job_id", p.JobID),
			zap.String("job_type", string(jobType)))
		return "", false
	}
	return fallback, true
}

func isUntyped(t models.JobType) bool {
	return t == "" || t == models.JobTypeGeneric || t == models.JobTypeUnknown
}

// pendingUpload finds an upload this client already registered that has not
// reported progress yet, so a server "start" adopts it instead of adding a
// second card.
func (b *Binder) pendingUpload(sid string, p payload) (string, bool) {
	if p.JobID != "" {
		_, ok := b.registry.Get(p.JobID)
		return p.JobID, ok
	}
	records := b.registry.List()
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		if rec.Status == models.StatusActive && rec.BelongsTo(sid) &&
			rec.Metadata.JobType == models.JobTypeUpload && rec.Progress == 0 {
			return rec.ID, true
		}
	}
	return "", false
}

func uploadTitle(total float64) string {
	switch {
	case total == 1:
		return "Uploading 1 file"
	case total > 1:
		return fmt.Sprintf("Uploading %s files", count(total))
	default:
		return "Uploading files"
	}
}

func notificationKind(kind string) toast.Kind {
	switch toast.Kind(kind) {
	case toast.KindSuccess, toast.KindError:
		return toast.Kind(kind)
	default:
		return toast.KindInfo
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
