package tracker

import (
	"sync"

	"coursedesk/internal/channel"

	"go.uber.org/zap"
)

var terminalEvents = map[string]bool{
	EventUploadComplete: true,
	EventEmailSent:      true,
	EventSMSSent:        true,
	EventJobComplete:    true,
	EventJobFailed:      true,
}

// DefaultLocalEvents are watched by WatchLocal when no events are given.
var DefaultLocalEvents = []string{
	EventJobProgress,
	EventUploadProgress,
	EventUploadComplete,
	EventEmailSent,
	EventSMSSent,
	EventJobComplete,
	EventJobFailed,
}

// LocalProgress is a screen's own view of one job it started. It reacts only
// to events whose jobId matches that job, independently of the registry.
type LocalProgress struct {
	mu         sync.Mutex
	processing bool
	percent    int
	failed     bool
	done       chan struct{}
}

// Processing reports whether the job is still running.
func (l *LocalProgress) Processing() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.processing
}

// Percent returns the last reported percentage.
func (l *LocalProgress) Percent() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.percent
}

// Failed reports whether the job ended with a failure event.
func (l *LocalProgress) Failed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failed
}

// Done is closed when a terminal event for the job arrives.
func (l *LocalProgress) Done() <-chan struct{} {
	return l.done
}

func (l *LocalProgress) apply(name string, p payload) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.processing {
		return
	}
	if terminalEvents[name] {
		l.processing = false
		l.failed = name == EventJobFailed ||
			(name == EventUploadComplete && p.Successful < p.Total)
		if !l.failed {
			l.percent = 100
		}
		close(l.done)
		return
	}
	l.percent = clampPercent(p.percent())
}

// WatchLocal tracks jobID through the given events (DefaultLocalEvents when
// none are given) and returns the progress view plus a disposer.
func WatchLocal(ch Channel, jobID string, logger *zap.Logger, events ...string) (*LocalProgress, func()) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(events) == 0 {
		events = DefaultLocalEvents
	}

	lp := &LocalProgress{processing: true, done: make(chan struct{})}
	disposers := make([]func(), 0, len(events))
	for _, name := range events {
		disposers = append(disposers, ch.On(name, func(ev channel.Event) {
			var p payload
			if err := ev.Decode(&p); err != nil {
				logger.Debug("malformed push event", zap.String("event", ev.Name), zap.Error(err))
				return
			}
			if p.JobID != jobID {
				return
			}
			lp.apply(ev.Name, p)
		}))
	}

	return lp, func() {
		for _, dispose := range disposers {
			dispose()
		}
	}
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
