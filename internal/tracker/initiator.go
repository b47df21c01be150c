package tracker

import (
	"errors"

	"coursedesk/internal/models"
	"coursedesk/internal/registry"

	"github.com/jonboulle/clockwork"
)

// ErrNoChannel is returned when a job is started while the push channel has
// no live identifier; the server would have nowhere to send its events.
var ErrNoChannel = errors.New("push channel is not connected")

// IDSource reports the live push channel identifier.
type IDSource interface {
	CurrentID() string
}

// Initiator registers jobs on behalf of the screen that starts them.
type Initiator struct {
	channel  IDSource
	registry *registry.Registry
	clock    clockwork.Clock
}

// NewInitiator creates an initiator. A nil clock uses the real clock.
func NewInitiator(ch IDSource, reg *registry.Registry, clock clockwork.Clock) *Initiator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Initiator{channel: ch, registry: reg, clock: clock}
}

// Job is a handle on a registered job.
type Job struct {
	ID        string
	ChannelID string
	Type      models.JobType

	registry *registry.Registry
}

// Begin registers a job under id {channelId}-{jobType}-{unixMillis}. The
// request that actually starts the work must be sent while the same channel
// identifier is live.
func (i *Initiator) Begin(jobType models.JobType, title string) (*Job, error) {
	sid := i.channel.CurrentID()
	if sid == "" {
		return nil, ErrNoChannel
	}
	if jobType == "" {
		jobType = models.JobTypeGeneric
	}

	id := models.NewJobID(sid, jobType, i.clock.Now())
	i.registry.Register(id, title, models.Metadata{JobType: jobType, ChannelID: sid})
	return &Job{ID: id, ChannelID: sid, Type: jobType, registry: i.registry}, nil
}

// Update reports local progress, e.g. while the request body is uploading.
func (j *Job) Update(progress int, message string) {
	j.registry.UpdateProgress(j.ID, progress, message)
}

// Complete finishes the job locally, e.g. when the request itself failed.
func (j *Job) Complete(success bool, message string) {
	j.registry.Complete(j.ID, success, message)
}
