package models

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a tracked job
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// IsTerminal reports whether no further transition can leave this status
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Metadata carries optional correlation details about a job
type Metadata struct {
	JobType   JobType `json:"jobType,omitempty"`
	ChannelID string  `json:"channelId,omitempty"` // push channel id live when the job began
}

// ProgressRecord is one in-flight server job as seen by this client
type ProgressRecord struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`    // set at registration, never changed
	Progress  int       `json:"progress"` // 0-100, meaningful while active
	Status    Status    `json:"status"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
	Metadata  Metadata  `json:"metadata"`
}

// BelongsTo reports whether the record was started under the given channel id.
// Records registered without metadata still match through the id prefix convention.
func (r ProgressRecord) BelongsTo(channelID string) bool {
	if channelID == "" {
		return false
	}
	if r.Metadata.ChannelID != "" {
		return r.Metadata.ChannelID == channelID
	}
	prefix := channelID + "-"
	return len(r.ID) > len(prefix) && r.ID[:len(prefix)] == prefix
}

// NewJobID builds the client-side job id: {channelId}-{jobType}-{unixMillis}
func NewJobID(channelID string, jobType JobType, at time.Time) string {
	if jobType == "" {
		jobType = JobTypeGeneric
	}
	return fmt.Sprintf("%s-%s-%d", channelID, jobType, at.UnixMilli())
}
