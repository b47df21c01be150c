package tracker

import (
	"fmt"
	"math"

	"coursedesk/internal/models"
)

// Push event names consumed by the binder.
const (
	EventConnect        = "connect"
	EventJobStarted     = "jobStarted"
	EventJobProgress    = "jobProgress"
	EventUploadProgress = "uploadProgress"
	EventUploadComplete = "uploadComplete"
	EventEmailSent      = "emailSent"
	EventSMSSent        = "smsSent"
	EventJobComplete    = "jobComplete"
	EventJobFailed      = "jobFailed"
	EventNotification   = "notification"
)

const (
	uploadStatusStart    = "start"
	uploadStatusProgress = "progress"
)

// payload is the union of every job event body. Absent fields decode to
// their zero value.
type payload struct {
	SocketID   string  `json:"socketId"`
	JobID      string  `json:"jobId"`
	JobType    string  `json:"jobType"`
	Title      string  `json:"title"`
	Message    string  `json:"message"`
	Progress   float64 `json:"progress"`
	Current    float64 `json:"current"`
	Total      float64 `json:"total"`
	Status     string  `json:"status"`
	Successful float64 `json:"successful"`
	To         string  `json:"to"`
	Email      string  `json:"email"`
	Phone      string  `json:"phone"`
	FileName   string  `json:"fileName"`
	Error      string  `json:"error"`
	Type       string  `json:"type"`
}

// jobType returns the payload's job type, or "" when none was sent.
func (p payload) jobType() models.JobType {
	if p.JobType == "" {
		return ""
	}
	return models.ParseJobType(p.JobType)
}

// percent is round(current/total*100) when a total is known, else progress,
// clamped to 0..100 before conversion.
func (p payload) percent() int {
	v := p.Progress
	if p.Total > 0 {
		v = p.Current / p.Total * 100
	}
	if math.IsNaN(v) {
		return 0
	}
	return int(math.Round(math.Max(0, math.Min(100, v))))
}

// countMessage is the "Processing X of Y..." form, or "" without a total.
func (p payload) countMessage() string {
	if p.Total <= 0 {
		return ""
	}
	return fmt.Sprintf("Processing %s of %s...", count(p.Current), count(p.Total))
}

func count(v float64) string {
	return fmt.Sprintf("%d", int64(math.Round(v)))
}
