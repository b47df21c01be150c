package tracker

import (
	"testing"

	"coursedesk/internal/models"
	"coursedesk/internal/toast"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinderFiltering(t *testing.T) {
	t.Run("Should ignore jobs started for another channel", func(t *testing.T) {
		h := newHarness(t, "T")

		h.channel.emit(t, EventJobStarted, map[string]any{"socketId": "S", "message": "Import"})

		assert.Empty(t, h.registry.List())
	})

	t.Run("Should make no registry change for events from another channel", func(t *testing.T) {
		h := newHarness(t, "A")
		h.registry.Register("A-job-1", "Mine", models.Metadata{ChannelID: "A"})

		h.channel.emit(t, EventJobProgress, map[string]any{"socketId": "B", "current": 1, "total": 2})
		h.channel.emit(t, EventJobFailed, map[string]any{"socketId": "B", "error": "nope"})

		rec, ok := h.registry.Get("A-job-1")
		require.True(t, ok)
		assert.Equal(t, models.StatusActive, rec.Status)
		assert.Equal(t, 0, rec.Progress)
		assert.Empty(t, h.toasts.all())
	})

	t.Run("Should drop everything while disconnected", func(t *testing.T) {
		h := newHarness(t, "")

		h.channel.emit(t, EventJobStarted, map[string]any{"socketId": "", "message": "x"})

		assert.Empty(t, h.registry.List())
	})

	t.Run("Should drop completions for jobs begun under an earlier channel id", func(t *testing.T) {
		h := newHarness(t, "S1")
		h.channel.emit(t, EventJobStarted, map[string]any{"socketId": "S1", "message": "Import"})
		require.Len(t, h.registry.List(), 1)

		h.channel.setID("S2")
		h.channel.emit(t, EventJobComplete, map[string]any{"socketId": "S2"})

		assert.Equal(t, models.StatusActive, h.registry.List()[0].Status)
	})
}

func TestBinderJobEvents(t *testing.T) {
	t.Run("Should register with a generated id and title fallback", func(t *testing.T) {
		h := newHarness(t, "S")

		h.channel.emit(t, EventJobStarted, map[string]any{"socketId": "S"})

		records := h.registry.List()
		require.Len(t, records, 1)
		assert.Equal(t, models.NewJobID("S", models.JobTypeGeneric, testStart), records[0].ID)
		assert.Equal(t, "Starting job...", records[0].Title)
		assert.Equal(t, "S", records[0].Metadata.ChannelID)
	})

	t.Run("Should register under the event job id and title", func(t *testing.T) {
		h := newHarness(t, "S")

		h.channel.emit(t, EventJobStarted, map[string]any{
			"socketId": "S", "jobId": "S-attendance-1", "jobType": "attendance", "title": "Attendance export",
		})

		rec, ok := h.registry.Get("S-attendance-1")
		require.True(t, ok)
		assert.Equal(t, "Attendance export", rec.Title)
		assert.Equal(t, models.JobTypeAttendance, rec.Metadata.JobType)
	})

	t.Run("Should compute progress from current and total", func(t *testing.T) {
		h := newHarness(t, "S")
		h.registry.Register("S-job-1", "Import", models.Metadata{})

		h.channel.emit(t, EventJobProgress, map[string]any{"socketId": "S", "current": 2, "total": 3})

		rec, _ := h.registry.Get("S-job-1")
		assert.Equal(t, 67, rec.Progress)
		assert.Equal(t, "Processing 2 of 3...", rec.Message)
	})

	t.Run("Should fall back to the raw progress and message", func(t *testing.T) {
		h := newHarness(t, "S")
		h.registry.Register("S-job-1", "Import", models.Metadata{})

		h.channel.emit(t, EventJobProgress, map[string]any{"socketId": "S", "progress": 42, "message": "Crunching"})

		rec, _ := h.registry.Get("S-job-1")
		assert.Equal(t, 42, rec.Progress)
		assert.Equal(t, "Crunching", rec.Message)
	})

	t.Run("Should route by job id when several jobs run on one channel", func(t *testing.T) {
		h := newHarness(t, "S")
		h.registry.Register("S-job-1", "First", models.Metadata{ChannelID: "S"})
		h.registry.Register("S-job-2", "Second", models.Metadata{ChannelID: "S"})

		h.channel.emit(t, EventJobProgress, map[string]any{"socketId": "S", "jobId": "S-job-1", "progress": 30})

		first, _ := h.registry.Get("S-job-1")
		second, _ := h.registry.Get("S-job-2")
		assert.Equal(t, 30, first.Progress)
		assert.Equal(t, 0, second.Progress)
	})

	t.Run("Should prefer the newest active job of the event's type", func(t *testing.T) {
		h := newHarness(t, "S")
		h.registry.Register("S-processSlides-1", "Slides", models.Metadata{JobType: models.JobTypeSlides, ChannelID: "S"})
		h.registry.Register("S-email-2", "Mail", models.Metadata{JobType: models.JobTypeEmail, ChannelID: "S"})

		h.channel.emit(t, EventJobComplete, map[string]any{
			"socketId": "S", "jobType": "processSlides", "fileName": "week1.pdf",
		})

		slides, _ := h.registry.Get("S-processSlides-1")
		mail, _ := h.registry.Get("S-email-2")
		assert.Equal(t, models.StatusCompleted, slides.Status)
		assert.Equal(t, "Slides processed: week1.pdf", slides.Message)
		assert.Equal(t, models.StatusActive, mail.Status)
		assert.Equal(t, []shownToast{{Text: "Slides processed: week1.pdf", Kind: toast.KindSuccess}}, h.toasts.all())
	})

	t.Run("Should complete with the event message", func(t *testing.T) {
		h := newHarness(t, "S")
		h.registry.Register("S-job-1", "Import", models.Metadata{})

		h.channel.emit(t, EventJobComplete, map[string]any{"socketId": "S", "message": "Imported 12 students"})

		rec, _ := h.registry.Get("S-job-1")
		assert.Equal(t, models.StatusCompleted, rec.Status)
		assert.Equal(t, 100, rec.Progress)
		assert.Equal(t, "Imported 12 students", rec.Message)
	})

	t.Run("Should fail a job with the event error", func(t *testing.T) {
		h := newHarness(t, "S")
		h.registry.Register("S-job-1", "Import", models.Metadata{})

		h.channel.emit(t, EventJobFailed, map[string]any{"socketId": "S", "error": "disk full"})

		rec, ok := h.registry.Get("S-job-1")
		require.True(t, ok)
		assert.Equal(t, models.StatusError, rec.Status)
		assert.Equal(t, "disk full", rec.Message)
		assert.Equal(t, []shownToast{{Text: "disk full", Kind: toast.KindError}}, h.toasts.all())
	})

	t.Run("Should use a generic failure message", func(t *testing.T) {
		h := newHarness(t, "S")
		h.registry.Register("S-job-1", "Import", models.Metadata{})

		h.channel.emit(t, EventJobFailed, map[string]any{"socketId": "S"})

		rec, _ := h.registry.Get("S-job-1")
		assert.Equal(t, "Job failed", rec.Message)
	})

	t.Run("Should ignore late duplicates of a terminal job", func(t *testing.T) {
		h := newHarness(t, "S")
		h.registry.Register("S-job-1", "Import", models.Metadata{})
		h.channel.emit(t, EventJobComplete, map[string]any{"socketId": "S", "jobId": "S-job-1"})

		h.channel.emit(t, EventJobFailed, map[string]any{"socketId": "S", "jobId": "S-job-1", "error": "late"})
		h.channel.emit(t, EventJobProgress, map[string]any{"socketId": "S", "jobId": "S-job-1", "progress": 5})

		rec, _ := h.registry.Get("S-job-1")
		assert.Equal(t, models.StatusCompleted, rec.Status)
		assert.Equal(t, 100, rec.Progress)
	})

	t.Run("Should leave a job of another type alone when the event has no job id", func(t *testing.T) {
		h := newHarness(t, "S")
		job, err := NewInitiator(h.channel, h.registry, h.clock).Begin(models.JobTypeUpload, "Uploading roster.csv")
		require.NoError(t, err)

		h.channel.emit(t, EventEmailSent, map[string]any{"socketId": "S", "email": "a@example.com"})

		rec, _ := h.registry.Get(job.ID)
		assert.Equal(t, models.StatusActive, rec.Status)
		assert.Equal(t, []shownToast{{Text: "Email sent to a@example.com", Kind: toast.KindSuccess}}, h.toasts.all())

		h.channel.emit(t, EventUploadComplete, map[string]any{"socketId": "S", "successful": 3, "total": 3})

		rec, _ = h.registry.Get(job.ID)
		assert.Equal(t, models.StatusCompleted, rec.Status)
		assert.Equal(t, "Upload complete: 3 of 3", rec.Message)
	})

	t.Run("Should only let repeated sends complete the generic job", func(t *testing.T) {
		h := newHarness(t, "S")
		h.registry.Register("S-attendance-1", "Attendance", models.Metadata{JobType: models.JobTypeAttendance, ChannelID: "S"})
		h.channel.emit(t, EventJobStarted, map[string]any{"socketId": "S", "jobId": "bulk-1", "title": "Mail parents"})

		h.channel.emit(t, EventEmailSent, map[string]any{"socketId": "S", "email": "a@x"})
		h.channel.emit(t, EventEmailSent, map[string]any{"socketId": "S", "email": "b@x"})

		bulk, _ := h.registry.Get("bulk-1")
		attendance, _ := h.registry.Get("S-attendance-1")
		assert.Equal(t, models.StatusCompleted, bulk.Status)
		assert.Equal(t, "Email sent to a@x", bulk.Message)
		assert.Equal(t, models.StatusActive, attendance.Status)
		assert.Equal(t, "Starting...", attendance.Message)
		assert.Len(t, h.toasts.all(), 2)
	})

	t.Run("Should not fail a typed job from an untyped failure", func(t *testing.T) {
		h := newHarness(t, "S")
		h.registry.Register("S-groups-1", "Groups", models.Metadata{JobType: models.JobTypeGroups, ChannelID: "S"})

		h.channel.emit(t, EventJobFailed, map[string]any{"socketId": "S", "error": "disk full"})

		rec, _ := h.registry.Get("S-groups-1")
		assert.Equal(t, models.StatusActive, rec.Status)
		assert.Equal(t, []shownToast{{Text: "disk full", Kind: toast.KindError}}, h.toasts.all())
	})

	t.Run("Should clamp absurd progress values", func(t *testing.T) {
		h := newHarness(t, "S")
		h.registry.Register("S-job-1", "Import", models.Metadata{})

		h.channel.emit(t, EventJobProgress, map[string]any{"socketId": "S", "progress": 1e300})
		rec, _ := h.registry.Get("S-job-1")
		assert.Equal(t, 100, rec.Progress)

		h.channel.emit(t, EventJobProgress, map[string]any{"socketId": "S", "progress": -1e300})
		rec, _ = h.registry.Get("S-job-1")
		assert.Equal(t, 0, rec.Progress)
	})
}

func TestBinderUploadLifecycle(t *testing.T) {
	t.Run("Should track an upload from start to a full completion", func(t *testing.T) {
		h := newHarness(t, "S")

		h.channel.emit(t, EventUploadProgress, map[string]any{"socketId": "S", "status": "start", "total": 3})
		h.channel.emit(t, EventUploadProgress, map[string]any{"socketId": "S", "status": "progress", "current": 1, "total": 3})
		records := h.registry.List()
		require.Len(t, records, 1)
		assert.Equal(t, 33, records[0].Progress)
		assert.Equal(t, "Processing 1 of 3...", records[0].Message)
		assert.Equal(t, "Uploading 3 files", records[0].Title)

		h.channel.emit(t, EventUploadProgress, map[string]any{"socketId": "S", "status": "progress", "current": 3, "total": 3})
		h.channel.emit(t, EventUploadComplete, map[string]any{"socketId": "S", "successful": 3, "total": 3})

		records = h.registry.List()
		require.Len(t, records, 1)
		assert.Equal(t, models.StatusCompleted, records[0].Status)
		assert.Equal(t, 100, records[0].Progress)

		toasts := h.toasts.all()
		require.Len(t, toasts, 1)
		assert.Contains(t, toasts[0].Text, "3 of 3")
		assert.Equal(t, toast.KindSuccess, toasts[0].Kind)
	})

	t.Run("Should report a partial upload as an error", func(t *testing.T) {
		h := newHarness(t, "S")
		h.channel.emit(t, EventUploadProgress, map[string]any{"socketId": "S", "status": "start", "total": 5})

		h.channel.emit(t, EventUploadComplete, map[string]any{"socketId": "S", "successful": 4, "total": 5})

		rec := h.registry.List()[0]
		assert.Equal(t, models.StatusError, rec.Status)
		assert.Equal(t, "Upload complete: 4 of 5", rec.Message)
		assert.Equal(t, []shownToast{{Text: "Upload complete: 4 of 5", Kind: toast.KindError}}, h.toasts.all())
	})

	t.Run("Should adopt an upload the client already began", func(t *testing.T) {
		h := newHarness(t, "S")
		job, err := NewInitiator(h.channel, h.registry, h.clock).Begin(models.JobTypeUpload, "Uploading roster.csv")
		require.NoError(t, err)

		h.channel.emit(t, EventUploadProgress, map[string]any{"socketId": "S", "status": "start", "total": 2})

		records := h.registry.List()
		require.Len(t, records, 1)
		assert.Equal(t, job.ID, records[0].ID)
		assert.Equal(t, "Uploading roster.csv", records[0].Title)
		assert.Equal(t, "Processing 0 of 2...", records[0].Message)
	})
}

func TestBinderMessaging(t *testing.T) {
	t.Run("Should complete email and sms jobs", func(t *testing.T) {
		h := newHarness(t, "S")
		h.registry.Register("S-email-1", "Mail", models.Metadata{JobType: models.JobTypeEmail, ChannelID: "S"})
		h.registry.Register("S-sms-2", "Text", models.Metadata{JobType: models.JobTypeSMS, ChannelID: "S"})

		h.channel.emit(t, EventEmailSent, map[string]any{"socketId": "S", "email": "parent@example.com"})
		h.channel.emit(t, EventSMSSent, map[string]any{"socketId": "S", "phone": "+254700000000"})

		mail, _ := h.registry.Get("S-email-1")
		sms, _ := h.registry.Get("S-sms-2")
		assert.Equal(t, "Email sent to parent@example.com", mail.Message)
		assert.Equal(t, models.StatusCompleted, mail.Status)
		assert.Equal(t, "SMS sent to +254700000000", sms.Message)
		assert.Equal(t, models.StatusCompleted, sms.Status)
		assert.Len(t, h.toasts.all(), 2)
	})

	t.Run("Should toast notifications without touching the registry", func(t *testing.T) {
		h := newHarness(t, "S")

		h.channel.emit(t, EventNotification, map[string]any{"message": "Term starts Monday"})
		h.channel.emit(t, EventNotification, map[string]any{"message": "Not for us", "socketId": "X"})

		assert.Empty(t, h.registry.List())
		assert.Equal(t, []shownToast{{Text: "Term starts Monday", Kind: toast.KindInfo}}, h.toasts.all())
	})

	t.Run("Should toast on connect", func(t *testing.T) {
		h := newHarness(t, "S")

		h.channel.emit(t, EventConnect, map[string]any{"sid": "S"})

		assert.Equal(t, []shownToast{{Text: "Connected to live updates", Kind: toast.KindInfo}}, h.toasts.all())
	})

	t.Run("Should ignore unrecognized events", func(t *testing.T) {
		h := newHarness(t, "S")

		h.channel.emit(t, "gradebookSynced", map[string]any{"socketId": "S"})

		assert.Empty(t, h.registry.List())
		assert.Empty(t, h.toasts.all())
	})
}

func TestBinderDispose(t *testing.T) {
	t.Run("Should remove every subscription", func(t *testing.T) {
		h := newHarness(t, "S")
		require.Positive(t, h.channel.subscribers())

		h.dispose()

		assert.Zero(t, h.channel.subscribers())
		h.channel.emit(t, EventJobStarted, map[string]any{"socketId": "S"})
		assert.Empty(t, h.registry.List())
	})
}
