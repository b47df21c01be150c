// Package ui renders the global job progress stack and toast banner in the
// terminal.
package ui

import (
	"coursedesk/internal/models"
	"coursedesk/internal/toast"

	"github.com/charmbracelet/lipgloss"
)

// Semantic colors
var (
	Blue   = lipgloss.Color("#2196F3")
	Green  = lipgloss.Color("#43A047")
	Red    = lipgloss.Color("#E53935")
	Gray   = lipgloss.Color("#9E9E9E")
	Purple = lipgloss.Color("#8E24AA")
	Teal   = lipgloss.Color("#00897B")
	Orange = lipgloss.Color("#FB8C00")
	Ink    = lipgloss.Color("#F2F2F2")
)

// badge is the label and color shown for a job type.
type badge struct {
	Label string
	Color lipgloss.Color
}

var defaultBadge = badge{Label: "Pending", Color: Gray}

var badges = map[models.JobType]badge{
	models.JobTypeUpload:     {Label: "Upload", Color: Blue},
	models.JobTypeSlides:     {Label: "Slides", Color: Purple},
	models.JobTypeEmail:      {Label: "Email", Color: Teal},
	models.JobTypeSMS:        {Label: "SMS", Color: Orange},
	models.JobTypeAttendance: {Label: "Attendance", Color: Green},
	models.JobTypeGroups:     {Label: "Groups", Color: Purple},
}

const defaultIcon = "⚙"

var icons = map[models.JobType]string{
	models.JobTypeUpload:     "⇪",
	models.JobTypeSlides:     "▤",
	models.JobTypeEmail:      "✉",
	models.JobTypeSMS:        "☎",
	models.JobTypeAttendance: "☑",
	models.JobTypeGroups:     "☷",
}

func badgeFor(t models.JobType) badge {
	if b, ok := badges[t]; ok {
		return b
	}
	return defaultBadge
}

func iconFor(t models.JobType) string {
	if icon, ok := icons[t]; ok {
		return icon
	}
	return defaultIcon
}

func statusColor(s models.Status) lipgloss.Color {
	switch s {
	case models.StatusCompleted:
		return Green
	case models.StatusError:
		return Red
	default:
		return Blue
	}
}

// statusIcon is empty for active records.
func statusIcon(s models.Status) string {
	switch s {
	case models.StatusCompleted:
		return "✓"
	case models.StatusError:
		return "✗"
	default:
		return ""
	}
}

func toastColor(k toast.Kind) lipgloss.Color {
	switch k {
	case toast.KindSuccess:
		return Green
	case toast.KindError:
		return Red
	default:
		return Blue
	}
}

// Styles groups the lipgloss styles used by the model.
type Styles struct {
	Header   lipgloss.Style
	Footer   lipgloss.Style
	Empty    lipgloss.Style
	Title    lipgloss.Style
	Message  lipgloss.Style
	Time     lipgloss.Style
	Percent  lipgloss.Style
	Selected lipgloss.Style
	Card     lipgloss.Style
	Badge    lipgloss.Style
	Toast    lipgloss.Style
}

// DefaultStyles returns the standard styles.
func DefaultStyles() Styles {
	return Styles{
		Header: lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1),
		Footer: lipgloss.NewStyle().
			Foreground(Gray).
			Padding(0, 1),
		Empty: lipgloss.NewStyle().
			Foreground(Gray).
			Italic(true).
			Padding(1, 2),
		Title: lipgloss.NewStyle().
			Bold(true),
		Message: lipgloss.NewStyle().
			Foreground(Gray),
		Time: lipgloss.NewStyle().
			Foreground(Gray),
		Percent: lipgloss.NewStyle().
			Bold(true),
		Selected: lipgloss.NewStyle().
			Bold(true),
		Card: lipgloss.NewStyle().
			Border(lipgloss.ThickBorder(), false, false, false, true).
			PaddingLeft(1).
			MarginBottom(1),
		Badge: lipgloss.NewStyle().
			Foreground(Ink).
			Padding(0, 1),
		Toast: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			MarginBottom(1),
	}
}
