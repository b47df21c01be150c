package ui

import (
	"fmt"
	"strings"
	"time"

	"coursedesk/internal/models"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
)

const (
	minCardWidth = 30
	percentWidth = 5
)

// renderCard draws one job record. width is the full card width including
// the border.
func renderCard(rec models.ProgressRecord, s Styles, width int, selected bool) string {
	if width < minCardWidth {
		width = minCardWidth
	}
	// border and left padding
	inner := width - 1
	content := inner - 1
	color := statusColor(rec.Status)

	title := iconFor(rec.Metadata.JobType) + " " + s.Title.Render(rec.Title)
	if icon := statusIcon(rec.Status); icon != "" {
		title += " " + lipgloss.NewStyle().Foreground(color).Bold(true).Render(icon)
	}
	if selected {
		title = s.Selected.Render("›") + " " + title
	}

	b := badgeFor(rec.Metadata.JobType)
	meta := s.Badge.Background(b.Color).Render(b.Label) + " " +
		s.Time.Render(rec.CreatedAt.Local().Format(time.Kitchen))

	message := s.Message.Render(truncate.StringWithTail(rec.Message, uint(content), "…"))

	bar := progress.New(
		progress.WithSolidFill(string(color)),
		progress.WithoutPercentage(),
		progress.WithWidth(content-percentWidth),
	)
	line := bar.ViewAs(float64(rec.Progress)/100) +
		s.Percent.Render(fmt.Sprintf("%*d%%", percentWidth-1, rec.Progress))

	body := strings.Join([]string{title, meta, message, line}, "\n")
	return s.Card.BorderForeground(color).Width(inner).Render(body)
}
