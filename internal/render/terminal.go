package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"dayplan/internal/dayview"
	"dayplan/internal/timeline"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).
			BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).
			BorderForeground(lipgloss.Color("240"))
	timeStyle  = lipgloss.NewStyle().Width(13)
	laneStyle  = lipgloss.NewStyle().Width(7).Foreground(lipgloss.Color("244"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	tableStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

// Terminal prints v as one row per block: time span, lane, title. Lanes
// beyond the first are indented.
func Terminal(w io.Writer, v dayview.View) error {
	header := headerStyle.Render(fmt.Sprintf("%s  %s-%s", v.Date,
		timeline.FormatClock(v.Window.StartMinute()),
		timeline.FormatClock(v.Window.StartMinute()+v.Window.WindowMinutes())))

	rows := make([]string, 0, len(v.Blocks))
	for _, b := range v.Blocks {
		p := b.Variant.Palette()
		title := lipgloss.NewStyle().Foreground(lipgloss.Color(p.Border)).
			Render(strings.Repeat("  ", b.Lane) + b.Title)
		if b.ReadOnly {
			title += mutedStyle.Render(" (agenda)")
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top,
			timeStyle.Render(b.StartAt+"-"+b.EndAt),
			laneStyle.Render(fmt.Sprintf("%d/%d", b.Lane+1, b.LaneCount)),
			title,
		))
	}
	if len(rows) == 0 {
		rows = append(rows, mutedStyle.Render("Geen taken"))
	}

	out := tableStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		append([]string{header}, rows...)...))
	_, err := fmt.Fprintln(w, out)
	return err
}
