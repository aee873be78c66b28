package inbox

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/bizops/internal/model"
	"github.com/nhle/bizops/internal/theme"
)

// Item wraps a notification for bubbles/list.
type Item struct {
	Notification model.Notification
}

func (i Item) FilterValue() string { return i.Notification.Title }
func (i Item) Title() string       { return i.Notification.Title }
func (i Item) Description() string { return i.Notification.Message }

// delegate renders one notification per line.
type delegate struct {
	now func() time.Time
}

func (d delegate) Height() int                             { return 1 }
func (d delegate) Spacing() int                            { return 0 }
func (d delegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d delegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}
	n := it.Notification

	marker := " "
	text := theme.ReadStyle
	if !n.IsRead {
		marker = "●"
		text = theme.UnreadStyle
	}

	badge := theme.TypeStyle(string(n.Type)).Render(theme.TypeLabel(string(n.Type)))
	age := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(relativeTime(d.now(), n.CreatedAt))

	line := fmt.Sprintf("%s %s %s  %s  %s",
		marker, badge, text.Render(n.Title), text.Render(n.Message), age)

	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}
	fmt.Fprint(w, line)
}

// relativeTime returns a human-friendly age of t as seen at now.
func relativeTime(now, t time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return fmt.Sprintf("%dw ago", int(d.Hours()/24/7))
	}
}
