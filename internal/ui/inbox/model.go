// Package inbox is the terminal view of one user's notifications.
package inbox

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/bizops/internal/keys"
	"github.com/nhle/bizops/internal/model"
	"github.com/nhle/bizops/internal/store"
	"github.com/nhle/bizops/internal/theme"
)

// Store is the owner-scoped notification API the inbox drives.
type Store interface {
	ListNotifications(ctx context.Context, userID string, f store.NotificationFilter) ([]model.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
	DeleteNotification(ctx context.Context, userID, id string) error
}

// LoadedMsg carries a fresh page of notifications.
type LoadedMsg struct {
	Notifications []model.Notification
	Unread        int
	Err           error
}

// ActionMsg reports the outcome of a mark or delete.
type ActionMsg struct {
	Status string
	Err    error
}

const pageSize = 200

// Model is the inbox view.
type Model struct {
	list       list.Model
	help       help.Model
	store      Store
	keys       *keys.KeyMap
	userID     string
	unreadOnly bool
	unread     int
	status     string
	err        error
	width      int
	height     int
}

// New creates an inbox for userID.
func New(s Store, userID string, k *keys.KeyMap) Model {
	l := list.New([]list.Item{}, delegate{now: time.Now}, 0, 0)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)

	h := help.New()
	h.Styles.ShortKey = theme.HelpStyle
	h.Styles.ShortDesc = theme.HelpStyle

	return Model{
		list:   l,
		help:   h,
		store:  s,
		keys:   k,
		userID: userID,
	}
}

// Init loads the first page.
func (m Model) Init() tea.Cmd {
	return m.load()
}

// Update handles messages for the inbox.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.list.SetSize(msg.Width, max(msg.Height-3, 1))
		return m, nil

	case LoadedMsg:
		m.err = msg.Err
		if msg.Err != nil {
			return m, nil
		}
		m.unread = msg.Unread
		items := make([]list.Item, len(msg.Notifications))
		for i, n := range msg.Notifications {
			items[i] = Item{Notification: n}
		}
		return m, m.list.SetItems(items)

	case ActionMsg:
		m.err = msg.Err
		m.status = msg.Status
		return m, m.load()

	case tea.KeyMsg:
		return m.handleKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.MarkRead):
		n, ok := m.selected()
		if !ok || n.IsRead {
			return m, nil
		}
		return m, m.act("marked read", func(ctx context.Context) error {
			return m.store.MarkNotificationRead(ctx, m.userID, n.ID)
		})

	case key.Matches(msg, m.keys.MarkAllRead):
		return m, m.act("marked all read", func(ctx context.Context) error {
			_, err := m.store.MarkAllNotificationsRead(ctx, m.userID)
			return err
		})

	case key.Matches(msg, m.keys.Delete):
		n, ok := m.selected()
		if !ok {
			return m, nil
		}
		return m, m.act("deleted", func(ctx context.Context) error {
			return m.store.DeleteNotification(ctx, m.userID, n.ID)
		})

	case key.Matches(msg, m.keys.ToggleUnread):
		m.unreadOnly = !m.unreadOnly
		return m, m.load()

	case key.Matches(msg, m.keys.Refresh):
		m.status = ""
		return m, m.load()

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) selected() (model.Notification, bool) {
	it, ok := m.list.SelectedItem().(Item)
	if !ok {
		return model.Notification{}, false
	}
	return it.Notification, true
}

// View renders the inbox.
func (m Model) View() string {
	title := "Inbox"
	if m.unreadOnly {
		title += " (unread only)"
	}
	header := theme.HeaderStyle.Render(fmt.Sprintf("%s · %d unread", title, m.unread))

	body := m.list.View()
	if len(m.list.Items()) == 0 {
		body = lipgloss.NewStyle().
			Width(m.width).
			Foreground(theme.ColorGray).
			Padding(1, 2).
			Render("No notifications.")
	}

	status := m.status
	if m.err != nil {
		status = theme.ErrorStyle.Render(m.err.Error())
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		body,
		theme.StatusBarStyle.Render(status),
		m.help.View(m.keys),
	)
}

// load returns a command that fetches the current page and unread count.
func (m Model) load() tea.Cmd {
	s, userID := m.store, m.userID
	f := store.NotificationFilter{UnreadOnly: m.unreadOnly, Limit: pageSize}
	return func() tea.Msg {
		ctx := context.Background()
		ns, err := s.ListNotifications(ctx, userID, f)
		if err != nil {
			return LoadedMsg{Err: fmt.Errorf("loading notifications: %w", err)}
		}
		unread, err := s.CountUnread(ctx, userID)
		if err != nil {
			return LoadedMsg{Err: fmt.Errorf("counting unread: %w", err)}
		}
		return LoadedMsg{Notifications: ns, Unread: unread}
	}
}

func (m Model) act(done string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(context.Background()); err != nil {
			return ActionMsg{Err: err}
		}
		return ActionMsg{Status: done}
	}
}
