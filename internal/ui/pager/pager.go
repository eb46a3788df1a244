// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pager

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/orphion/orphion/internal/model"
	"github.com/orphion/orphion/internal/ui/components"
	"github.com/orphion/orphion/internal/util"
)

// =============================================================================
// MESSAGES
// =============================================================================

// SessionUpdatedMsg replaces the displayed session, keeping the scroll
// position where possible.
type SessionUpdatedMsg struct {
	Session model.ChatSession
}

// SessionGoneMsg reports that the displayed session was deleted.
type SessionGoneMsg struct{}

// ReloadFunc fetches the latest copy of the session being viewed.
type ReloadFunc func(ctx context.Context, id string) (model.ChatSession, bool, error)

// reloadErrMsg carries a failed reload back into Update.
type reloadErrMsg struct{ err error }

// Reload returns a command that refetches the session.
func Reload(fetch ReloadFunc, id string) tea.Cmd {
	return func() tea.Msg {
		cs, ok, err := fetch(context.Background(), id)
		switch {
		case err != nil:
			return reloadErrMsg{err}
		case !ok:
			return SessionGoneMsg{}
		default:
			return SessionUpdatedMsg{Session: cs}
		}
	}
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the pager's bubbletea model.
type Model struct {
	session model.ChatSession
	view    *components.MessageView
	keys    KeyMap
	help    help.Model

	viewport viewport.Model
	// offsets holds the first content line of each message.
	offsets []int
	current int

	width, height int
	ready         bool
	gone          bool
	status        string
}

// New creates a pager for cs.
func New(cs model.ChatSession, view *components.MessageView) Model {
	return Model{
		session:  cs,
		view:     view,
		keys:     DefaultKeyMap(),
		help:     help.New(),
		viewport: viewport.New(80, 20),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd { return nil }

// Current returns the index of the message at the top of the view.
func (m Model) Current() int { return m.current }

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case SessionUpdatedMsg:
		if msg.Session.ID != m.session.ID {
			return m, nil
		}
		m.session = msg.Session
		m.gone = false
		m.status = "reloaded"
		m.refresh(false)
		return m, nil

	case SessionGoneMsg:
		m.gone = true
		m.status = "session was deleted"
		return m, nil

	case reloadErrMsg:
		m.status = "reload failed: " + msg.err.Error()
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	const (
		headerHeight = 2
		footerHeight = 2
	)
	m.width, m.height = msg.Width, msg.Height
	m.help.Width = msg.Width

	m.viewport.Width = max(msg.Width, 1)
	m.viewport.Height = max(msg.Height-headerHeight-footerHeight, 1)
	if m.view != nil && m.view.Renderer != nil {
		m.view.Renderer.Width = max(msg.Width-2, 20)
	}
	m.refresh(!m.ready)
	m.ready = true
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Reasoning):
		m.view.ShowReasoning = !m.view.ShowReasoning
		m.refresh(false)
	case key.Matches(msg, m.keys.NextMsg):
		m.jump(m.current + 1)
		return m, nil
	case key.Matches(msg, m.keys.PrevMsg):
		m.jump(m.current - 1)
		return m, nil
	case key.Matches(msg, m.keys.Up):
		m.viewport.LineUp(1)
	case key.Matches(msg, m.keys.Down):
		m.viewport.LineDown(1)
	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
	case key.Matches(msg, m.keys.Home):
		m.viewport.GotoTop()
	case key.Matches(msg, m.keys.End):
		m.viewport.GotoBottom()
	}
	m.current = m.messageAt(m.viewport.YOffset)
	return m, nil
}

// jump scrolls so message i is at the top. Out-of-range indexes are
// clamped.
func (m *Model) jump(i int) {
	if len(m.offsets) == 0 {
		return
	}
	i = max(0, min(i, len(m.offsets)-1))
	m.current = i
	m.viewport.SetYOffset(m.offsets[i])
}

// messageAt returns the last message starting at or above line.
func (m Model) messageAt(line int) int {
	idx := 0
	for i, off := range m.offsets {
		if off > line {
			break
		}
		idx = i
	}
	return idx
}

// refresh re-renders the transcript and recomputes message offsets.
func (m *Model) refresh(top bool) {
	const gap = "\n\n"
	var (
		sb      strings.Builder
		offsets = make([]int, 0, len(m.session.Messages))
		line    = 0
	)
	for i, msg := range m.session.Messages {
		if i > 0 {
			sb.WriteString(gap)
			line += strings.Count(gap, "\n")
		}
		offsets = append(offsets, line)
		out := m.view.Render(msg, false)
		sb.WriteString(out)
		line += strings.Count(out, "\n")
	}
	m.offsets = offsets
	m.viewport.SetContent(sb.String())
	if top {
		m.viewport.GotoTop()
		m.current = 0
	}
}

// =============================================================================
// VIEW
// =============================================================================

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.header(), m.viewport.View(), m.footer())
}

func (m Model) header() string {
	t := m.view.Renderer.Theme
	title := util.TruncateWidth(m.session.Title, max(m.width-24, 10))
	info := fmt.Sprintf("%d messages · %s", len(m.session.Messages), m.session.UpdatedAt.Local().Format("2006-01-02 15:04"))
	return t.Heading(1).Render(title) + "  " + t.Muted.Render(info) + "\n"
}

func (m Model) footer() string {
	t := m.view.Renderer.Theme
	pos := fmt.Sprintf("msg %d/%d · %3.f%%", m.current+1, len(m.session.Messages), m.viewport.ScrollPercent()*100)
	status := m.status
	if m.gone {
		status = t.Error.Render(status)
	}
	line := t.Muted.Render(pos)
	if status != "" {
		line += "  " + status
	}
	return line + "\n" + m.help.View(m.keys)
}

// Run shows the pager until the user quits. updates, when non-nil, feeds
// store change notifications into the running program.
func Run(ctx context.Context, cs model.ChatSession, view *components.MessageView, reload ReloadFunc, updates <-chan struct{}) error {
	p := tea.NewProgram(New(cs, view), tea.WithAltScreen(), tea.WithContext(ctx))
	if updates != nil && reload != nil {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-updates:
					if !ok {
						return
					}
					p.Send(Reload(reload, cs.ID)())
				}
			}
		}()
	}
	_, err := p.Run()
	return err
}
