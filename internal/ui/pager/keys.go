// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pager

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the pager bindings.
type KeyMap struct {
	Up        key.Binding
	Down      key.Binding
	PageUp    key.Binding
	PageDown  key.Binding
	Home      key.Binding
	End       key.Binding
	NextMsg   key.Binding
	PrevMsg   key.Binding
	Reasoning key.Binding
	Help      key.Binding
	Quit      key.Binding
}

// DefaultKeyMap returns vim-like bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("up/k", "scroll up")),
		Down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("down/j", "scroll down")),
		PageUp:    key.NewBinding(key.WithKeys("pgup", "ctrl+u"), key.WithHelp("PgUp/C-u", "page up")),
		PageDown:  key.NewBinding(key.WithKeys("pgdown", "ctrl+d", " "), key.WithHelp("PgDn/C-d", "page down")),
		Home:      key.NewBinding(key.WithKeys("home", "g"), key.WithHelp("Home/g", "top")),
		End:       key.NewBinding(key.WithKeys("end", "G"), key.WithHelp("End/G", "bottom")),
		NextMsg:   key.NewBinding(key.WithKeys("n", "]"), key.WithHelp("n", "next message")),
		PrevMsg:   key.NewBinding(key.WithKeys("p", "["), key.WithHelp("p", "previous message")),
		Reasoning: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "toggle reasoning")),
		Help:      key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:      key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Down, k.NextMsg, k.PrevMsg, k.Reasoning, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.PageUp, k.PageDown},
		{k.Home, k.End, k.NextMsg, k.PrevMsg},
		{k.Reasoning, k.Help, k.Quit},
	}
}
