// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/SkiSpec/services/skispec"
)

const chatRequestTimeout = 2 * time.Minute

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat with a running server",
		Long: `Opens a terminal chat session. Type /clear to start a new session and
/quit (or ctrl+c) to exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m := newChatModel(newChatClient(serverURL))
			_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
}

// chatter is the server surface used by the chat model.
type chatter interface {
	Chat(ctx context.Context, sessionID, message string) (skispec.ChatResponse, error)
	Clear(ctx context.Context, sessionID string) error
}

type chatLine struct {
	role string // "user", "assistant", "error"
	text string
}

// replyMsg carries a server answer back into the update loop.
type replyMsg struct {
	resp skispec.ChatResponse
	err  error
}

// clearedMsg reports the end of a /clear.
type clearedMsg struct{ err error }

type chatStyles struct {
	title     lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	err       lipgloss.Style
	status    lipgloss.Style
}

func defaultChatStyles() chatStyles {
	return chatStyles{
		title:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")),
		user:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3B82F6")),
		assistant: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#10B981")),
		err:       lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")),
		status:    lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")),
	}
}

// chatModel is the bubbletea model for `skispec chat`.
type chatModel struct {
	client    chatter
	sessionID string
	lines     []chatLine
	waiting   bool

	input    textinput.Model
	viewport viewport.Model
	styles   chatStyles
	width    int
	height   int
}

func newChatModel(client chatter) chatModel {
	ti := textinput.New()
	ti.Placeholder = "Describe your skiing (ability, terrain, weight)..."
	ti.CharLimit = 2000
	ti.Focus()

	return chatModel{
		client:   client,
		input:    ti,
		viewport: viewport.New(80, 20),
		styles:   defaultChatStyles(),
	}
}

func (m chatModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-4, 1)
		m.input.Width = max(msg.Width-4, 10)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		}

	case replyMsg:
		m.waiting = false
		if msg.err != nil {
			m.lines = append(m.lines, chatLine{role: "error", text: msg.err.Error()})
		} else {
			m.sessionID = msg.resp.SessionID
			m.lines = append(m.lines, chatLine{role: "assistant", text: msg.resp.Response})
		}
		m.refresh()
		return m, nil

	case clearedMsg:
		m.waiting = false
		if msg.err != nil {
			m.lines = append(m.lines, chatLine{role: "error", text: msg.err.Error()})
		} else {
			m.sessionID = ""
			m.lines = nil
		}
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m chatModel) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.waiting {
		return m, nil
	}
	m.input.Reset()

	switch text {
	case "/quit", "/exit":
		return m, tea.Quit
	case "/clear":
		m.waiting = true
		id, client := m.sessionID, m.client
		return m, func() tea.Msg {
			if id == "" {
				return clearedMsg{}
			}
			ctx, cancel := context.WithTimeout(context.Background(), chatRequestTimeout)
			defer cancel()
			return clearedMsg{err: client.Clear(ctx, id)}
		}
	}

	m.lines = append(m.lines, chatLine{role: "user", text: text})
	m.waiting = true
	m.refresh()

	id, client := m.sessionID, m.client
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), chatRequestTimeout)
		defer cancel()
		resp, err := client.Chat(ctx, id, text)
		return replyMsg{resp: resp, err: err}
	}
}

func (m *chatModel) refresh() {
	m.viewport.SetContent(m.renderLines())
	m.viewport.GotoBottom()
}

func (m chatModel) renderLines() string {
	var sb strings.Builder
	for _, l := range m.lines {
		switch l.role {
		case "user":
			sb.WriteString(m.styles.user.Render("You: "))
			sb.WriteString(l.text)
		case "assistant":
			sb.WriteString(m.styles.assistant.Render("SkiSpec:"))
			sb.WriteString("\n" + l.text)
		default:
			sb.WriteString(m.styles.err.Render("Error: " + l.text))
		}
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func (m chatModel) View() string {
	status := "new session"
	if m.sessionID != "" {
		status = "session " + m.sessionID
	}
	if m.waiting {
		status += " · waiting..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.title.Render("SkiSpec")+"  "+m.styles.status.Render(status),
		m.viewport.View(),
		m.input.View(),
	)
}
