package watch

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chachacholly/kairoi/internal/events"
	"github.com/chachacholly/kairoi/internal/processor"
)

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok)
	return nm, cmd
}

func TestModelEvents(t *testing.T) {
	m := New("http://127.0.0.1:8080", "key")
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 140, Height: 40})

	m, cmd := update(t, m, eventMsg(events.Event{Seq: 1, Kind: events.RequestAccepted, RequestID: "req-1", JobID: "nightly"}))
	assert.NotNil(t, cmd, "keeps reading events")
	assert.True(t, m.connected)
	assert.Equal(t, int64(1), m.lastSeq)

	m, _ = update(t, m, eventMsg(events.Event{Seq: 2, Kind: events.ResponseSent, RequestID: "req-1", Outcome: "success"}))
	// Replayed events after a reconnect are ignored.
	m, _ = update(t, m, eventMsg(events.Event{Seq: 1, Kind: events.RequestAccepted, RequestID: "req-1", JobID: "nightly"}))

	rows := m.table.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "req-1", rows[0][0])
	assert.Equal(t, "nightly", rows[0][1])
	assert.Equal(t, stateSucceeded, rows[0][2])

	m, _ = update(t, m, eventMsg(events.Event{Seq: 3, Kind: events.ProcessorFatal, Detail: "inbound channel disconnected"}))
	view := m.View()
	assert.Contains(t, view, "req-1")
	assert.Contains(t, view, "dispatch loop stopped: inbound channel disconnected")
}

func TestModelHealth(t *testing.T) {
	m := New("http://127.0.0.1:8080", "key")
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 140, Height: 40})
	assert.Contains(t, m.View(), "offline")

	m, cmd := update(t, m, healthMsg{Status: "ok", Pending: 7, Dispatch: processor.Stats{Received: 12, Sent: 11}})
	assert.NotNil(t, cmd, "schedules the next health check")
	view := m.View()
	assert.Contains(t, view, "pending 7")
	assert.Contains(t, view, "received 12")
	assert.Contains(t, view, "sent 11")
}

func TestModelStreamDownAndErrors(t *testing.T) {
	m := New("http://127.0.0.1:8080", "key")
	m.connected = true

	m, cmd := update(t, m, streamDownMsg{err: errors.New("eof")})
	assert.False(t, m.connected)
	assert.Contains(t, m.lastError, "reconnecting")
	assert.NotNil(t, cmd)

	m, cmd = update(t, m, errMsg{errors.New("connection refused")})
	assert.Equal(t, "connection refused", m.lastError)
	assert.NotNil(t, cmd)
}

func TestModelQuit(t *testing.T) {
	m := New("http://127.0.0.1:8080", "key")
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestModelViewBeforeSize(t *testing.T) {
	assert.Equal(t, "Connecting to kairoi...", New("http://x", "k").View())
}
