package watch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chachacholly/kairoi/internal/api"
	"github.com/chachacholly/kairoi/internal/events"
	"github.com/chachacholly/kairoi/internal/execution"
	"github.com/chachacholly/kairoi/internal/processor"
	"github.com/chachacholly/kairoi/internal/store"
)

const testAPIKey = "watch-key"

type stubStore struct{ depth int }

func (s stubStore) Submit(context.Context, string, execution.RunnerSpec) (uuid.UUID, error) {
	return uuid.New(), nil
}

func (s stubStore) Get(context.Context, uuid.UUID) (*store.Record, error) {
	return nil, store.ErrNotFound
}

func (s stubStore) Depth(context.Context) (int, error) { return s.depth, nil }

type fixedStats processor.Stats

func (f fixedStats) Stats() processor.Stats { return processor.Stats(f) }

func newTestAPI(t *testing.T, hub *events.Hub) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := api.New(api.Config{APIKey: testAPIKey}, stubStore{depth: 4}, fixedStats{Sent: 9}, hub, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestStreamURL(t *testing.T) {
	tests := []struct {
		in    string
		since int64
		want  string
		err   bool
	}{
		{in: "http://127.0.0.1:8080", want: "ws://127.0.0.1:8080/v1/stream"},
		{in: "https://kairoi.example/", since: 12, want: "wss://kairoi.example/v1/stream?since=12"},
		{in: "http://host/base", want: "ws://host/base/v1/stream"},
		{in: "ftp://host", err: true},
	}
	for _, tt := range tests {
		got, err := streamURL(tt.in, tt.since)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestSubscribeReplaysAndStreams(t *testing.T) {
	hub := events.NewHub(16)
	hub.Publish(events.Event{Kind: events.RequestAccepted, RequestID: "old"})
	hub.Publish(events.Event{Kind: events.RequestAccepted, RequestID: "replayed"})
	ts := newTestAPI(t, hub)

	ch := make(chan events.Event, 8)
	go func() { _ = subscribe(ts.URL, testAPIKey, 1, ch)() }()

	select {
	case ev := <-ch:
		assert.Equal(t, "replayed", ev.RequestID, "events up to since are skipped")
	case <-time.After(3 * time.Second):
		t.Fatal("no replayed event")
	}

	hub.Publish(events.Event{Kind: events.ResponseSent, RequestID: "replayed", Outcome: "success"})
	select {
	case ev := <-ch:
		assert.Equal(t, events.ResponseSent, ev.Kind)
		assert.Equal(t, int64(3), ev.Seq)
	case <-time.After(3 * time.Second):
		t.Fatal("no live event")
	}
}

func TestSubscribeReportsDroppedStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.WriteJSON(events.Event{Seq: 1, Kind: events.RequestAccepted, RequestID: "a"})
		_ = conn.Close()
	}))
	defer ts.Close()

	ch := make(chan events.Event, 1)
	msg := subscribe(ts.URL, testAPIKey, 0, ch)()
	assert.IsType(t, streamDownMsg{}, msg)
	require.Len(t, ch, 1)
	assert.Equal(t, "a", (<-ch).RequestID)
}

func TestSubscribeBadKey(t *testing.T) {
	ts := newTestAPI(t, events.NewHub(4))
	msg := subscribe(ts.URL, "wrong", 0, make(chan events.Event, 1))()
	require.IsType(t, errMsg{}, msg)
	assert.Contains(t, msg.(errMsg).Error(), "API key")
}

func TestFetchHealth(t *testing.T) {
	ts := newTestAPI(t, events.NewHub(4))
	msg := fetchHealth(ts.URL)
	h, ok := msg.(healthMsg)
	require.True(t, ok, "got %#v", msg)
	assert.Equal(t, 4, h.Pending)
	assert.Equal(t, uint64(9), h.Dispatch.Sent)

	ts.Close()
	assert.IsType(t, errMsg{}, fetchHealth(ts.URL))
}
