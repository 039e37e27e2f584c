package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chachacholly/kairoi/internal/events"
)

func dialStream(t *testing.T, srv *httptest.Server, query string, key string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/stream" + query
	header := http.Header{}
	if key != "" {
		header.Set("Authorization", "Bearer "+key)
	}
	return websocket.DefaultDialer.Dial(url, header)
}

func TestStreamReplaysAndForwards(t *testing.T) {
	s := newTestServer(&mockStore{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	s.hub.Publish(events.Event{Kind: events.RequestAccepted, RequestID: "r1"})
	s.hub.Publish(events.Event{Kind: events.ResponseSent, RequestID: "r1", Outcome: "success"})

	conn, _, err := dialStream(t, srv, "?since=1", testAPIKey)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ev events.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, int64(2), ev.Seq)
	assert.Equal(t, events.ResponseSent, ev.Kind)

	s.hub.Publish(events.Event{Kind: events.RequestRejected, RequestID: "r2", Detail: "unsupported runner"})
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, int64(3), ev.Seq)
	assert.Equal(t, events.RequestRejected, ev.Kind)
	assert.Equal(t, "r2", ev.RequestID)
}

func TestStreamRequiresAuth(t *testing.T) {
	s := newTestServer(&mockStore{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	_, resp, err := dialStream(t, srv, "", "wrong-key")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestParseSince(t *testing.T) {
	assert.Equal(t, int64(0), parseSince(""))
	assert.Equal(t, int64(0), parseSince("abc"))
	assert.Equal(t, int64(0), parseSince("-4"))
	assert.Equal(t, int64(17), parseSince("17"))
}
