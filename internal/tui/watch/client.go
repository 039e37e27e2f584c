package watch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"github.com/chachacholly/kairoi/internal/api"
	"github.com/chachacholly/kairoi/internal/events"
)

// --- Message types ---

type eventMsg events.Event

type healthMsg api.HealthzResponse

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

type streamDownMsg struct{ err error }

type reconnectMsg struct{}

// --- Commands ---

// streamURL turns the API base URL into the websocket stream URL.
func streamURL(apiURL string, since int64) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", fmt.Errorf("invalid api url %q: %w", apiURL, err)
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported api url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/v1/stream"
	q := u.Query()
	if since > 0 {
		q.Set("since", strconv.FormatInt(since, 10))
	} else {
		q.Del("since")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// subscribe connects to the event stream and feeds events into ch, starting
// after sequence since. It returns streamDownMsg when the connection drops.
func subscribe(apiURL, apiKey string, since int64, ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		target, err := streamURL(apiURL, since)
		if err != nil {
			return errMsg{err}
		}

		header := http.Header{}
		header.Set("Authorization", "Bearer "+apiKey)
		dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
		conn, resp, err := dialer.Dial(target, header)
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusUnauthorized {
				return errMsg{fmt.Errorf("stream rejected the API key")}
			}
			return streamDownMsg{err}
		}
		defer conn.Close()

		for {
			var ev events.Event
			if err := conn.ReadJSON(&ev); err != nil {
				return streamDownMsg{err}
			}
			ch <- ev
		}
	}
}

// receiveNextEvent waits for the next event from the channel.
func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

// fetchHealth queries the /healthz endpoint.
func fetchHealth(apiURL string) tea.Msg {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(strings.TrimSuffix(apiURL, "/") + "/healthz")
	if err != nil {
		return errMsg{err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errMsg{fmt.Errorf("healthz returned %s", resp.Status)}
	}

	var h healthMsg
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return errMsg{err}
	}
	return h
}
