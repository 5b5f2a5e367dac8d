package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/ascension-labs/govcore/internal/port/broadcast"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.CloseNow() })
	return c
}

func waitForConns(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for hub.ConnectionCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d connections, got %d", n, hub.ConnectionCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func read(t *testing.T, c *websocket.Conn) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return msg
}

func TestHubBroadcastEvent(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	c := dial(t, srv, "")
	waitForConns(t, hub, 1)

	hub.BroadcastEvent(context.Background(), broadcast.EventVoteCast, map[string]any{"proposal_id": "p1", "vote": true})

	msg := read(t, c)
	if msg.Type != broadcast.EventVoteCast {
		t.Fatalf("type = %q", msg.Type)
	}
	var payload map[string]any
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload["proposal_id"] != "p1" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestHubTopicFilter(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	c := dial(t, srv, "?topics=federation")
	waitForConns(t, hub, 1)

	ctx := context.Background()
	hub.BroadcastEvent(ctx, broadcast.EventVoteCast, "skipped")
	hub.BroadcastEvent(ctx, broadcast.EventRollbackTriggered, "delivered")

	msg := read(t, c)
	if msg.Type != broadcast.EventRollbackTriggered {
		t.Fatalf("filtered client received %q", msg.Type)
	}
}

func TestHubDisconnect(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	c := dial(t, srv, "")
	waitForConns(t, hub, 1)
	_ = c.Close(websocket.StatusNormalClosure, "")
	waitForConns(t, hub, 0)
}

func TestHubClose(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	dial(t, srv, "")
	dial(t, srv, "")
	waitForConns(t, hub, 2)
	hub.Close()
	if hub.ConnectionCount() != 0 {
		t.Fatalf("expected 0 connections after Close, got %d", hub.ConnectionCount())
	}
}

func TestHubBroadcastEventMarshalError(t *testing.T) {
	hub := NewHub()

	// A channel cannot be marshaled to JSON; the event is dropped.
	hub.BroadcastEvent(context.Background(), "bad", make(chan int))
}

func TestParseTopics(t *testing.T) {
	got := parseTopics(" consensus, ,federation ")
	if len(got) != 2 || got[0] != "consensus" || got[1] != "federation" {
		t.Fatalf("parseTopics = %v", got)
	}
	if parseTopics("") != nil {
		t.Fatal("empty topics should be nil")
	}
}

func TestHubRemoveNonexistent(t *testing.T) {
	hub := NewHub()
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.remove(&conn{cancel: cancel})
}
