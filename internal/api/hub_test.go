package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/rangemap/internal/survey"
	"github.com/banshee-data/rangemap/internal/testutil"
	"github.com/gorilla/websocket"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func dialFeed(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_FeedsScanCycles(t *testing.T) {
	f := newFixture(t)
	hub := NewHub()
	f.srv.Hub = hub
	f.srv.Surveyor.Hub = hub
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(LoggingMiddleware(f.srv.ServeMux()))
	defer srv.Close()

	conn := dialFeed(t, srv)
	waitFor(t, "client registration", func() bool { return hub.Clients() == 1 })

	resp, err := http.Post(srv.URL+"/api/scan", "application/json", nil)
	testutil.AssertNoError(t, err)
	resp.Body.Close()
	testutil.AssertStatusCode(t, resp.StatusCode, http.StatusOK)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	testutil.AssertNoError(t, err)
	var msg CycleMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	if msg.Type != "cycle" || msg.Data.Snapshot.Occupied != 4 || msg.Data.Scan.Inserted != 4 {
		t.Errorf("message = %+v", msg)
	}
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()
	conn := dialFeed(t, srv)
	waitFor(t, "client registration", func() bool { return hub.Clients() == 1 })

	cancel()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected the feed to close")
	}
	if hub.Clients() != 0 {
		t.Errorf("clients = %d after shutdown", hub.Clients())
	}
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()
	conn := dialFeed(t, srv)
	waitFor(t, "client registration", func() bool { return hub.Clients() == 1 })

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	waitFor(t, "client removal", func() bool { return hub.Clients() == 0 })
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	logs := testutil.CaptureLogs(t)
	hub := NewHub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < broadcastBuffer+3; i++ {
			hub.Publish(survey.Result{})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked without a running hub")
	}
	if !logs.Contains("dropping cycle") {
		t.Errorf("expected dropped cycles to be logged, got %q", logs.Lines())
	}
}
