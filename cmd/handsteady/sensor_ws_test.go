package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// newBridge starts a fake tracking bridge that writes msgs to every client
// and then holds the connection open until the test ends.
func newBridge(t *testing.T, msgs ...string) string {
	t.Helper()
	up := websocket.Upgrader{}
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, m := range msgs {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestNewTrackingClient_RequiresWebsocketScheme(t *testing.T) {
	for _, u := range []string{"http://127.0.0.1:6437", "127.0.0.1:6437", "://bad"} {
		if _, err := NewTrackingClient(u, 100, quietLogger()); err == nil {
			t.Fatalf("%q: expected error", u)
		}
	}
	c, err := NewTrackingClient("wss://bridge.local/v7.json", 0, quietLogger())
	if err != nil {
		t.Fatalf("wss: %v", err)
	}
	if c.readTimeout != time.Duration(defaultReadTimeoutMS)*time.Millisecond {
		t.Fatalf("expected default read timeout, got %v", c.readTimeout)
	}
}

func TestTrackingClient_KeepsNewestFrame(t *testing.T) {
	url := newBridge(t,
		`{"seq":1,"left":{"position":[0,0.2,0.1],"rotation":[0,0,0,1],"joints":[[0,0,0,1]]}}`,
		`not json`,
		`{"seq":2,"right":{"position":[0,0.2,0.1],"rotation":[0,0,0,0]}}`,
		`{"seq":3,"right":{"position":[0.1,0.2,0.1],"rotation":[0,0,0,2]}}`,
	)

	c, err := NewTrackingClient(url, 5000, quietLogger())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	defer func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("run: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Errorf("timeout waiting for client to stop")
		}
	}()

	waitUntil(t, 2*time.Second, func() bool {
		received, _, invalid := c.Stats()
		return received == 2 && invalid == 2
	}, "frames not consumed")

	f := c.Poll()
	if f == nil || f.Seq != 3 {
		t.Fatalf("expected newest frame seq 3, got %+v", f)
	}
	if f.Left != nil || f.Right == nil {
		t.Fatalf("expected right hand only, got %+v", f)
	}
	if f.Right.PalmRotation.Real != 1 {
		t.Fatalf("expected normalized palm rotation, got %v", f.Right.PalmRotation)
	}
	if c.Poll() != nil {
		t.Fatalf("expected Poll to clear the latest frame")
	}
	if _, dropped, _ := c.Stats(); dropped != 1 {
		t.Fatalf("expected 1 superseded frame, got %d", dropped)
	}
}

func TestTrackingClient_RunStopsWhileRetrying(t *testing.T) {
	// Nothing listens on this port; Run must give up promptly once canceled.
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	c, err := NewTrackingClient(url, 100, quietLogger())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := c.Run(ctx); err != nil {
		t.Fatalf("expected nil on cancellation, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("Run did not honor cancellation")
	}
}
