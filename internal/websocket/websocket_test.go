package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// createTestWSServer serves handler on a ServerConn per request.
func createTestWSServer(t *testing.T, handler func(*ServerConn)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrade(w, r, ServerConfig{})
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestServerConnSendsTextMessages(t *testing.T) {
	server := createTestWSServer(t, func(conn *ServerConn) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		for _, msg := range []string{`{"n":1}`, `{"n":2}`} {
			if err := conn.Send(ctx, []byte(msg)); err != nil {
				return
			}
		}
		_ = conn.Wait()
	})

	client := NewClient(Config{URL: wsURL(server)})
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	for _, want := range []string{`{"n":1}`, `{"n":2}`} {
		got, err := client.ReceiveMessage(context.Background())
		if err != nil {
			t.Fatalf("ReceiveMessage failed: %v", err)
		}
		if string(got) != want {
			t.Errorf("message = %s, want %s", got, want)
		}
	}

	m := client.Metrics()
	if m.Received != 2 {
		t.Errorf("Received = %d, want 2", m.Received)
	}
	if m.ReceivedBytes != int64(len(`{"n":1}`)*2) {
		t.Errorf("ReceivedBytes = %d", m.ReceivedBytes)
	}
	if m.Connected <= 0 {
		t.Error("Connected should be positive while connected")
	}
}

func TestServerConnTransport(t *testing.T) {
	var c ServerConn
	if c.Transport() != "websocket" {
		t.Errorf("Transport() = %q, want websocket", c.Transport())
	}
}

func TestServerConnWaitReturnsWhenClientLeaves(t *testing.T) {
	waitErr := make(chan error, 1)
	server := createTestWSServer(t, func(conn *ServerConn) {
		waitErr <- conn.Wait()
	})

	client := NewClient(Config{URL: wsURL(server)})
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case err := <-waitErr:
		if err != nil {
			t.Errorf("Wait() = %v, want nil after normal closure", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after client closed")
	}
}

func TestServerConnSendHonoursCancelledContext(t *testing.T) {
	sendErr := make(chan error, 1)
	server := createTestWSServer(t, func(conn *ServerConn) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		sendErr <- conn.Send(ctx, []byte("late"))
	})

	client := NewClient(Config{URL: wsURL(server)})
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	select {
	case err := <-sendErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Send() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not run")
	}
}

func TestClientSeesNormalClosureAsStreamClosed(t *testing.T) {
	server := createTestWSServer(t, func(conn *ServerConn) {
		_ = conn.Close()
	})

	client := NewClient(Config{URL: wsURL(server)})
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	_, err := client.ReceiveMessage(context.Background())
	if !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("ReceiveMessage() = %v, want ErrStreamClosed", err)
	}
}

func TestWebSocketConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClient(Config{URL: wsURL(server)})
	err := client.Connect(context.Background())
	if err == nil {
		t.Fatal("Connect should fail for a non-upgrade response")
	}
	if !strings.Contains(err.Error(), "403") {
		t.Errorf("error = %v, want it to mention status 403", err)
	}
	if client.Metrics().Errors != 1 {
		t.Errorf("Errors = %d, want 1", client.Metrics().Errors)
	}
}

func TestWebSocketReceiveWithoutConnect(t *testing.T) {
	client := NewClient(Config{URL: "ws://localhost:1"})
	if _, err := client.ReceiveMessage(context.Background()); err == nil {
		t.Fatal("ReceiveMessage without Connect should fail")
	}
}

func TestWebSocketCloseWithoutConnect(t *testing.T) {
	client := NewClient(Config{URL: "ws://localhost:1"})
	if err := client.Close(); err != nil {
		t.Errorf("Close without Connect = %v, want nil", err)
	}
}

func TestWebSocketMultipleConnectError(t *testing.T) {
	server := createTestWSServer(t, func(conn *ServerConn) { _ = conn.Wait() })

	client := NewClient(Config{URL: wsURL(server)})
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("first Connect failed: %v", err)
	}
	defer client.Close()
	if err := client.Connect(context.Background()); err == nil {
		t.Fatal("second Connect should fail")
	}
}

func TestWebSocketContextCancellation(t *testing.T) {
	server := createTestWSServer(t, func(conn *ServerConn) { _ = conn.Wait() })

	client := NewClient(Config{URL: wsURL(server)})
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.ReceiveMessage(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("ReceiveMessage() = %v, want context.DeadlineExceeded", err)
	}
}

func TestWebSocketCustomHeaders(t *testing.T) {
	got := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get("Authorization")
		conn, err := Upgrade(w, r, ServerConfig{})
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.Wait()
	}))
	defer server.Close()

	headers := http.Header{}
	headers.Set("Authorization", "Bearer token")
	client := NewClient(Config{URL: wsURL(server), Headers: headers})
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	if h := <-got; h != "Bearer token" {
		t.Errorf("Authorization = %q, want Bearer token", h)
	}
}

func TestWebSocketNewClientDefaults(t *testing.T) {
	client := NewClient(Config{URL: "ws://localhost:1"})
	if client.dialer.HandshakeTimeout != 30*time.Second {
		t.Errorf("HandshakeTimeout = %s, want 30s", client.dialer.HandshakeTimeout)
	}
	if client.maxSize != 1024*1024 {
		t.Errorf("maxSize = %d, want 1MiB", client.maxSize)
	}
}

func TestUpgradeRejectsPlainRequest(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	if _, err := Upgrade(rec, req, ServerConfig{}); err == nil {
		t.Fatal("Upgrade of a non-websocket request should fail")
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
