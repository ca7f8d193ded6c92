package sse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// createTestSSEServer serves handler on a ServerConn per request.
func createTestSSEServer(t *testing.T, handler func(*ServerConn, *http.Request)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := NewServerConn(w)
		if err != nil {
			return
		}
		handler(conn, r)
	}))
	t.Cleanup(server.Close)
	return server
}

func sendAll(conn *ServerConn, msgs ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, m := range msgs {
		if err := conn.Send(ctx, []byte(m)); err != nil {
			return err
		}
	}
	return nil
}

func TestServerConnStreamsOutcomeEvents(t *testing.T) {
	server := createTestSSEServer(t, func(conn *ServerConn, r *http.Request) {
		_ = sendAll(conn, `{"success":true}`, `{"success":false}`)
	})

	client := NewClient(Config{URL: server.URL})
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	for i, want := range []string{`{"success":true}`, `{"success":false}`} {
		ev, err := client.ReadEvent(context.Background())
		if err != nil {
			t.Fatalf("ReadEvent failed: %v", err)
		}
		if ev.Event != EventOutcome {
			t.Errorf("Event = %q, want %q", ev.Event, EventOutcome)
		}
		if ev.ID != fmt.Sprint(i+1) {
			t.Errorf("ID = %q, want %d", ev.ID, i+1)
		}
		if ev.Data != want {
			t.Errorf("Data = %q, want %q", ev.Data, want)
		}
	}

	if _, err := client.ReadEvent(context.Background()); !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("ReadEvent after handler return = %v, want ErrStreamClosed", err)
	}

	if m := client.Metrics(); m.Received != 2 {
		t.Errorf("Received = %d, want 2", m.Received)
	}
}

func TestServerConnHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	conn, err := NewServerConn(rec)
	if err != nil {
		t.Fatalf("NewServerConn failed: %v", err)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
	}
	if conn.Transport() != "sse" {
		t.Errorf("Transport() = %q, want sse", conn.Transport())
	}
	if err := sendAll(conn, `{}`); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if got := rec.Body.String(); got != "id: 1\nevent: outcome\ndata: {}\n\n" {
		t.Errorf("body = %q", got)
	}
}

func TestServerConnSendAfterClose(t *testing.T) {
	conn, err := NewServerConn(httptest.NewRecorder())
	if err != nil {
		t.Fatalf("NewServerConn failed: %v", err)
	}
	_ = conn.Close()
	_ = conn.Close()
	select {
	case <-conn.Closed():
	default:
		t.Fatal("Closed() not closed after Close")
	}
	if err := sendAll(conn, "x"); err == nil {
		t.Fatal("Send after Close should fail")
	}
}

// plainWriter hides the Flusher of the underlying recorder.
type plainWriter struct{ header http.Header }

func (p *plainWriter) Header() http.Header         { return p.header }
func (p *plainWriter) Write(b []byte) (int, error) { return len(b), nil }
func (p *plainWriter) WriteHeader(int)             {}

func TestNewServerConnRequiresFlusher(t *testing.T) {
	if _, err := NewServerConn(&plainWriter{header: http.Header{}}); err == nil {
		t.Fatal("NewServerConn should fail without flush support")
	}
}

func TestSSEMultilineDataAndComments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "event: message\ndata: line1\ndata:line2\nbogus line\n\n")
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL})
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	ev, err := client.ReadEvent(context.Background())
	if err != nil {
		t.Fatalf("ReadEvent failed: %v", err)
	}
	if ev.Data != "line1\nline2" {
		t.Errorf("Data = %q, want line1\\nline2", ev.Data)
	}
}

func TestSSENon200StatusCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL})
	err := client.Connect(context.Background())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Connect() = %v, want *StatusError", err)
	}
	if statusErr.Code != http.StatusServiceUnavailable {
		t.Errorf("Code = %d, want 503", statusErr.Code)
	}
	if client.Metrics().Errors != 1 {
		t.Errorf("Errors = %d, want 1", client.Metrics().Errors)
	}
}

func TestSSEReadWithoutConnect(t *testing.T) {
	client := NewClient(Config{URL: "http://localhost:1"})
	if _, err := client.ReadEvent(context.Background()); err == nil {
		t.Fatal("ReadEvent without Connect should fail")
	}
}

func TestSSECloseWithoutConnect(t *testing.T) {
	client := NewClient(Config{URL: "http://localhost:1"})
	if err := client.Close(); err != nil {
		t.Errorf("Close without Connect = %v, want nil", err)
	}
}

func TestSSEContextCancellation(t *testing.T) {
	release := make(chan struct{})
	server := createTestSSEServer(t, func(conn *ServerConn, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	client := NewClient(Config{URL: server.URL})
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := client.ReadEvent(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("ReadEvent() = %v, want context.DeadlineExceeded", err)
	}
}

func TestSSEMultipleConnectError(t *testing.T) {
	server := createTestSSEServer(t, func(conn *ServerConn, r *http.Request) {
		<-r.Context().Done()
	})

	client := NewClient(Config{URL: server.URL})
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()
	if err := client.Connect(context.Background()); err == nil || !strings.Contains(err.Error(), "already connected") {
		t.Fatalf("second Connect = %v, want already connected", err)
	}
}

func TestSSECustomHeaders(t *testing.T) {
	got := make(chan http.Header, 1)
	server := createTestSSEServer(t, func(conn *ServerConn, r *http.Request) {
		got <- r.Header.Clone()
	})

	headers := http.Header{}
	headers.Set("X-Watcher", "cli")
	client := NewClient(Config{URL: server.URL, Headers: headers})
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	h := <-got
	if h.Get("X-Watcher") != "cli" {
		t.Errorf("X-Watcher = %q, want cli", h.Get("X-Watcher"))
	}
	if h.Get("Accept") != "text/event-stream" {
		t.Errorf("Accept = %q, want text/event-stream", h.Get("Accept"))
	}
}
