package services

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestWriteStatusStreamEmitsOnChangeOnly(t *testing.T) {
	env := newTestEnv(t, FixedRandom(0))
	seedUser(t, env.db, "alice", 0)

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	env.boxes.WriteStatusStream(context.Background(), w, "alice", StreamOptions{
		Interval:    5 * time.Millisecond,
		MaxDuration: 60 * time.Millisecond,
	})

	out := buf.String()
	if !strings.HasPrefix(out, ":\n\n") {
		t.Fatalf("expected keepalive first, got %q", out)
	}
	if n := strings.Count(out, "event: status"); n != 1 {
		t.Fatalf("expected one status event for an unchanged status, got %d in %q", n, out)
	}
	if !strings.Contains(out, `data: {"hasBox":false}`) {
		t.Fatalf("unexpected payload %q", out)
	}
}

func TestWriteStatusStreamStopsOnCancel(t *testing.T) {
	env := newTestEnv(t, FixedRandom(0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		env.boxes.WriteStatusStream(ctx, bufio.NewWriter(&bytes.Buffer{}), "alice", StreamOptions{
			Interval:    time.Hour,
			MaxDuration: time.Hour,
		})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after cancellation")
	}
}

// closingWriter accepts a fixed number of writes, then behaves like a closed connection.
type closingWriter struct {
	remaining int
}

func (w *closingWriter) Write(p []byte) (int, error) {
	if w.remaining <= 0 {
		return 0, errors.New("connection closed")
	}
	w.remaining--
	return len(p), nil
}

func TestWriteStatusStreamStopsWhenClientLeaves(t *testing.T) {
	env := newTestEnv(t, FixedRandom(0))
	seedUser(t, env.db, "alice", 0)

	// the client takes the opening keepalive and first status event, then disconnects
	conn := &closingWriter{remaining: 2}
	done := make(chan struct{})
	start := time.Now()
	go func() {
		env.boxes.WriteStatusStream(context.Background(), bufio.NewWriter(conn), "alice", StreamOptions{
			Interval:    10 * time.Millisecond,
			MaxDuration: 10 * time.Second,
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream kept polling after the client left")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("stream noticed the disconnect only after %s", elapsed)
	}
}
