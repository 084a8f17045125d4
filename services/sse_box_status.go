package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"box-mining-service/logger"

	"go.uber.org/zap"
)

// StreamOptions bounds a status stream.
type StreamOptions struct {
	Interval    time.Duration
	MaxDuration time.Duration
}

var DefaultStreamOptions = StreamOptions{Interval: 2 * time.Second, MaxDuration: 10 * time.Minute}

// WriteStatusStream writes SSE "status" events to w whenever the caller's status changes, and a
// keepalive comment on ticks where it did not. It returns once a flush fails, ctx ends or MaxDuration elapses.
func (s *BoxService) WriteStatusStream(ctx context.Context, w *bufio.Writer, username string, opts StreamOptions) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultStreamOptions.Interval
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = DefaultStreamOptions.MaxDuration
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()
	deadline := time.NewTimer(opts.MaxDuration)
	defer deadline.Stop()

	// keepalive reports false once the client is gone
	keepalive := func() bool {
		w.WriteString(":\n\n")
		return w.Flush() == nil
	}

	// Initial keepalive (comment event)
	if !keepalive() {
		return
	}

	var last []byte
	push := func() bool {
		status, err := s.StatusFor(ctx, username)
		if err != nil {
			logger.Warn("status stream query failed", zap.String("username", username), zap.Error(err))
			return keepalive()
		}
		payload, err := json.Marshal(status)
		if err != nil {
			logger.Error("status stream encode failed", zap.Error(err))
			return keepalive()
		}
		if bytes.Equal(payload, last) {
			return keepalive()
		}
		last = payload
		fmt.Fprintf(w, "event: status\ndata: %s\n\n", payload)
		// client disconnected when the flush fails
		return w.Flush() == nil
	}

	if !push() {
		return
	}
	for {
		select {
		case <-ticker.C:
			if !push() {
				return
			}
		case <-deadline.C:
			return
		case <-ctx.Done():
			return
		}
	}
}
