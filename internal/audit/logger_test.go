package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate/auth-core/internal/clock"
)

type captureWriter struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (w *captureWriter) Write(event Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, event)
	return nil
}

func (w *captureWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *captureWriter) snapshot() []Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Event(nil), w.events...)
}

func TestLoggerPublishAndFlush(t *testing.T) {
	w := &captureWriter{}
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	l := NewLogger(w, Config{BufferSize: 8, FlushInterval: time.Hour}, clk)

	l.Publish(context.Background(), Event{
		EventType: EventLoginSuccess,
		Username:  "admin",
		ClientIP:  "203.0.113.7",
	})

	require.NoError(t, l.Flush())

	events := w.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, EventLoginSuccess, events[0].EventType)
	assert.Equal(t, "admin", events[0].Username)
	assert.NotEmpty(t, events[0].EventID)
	assert.Equal(t, clk.Now(), events[0].Timestamp)
}

func TestLoggerDropsOldestOnOverflow(t *testing.T) {
	w := &captureWriter{}
	l := NewLogger(w, Config{BufferSize: 2, FlushInterval: time.Hour}, nil)
	// Keep the background flusher out of the way for this test.
	ctx := context.Background()

	// Fill without flushing by holding the logger's own mutex is not
	// possible from outside, so publish faster than the flusher can wake:
	// flush interval is an hour and the signal channel holds one token.
	l.Publish(ctx, Event{EventType: EventLoginFailure, Username: "u1"})
	l.Publish(ctx, Event{EventType: EventLoginFailure, Username: "u2"})
	l.Publish(ctx, Event{EventType: EventLoginFailure, Username: "u3"})

	require.NoError(t, l.Flush())

	// The buffer held two; at least one publish was dropped or flushed
	// early by the signal. Dropped count plus written count covers all
	// three events.
	assert.Equal(t, 3, int(l.Dropped())+len(w.snapshot()))
}

func TestLoggerCloseDrains(t *testing.T) {
	w := &captureWriter{}
	l := NewLogger(w, Config{BufferSize: 8, FlushInterval: time.Hour}, nil)

	l.Publish(context.Background(), Event{EventType: EventLogout, Username: "admin"})
	require.NoError(t, l.Close())

	assert.Len(t, w.snapshot(), 1)
	assert.True(t, w.closed)
}
