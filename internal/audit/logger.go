package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/authgate/auth-core/internal/clock"
)

// Publisher is the port through which use cases emit audit events.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Config tunes the async logger.
type Config struct {
	BufferSize    int
	FlushInterval time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize:    1024,
		FlushInterval: time.Second,
	}
}

// Logger buffers events in a ring and flushes them to a Writer from a
// background goroutine. Publish never blocks; when the ring is full the
// oldest event is dropped and counted.
type Logger struct {
	writer Writer
	clock  clock.Clock

	mu     sync.Mutex
	buffer []Event
	size   int
	head   int
	tail   int

	dropped atomic.Uint64

	flushCh chan struct{}
	doneCh  chan struct{}
	wg      sync.WaitGroup

	interval time.Duration
}

// NewLogger creates a logger and starts its flush goroutine.
func NewLogger(writer Writer, cfg Config, c clock.Clock) *Logger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	if c == nil {
		c = clock.System()
	}

	l := &Logger{
		writer:   writer,
		clock:    c,
		buffer:   make([]Event, cfg.BufferSize+1),
		size:     cfg.BufferSize + 1,
		flushCh:  make(chan struct{}, 1),
		doneCh:   make(chan struct{}),
		interval: cfg.FlushInterval,
	}

	l.wg.Add(1)
	go l.run()
	return l
}

// Publish enqueues an event, filling in id and timestamp when absent.
func (l *Logger) Publish(ctx context.Context, event Event) {
	if event.EventID == "" {
		event.EventID = generateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.clock.Now()
	}

	l.mu.Lock()
	l.buffer[l.tail] = event
	l.tail = (l.tail + 1) % l.size
	if l.tail == l.head {
		l.head = (l.head + 1) % l.size
		l.dropped.Add(1)
	}
	l.mu.Unlock()

	select {
	case l.flushCh <- struct{}{}:
	default:
	}
}

// Dropped reports how many events were lost to buffer overflow.
func (l *Logger) Dropped() uint64 {
	return l.dropped.Load()
}

func (l *Logger) run() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = l.Flush()
		case <-l.flushCh:
			_ = l.Flush()
		case <-l.doneCh:
			_ = l.Flush()
			return
		}
	}
}

// Flush writes all buffered events.
func (l *Logger) Flush() error {
	l.mu.Lock()
	var events []Event
	for i := l.head; i != l.tail; i = (i + 1) % l.size {
		events = append(events, l.buffer[i])
	}
	l.head = l.tail
	l.mu.Unlock()

	var lastErr error
	for _, e := range events {
		if err := l.writer.Write(e); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Close stops the flush goroutine, drains the buffer, and closes the
// writer.
func (l *Logger) Close() error {
	close(l.doneCh)
	l.wg.Wait()
	return l.writer.Close()
}
