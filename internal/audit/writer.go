package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Writer is the sink for flushed audit events.
type Writer interface {
	Write(event Event) error
	Close() error
}

// fileWriter appends JSON lines to a rotated file.
type fileWriter struct {
	mu      sync.Mutex
	logger  *lumberjack.Logger
	encoder *json.Encoder
}

// NewFileWriter creates a writer with size/age based rotation.
func NewFileWriter(filename string, maxSizeMB, maxAgeDays, maxBackups int) (Writer, error) {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	logger := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    maxSizeMB,
		MaxAge:     maxAgeDays,
		MaxBackups: maxBackups,
		LocalTime:  true,
		Compress:   true,
	}

	return &fileWriter{
		logger:  logger,
		encoder: json.NewEncoder(logger),
	}, nil
}

func (w *fileWriter) Write(event Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.encoder.Encode(event)
}

func (w *fileWriter) Close() error {
	return w.logger.Close()
}

// zapWriter emits audit events through the service logger. Used when no
// dedicated audit file is configured.
type zapWriter struct {
	logger *zap.Logger
}

// NewZapWriter creates a writer over a zap logger.
func NewZapWriter(logger *zap.Logger) Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &zapWriter{logger: logger}
}

func (w *zapWriter) Write(event Event) error {
	w.logger.Info("audit",
		zap.String("event_id", event.EventID),
		zap.String("event_type", string(event.EventType)),
		zap.Time("timestamp", event.Timestamp),
		zap.String("username", event.Username),
		zap.String("client_ip", event.ClientIP),
		zap.String("correlation_id", event.CorrelationID),
		zap.Any("detail", event.Detail),
	)
	return nil
}

func (w *zapWriter) Close() error {
	return nil
}
