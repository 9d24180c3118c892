package connection

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/edgecomet/eventrelay/internal/common/configtypes"
	"github.com/edgecomet/eventrelay/internal/event"
)

const (
	DefaultFileMaxSize    = 100 // MB
	DefaultFileMaxAge     = 30  // days
	DefaultFileMaxBackups = 10  // files

	transportFile = "file"
)

// FileConnection appends events as JSON lines to a rotating file
type FileConnection struct {
	mu     sync.Mutex
	writer *lumberjack.Logger
	logger *zap.Logger
}

// NewFileConnection creates the parent directory and opens the rotating writer lazily
func NewFileConnection(cfg configtypes.FileTransportConfig, logger *zap.Logger) (*FileConnection, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("file transport path is required")
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create event directory %s: %w", dir, err)
	}

	rotation := cfg.Rotation
	if rotation.MaxSize == 0 {
		rotation.MaxSize = DefaultFileMaxSize
	}
	if rotation.MaxAge == 0 {
		rotation.MaxAge = DefaultFileMaxAge
	}
	if rotation.MaxBackups == 0 {
		rotation.MaxBackups = DefaultFileMaxBackups
	}

	return &FileConnection{
		writer: &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    rotation.MaxSize,
			MaxAge:     rotation.MaxAge,
			MaxBackups: rotation.MaxBackups,
			Compress:   rotation.Compress,
		},
		logger: logger,
	}, nil
}

// Send writes one JSON line
func (f *FileConnection) Send(ev *event.Event) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return &DeliveryError{EventID: ev.ID, Transport: transportFile, Err: err}
	}
	line = append(line, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.writer.Write(line); err != nil {
		return &DeliveryError{EventID: ev.ID, Transport: transportFile, Err: err}
	}
	return nil
}

// Close closes the underlying file handle
func (f *FileConnection) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.logger.Debug("Closing file transport", zap.String("path", f.writer.Filename))
	return f.writer.Close()
}
