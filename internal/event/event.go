package event

import (
	"fmt"
	"strings"
	"time"
)

// Level is the severity of an event
type Level string

// Level constants
const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelFatal   Level = "fatal"
)

// DefaultPlatform is reported when the builder does not set one
const DefaultPlatform = "go"

// Event is a finalized diagnostic record. Events are created by Builder.Build and
// must not be modified afterwards: transports read them concurrently.
type Event struct {
	ID          string            `json:"event_id"`
	Message     string            `json:"message"`
	Level       Level             `json:"level"`
	Logger      string            `json:"logger,omitempty"`
	Culprit     string            `json:"culprit,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Platform    string            `json:"platform"`
	ServerName  string            `json:"server_name,omitempty"`
	Environment string            `json:"environment,omitempty"`
	Release     string            `json:"release,omitempty"`
	Checksum    string            `json:"checksum,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	Extra       map[string]any    `json:"extra,omitempty"`
}

// ParseLevel converts a level name to a Level. "warn" is accepted for warning.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	case "fatal":
		return LevelFatal, nil
	default:
		return "", fmt.Errorf("unknown event level %q", s)
	}
}
