package event

import (
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// Builder assembles an Event. A builder is single-use: Build may be called once.
// Builders are not safe for concurrent use.
type Builder struct {
	event Event
	built bool
}

// NewBuilder creates a builder for an error-level event
func NewBuilder() *Builder {
	return &Builder{
		event: Event{
			Level:    LevelError,
			Platform: DefaultPlatform,
			Tags:     make(map[string]string),
			Extra:    make(map[string]any),
		},
	}
}

func (b *Builder) WithMessage(message string) *Builder {
	b.event.Message = message
	return b
}

func (b *Builder) WithLevel(level Level) *Builder {
	b.event.Level = level
	return b
}

func (b *Builder) WithLogger(logger string) *Builder {
	b.event.Logger = logger
	return b
}

func (b *Builder) WithCulprit(culprit string) *Builder {
	b.event.Culprit = culprit
	return b
}

func (b *Builder) WithTimestamp(ts time.Time) *Builder {
	b.event.Timestamp = ts
	return b
}

func (b *Builder) WithPlatform(platform string) *Builder {
	b.event.Platform = platform
	return b
}

func (b *Builder) WithServerName(name string) *Builder {
	b.event.ServerName = name
	return b
}

func (b *Builder) WithEnvironment(env string) *Builder {
	b.event.Environment = env
	return b
}

func (b *Builder) WithRelease(release string) *Builder {
	b.event.Release = release
	return b
}

func (b *Builder) WithTag(key, value string) *Builder {
	b.event.Tags[key] = value
	return b
}

func (b *Builder) WithExtra(key string, value any) *Builder {
	b.event.Extra[key] = value
	return b
}

// WithChecksum sets an explicit checksum used by the server to group events
func (b *Builder) WithChecksum(checksum string) *Builder {
	b.event.Checksum = checksum
	return b
}

// WithChecksumFor derives the checksum from content
func (b *Builder) WithChecksumFor(content string) *Builder {
	b.event.Checksum = Checksum(content)
	return b
}

// Peek exposes the event under construction to builder helpers.
// The returned pointer is only valid until Build.
func (b *Builder) Peek() *Event {
	return &b.event
}

// Build finalizes the event. It assigns an ID, defaults the timestamp and server
// name, and copies tags and extras so the event shares nothing with the builder.
// Build panics when called twice.
func (b *Builder) Build() *Event {
	if b.built {
		panic("event: Build called twice on the same builder")
	}
	b.built = true

	ev := b.event
	ev.ID = NewID()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	} else {
		ev.Timestamp = ev.Timestamp.UTC()
	}
	if ev.ServerName == "" {
		ev.ServerName = LocalHost().Hostname
	}
	if ev.Platform == "" {
		ev.Platform = DefaultPlatform
	}

	ev.Tags = maps.Clone(b.event.Tags)
	ev.Extra = maps.Clone(b.event.Extra)
	return &ev
}

// NewID returns a 32 character lowercase hex event identifier
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Checksum returns the hex xxhash64 of content
func Checksum(content string) string {
	return strconv.FormatUint(xxhash.Sum64String(content), 16)
}
