package event

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var idPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

func TestBuilder_Defaults(t *testing.T) {
	before := time.Now().UTC()
	ev := NewBuilder().WithMessage("disk full").Build()

	assert.Regexp(t, idPattern, ev.ID)
	assert.Equal(t, "disk full", ev.Message)
	assert.Equal(t, LevelError, ev.Level)
	assert.Equal(t, DefaultPlatform, ev.Platform)
	assert.Equal(t, LocalHost().Hostname, ev.ServerName)
	assert.False(t, ev.Timestamp.Before(before))
	assert.Equal(t, time.UTC, ev.Timestamp.Location())
}

func TestBuilder_AllFields(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))

	ev := NewBuilder().
		WithMessage("payment declined").
		WithLevel(LevelWarning).
		WithLogger("billing").
		WithCulprit("billing.Charge").
		WithTimestamp(ts).
		WithPlatform("go1.24").
		WithServerName("api-1").
		WithEnvironment("production").
		WithRelease("v1.2.3").
		WithTag("region", "eu").
		WithExtra("amount", 42).
		WithChecksum("abc").
		Build()

	assert.Equal(t, LevelWarning, ev.Level)
	assert.Equal(t, "billing", ev.Logger)
	assert.Equal(t, "billing.Charge", ev.Culprit)
	assert.True(t, ev.Timestamp.Equal(ts))
	assert.Equal(t, time.UTC, ev.Timestamp.Location())
	assert.Equal(t, "go1.24", ev.Platform)
	assert.Equal(t, "api-1", ev.ServerName)
	assert.Equal(t, "production", ev.Environment)
	assert.Equal(t, "v1.2.3", ev.Release)
	assert.Equal(t, map[string]string{"region": "eu"}, ev.Tags)
	assert.Equal(t, map[string]any{"amount": 42}, ev.Extra)
	assert.Equal(t, "abc", ev.Checksum)
}

func TestBuilder_EventDoesNotShareMaps(t *testing.T) {
	b := NewBuilder().WithTag("a", "1").WithExtra("x", 1)
	ev := b.Build()

	b.Peek().Tags["a"] = "changed"
	b.Peek().Extra["y"] = 2

	assert.Equal(t, "1", ev.Tags["a"])
	assert.NotContains(t, ev.Extra, "y")
}

func TestBuilder_BuildTwicePanics(t *testing.T) {
	b := NewBuilder()
	b.Build()
	assert.Panics(t, func() { b.Build() })
}

func TestBuilder_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewBuilder().Build().ID
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestChecksum(t *testing.T) {
	ev := NewBuilder().WithChecksumFor("stack trace").Build()

	assert.Equal(t, Checksum("stack trace"), ev.Checksum)
	assert.NotEqual(t, Checksum("stack trace"), Checksum("other trace"))
	assert.Regexp(t, `^[0-9a-f]+$`, ev.Checksum)
}

func TestEvent_JSON(t *testing.T) {
	ev := NewBuilder().WithMessage("hello").WithTag("k", "v").Build()

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ev.ID, decoded["event_id"])
	assert.Equal(t, "hello", decoded["message"])
	assert.Equal(t, "error", decoded["level"])
	assert.NotContains(t, decoded, "extra")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		wantErr  bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"warn", LevelWarning, false},
		{"warning", LevelWarning, false},
		{" error ", LevelError, false},
		{"fatal", LevelFatal, false},
		{"verbose", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestLocalHost(t *testing.T) {
	info := LocalHost()
	assert.NotEmpty(t, info.Hostname)
	assert.Equal(t, info, LocalHost())
}
