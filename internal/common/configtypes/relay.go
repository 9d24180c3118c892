package configtypes

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/edgecomet/eventrelay/pkg/types"
)

// Reject policies for bounded async queues
const (
	RejectPolicyAbort      = "abort"       // refuse the new event
	RejectPolicyDropOldest = "drop_oldest" // evict the oldest queued event
)

// Defaults applied by ApplyDefaults
const (
	DefaultWorkers          = 1
	DefaultGracePeriod      = time.Second
	DefaultHTTPTimeout      = 5 * time.Second
	DefaultRedisKey         = "eventrelay:events"
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "eventrelay"
)

// RelayConfig is the root configuration of the eventrelay binary
type RelayConfig struct {
	RelayID    string           `yaml:"relay_id"`   // Added to every log line
	Async      AsyncConfig      `yaml:"async"`      // Asynchronous delivery
	Transports TransportsConfig `yaml:"transports"` // Where events go
	Defaults   EventDefaults    `yaml:"defaults"`   // Values stamped on every event
	Logging    LogConfig        `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// AsyncConfig configures the asynchronous connection wrapping the transports
type AsyncConfig struct {
	Enabled        *bool          `yaml:"enabled,omitempty"`         // default: true
	Workers        int            `yaml:"workers"`                   // default: 1
	QueueSize      int            `yaml:"queue_size"`                // 0 = unbounded
	RejectPolicy   string         `yaml:"reject_policy"`             // abort | drop_oldest, only for bounded queues
	GracePeriod    types.Duration `yaml:"grace_period"`              // default: 1s
	PropagateClose *bool          `yaml:"propagate_close,omitempty"` // default: true
}

// IsEnabled reports whether events are delivered through the async connection
func (a AsyncConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// ShouldPropagateClose reports whether closing the async connection closes the transports
func (a AsyncConfig) ShouldPropagateClose() bool {
	return a.PropagateClose == nil || *a.PropagateClose
}

type TransportsConfig struct {
	HTTP  HTTPTransportConfig  `yaml:"http"`
	File  FileTransportConfig  `yaml:"file"`
	Redis RedisTransportConfig `yaml:"redis"`
}

// EnabledCount returns the number of enabled transports
func (t TransportsConfig) EnabledCount() int {
	n := 0
	for _, enabled := range []bool{t.HTTP.Enabled, t.File.Enabled, t.Redis.Enabled} {
		if enabled {
			n++
		}
	}
	return n
}

type HTTPTransportConfig struct {
	Enabled     bool              `yaml:"enabled"`
	URL         string            `yaml:"url"`
	Timeout     types.Duration    `yaml:"timeout"`
	Compression string            `yaml:"compression"` // none | gzip | snappy | lz4
	Headers     map[string]string `yaml:"headers,omitempty"`
}

type FileTransportConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Path     string         `yaml:"path"`
	Rotation RotationConfig `yaml:"rotation"`
}

type RedisTransportConfig struct {
	Enabled     bool   `yaml:"enabled"`
	RedisConfig `yaml:",inline"`
	Key         string `yaml:"key"`
}

// EventDefaults are stamped on events that do not set the field themselves
type EventDefaults struct {
	Logger      string            `yaml:"logger"`
	Environment string            `yaml:"environment"`
	Release     string            `yaml:"release"`
	ServerName  string            `yaml:"server_name"`
	Tags        map[string]string `yaml:"tags,omitempty"`
}

// Validate validates relay configuration. Zero values that have defaults are accepted.
func (c *RelayConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}

	if c.Async.Workers < 0 {
		return fmt.Errorf("async.workers must be >= 0, got %d", c.Async.Workers)
	}
	if c.Async.QueueSize < 0 {
		return fmt.Errorf("async.queue_size must be >= 0, got %d", c.Async.QueueSize)
	}
	switch c.Async.RejectPolicy {
	case "", RejectPolicyAbort, RejectPolicyDropOldest:
	default:
		return fmt.Errorf("async.reject_policy must be 'abort' or 'drop_oldest', got '%s'", c.Async.RejectPolicy)
	}
	if time.Duration(c.Async.GracePeriod) < 0 {
		return fmt.Errorf("async.grace_period must be >= 0, got %v", c.Async.GracePeriod)
	}

	if c.Transports.EnabledCount() == 0 {
		return fmt.Errorf("at least one transport (http, file, redis) must be enabled")
	}

	if t := c.Transports.HTTP; t.Enabled {
		if !strings.HasPrefix(t.URL, "http://") && !strings.HasPrefix(t.URL, "https://") {
			return fmt.Errorf("transports.http.url must be an http(s) URL, got '%s'", t.URL)
		}
		if time.Duration(t.Timeout) < 0 {
			return fmt.Errorf("transports.http.timeout must be >= 0, got %v", t.Timeout)
		}
		if !types.IsValidCompression(t.Compression) {
			return fmt.Errorf("transports.http.compression must be one of: none, gzip, snappy, lz4, got '%s'", t.Compression)
		}
	}

	if t := c.Transports.File; t.Enabled {
		if t.Path == "" {
			return fmt.Errorf("transports.file.path must be specified when enabled")
		}
		if err := validateRotation("transports.file.rotation", t.Rotation); err != nil {
			return err
		}
	}

	if t := c.Transports.Redis; t.Enabled {
		if t.Addr == "" {
			return fmt.Errorf("transports.redis.addr must be specified when enabled")
		}
		if t.DB < 0 {
			return fmt.Errorf("transports.redis.db must be >= 0, got %d", t.DB)
		}
	}

	if c.Metrics.Enabled {
		if err := validateListen(c.Metrics.Listen); err != nil {
			return fmt.Errorf("invalid metrics.listen: %w", err)
		}
	}

	return c.Logging.Validate()
}

// Validate validates logging configuration
func (l LogConfig) Validate() error {
	validLevels := map[string]bool{
		LogLevelDebug: true,
		LogLevelInfo:  true,
		LogLevelWarn:  true,
		LogLevelError: true,
	}
	if l.Level != "" && !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error, got '%s'", l.Level)
	}

	if l.Console.Enabled && l.Console.Format != "" &&
		l.Console.Format != LogFormatJSON && l.Console.Format != LogFormatConsole {
		return fmt.Errorf("logging.console.format must be 'json' or 'console', got '%s'", l.Console.Format)
	}

	if l.File.Enabled {
		if l.File.Path == "" {
			return fmt.Errorf("logging.file.path must be specified when file logging is enabled")
		}
		if l.File.Format != "" && l.File.Format != LogFormatJSON && l.File.Format != LogFormatText {
			return fmt.Errorf("logging.file.format must be 'json' or 'text', got '%s'", l.File.Format)
		}
		return validateRotation("logging.file.rotation", l.File.Rotation)
	}
	return nil
}

// ApplyDefaults fills every unset field that has a default
func (c *RelayConfig) ApplyDefaults() {
	if c.Async.Workers == 0 {
		c.Async.Workers = DefaultWorkers
	}
	if c.Async.RejectPolicy == "" {
		c.Async.RejectPolicy = RejectPolicyAbort
	}
	if c.Async.GracePeriod == 0 {
		c.Async.GracePeriod = types.Duration(DefaultGracePeriod)
	}

	if c.Transports.HTTP.Timeout == 0 {
		c.Transports.HTTP.Timeout = types.Duration(DefaultHTTPTimeout)
	}
	if c.Transports.HTTP.Compression == "" {
		c.Transports.HTTP.Compression = types.CompressionNone
	}
	if c.Transports.Redis.Key == "" {
		c.Transports.Redis.Key = DefaultRedisKey
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultMetricsNamespace
	}

	// If both outputs are disabled, log to the console
	if !c.Logging.Console.Enabled && !c.Logging.File.Enabled {
		c.Logging.Console.Enabled = true
	}
	if c.Logging.Console.Format == "" {
		c.Logging.Console.Format = LogFormatConsole
	}
	if c.Logging.File.Format == "" {
		c.Logging.File.Format = LogFormatText
	}
}

func validateRotation(prefix string, r RotationConfig) error {
	if r.MaxSize < 0 {
		return fmt.Errorf("%s.max_size must be >= 0, got %d", prefix, r.MaxSize)
	}
	if r.MaxAge < 0 {
		return fmt.Errorf("%s.max_age must be >= 0, got %d", prefix, r.MaxAge)
	}
	if r.MaxBackups < 0 {
		return fmt.Errorf("%s.max_backups must be >= 0, got %d", prefix, r.MaxBackups)
	}
	return nil
}

// validateListen accepts "host:port" or ":port" with a port in 1..65535
func validateListen(listen string) error {
	if listen == "" {
		return fmt.Errorf("listen address is empty")
	}
	_, portStr, err := net.SplitHostPort(listen)
	if err != nil {
		return fmt.Errorf("invalid listen address format: %s: %w", listen, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port in listen address: %s", portStr)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}
