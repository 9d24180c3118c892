package types

// Body compression algorithms accepted by transports
const (
	CompressionNone   = "none"
	CompressionGzip   = "gzip"
	CompressionSnappy = "snappy"
	CompressionLZ4    = "lz4"
)

// CompressionMinSize is the payload size below which bodies are sent as-is
const CompressionMinSize = 1024

// IsValidCompression reports whether algorithm names a supported compression.
// Empty string means none.
func IsValidCompression(algorithm string) bool {
	switch algorithm {
	case "", CompressionNone, CompressionGzip, CompressionSnappy, CompressionLZ4:
		return true
	}
	return false
}
