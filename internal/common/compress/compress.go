package compress

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/snappy"
	"github.com/pierrec/lz4/v4"

	"github.com/edgecomet/eventrelay/pkg/types"
)

// ErrDecompression is returned when a body cannot be decoded.
// Use errors.Is(err, ErrDecompression) to check.
var ErrDecompression = errors.New("decompression failed")

// Content-Encoding values
const (
	EncodingGzip   = "gzip"
	EncodingSnappy = "snappy"
	EncodingLZ4    = "lz4"
)

// Compress compresses body with algorithm and returns the Content-Encoding to
// announce. Small bodies and "none" are returned unchanged with an empty encoding.
func Compress(body []byte, algorithm string) ([]byte, string, error) {
	if len(body) < types.CompressionMinSize {
		return body, "", nil
	}

	switch algorithm {
	case types.CompressionGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(body); err != nil {
			w.Close()
			return nil, "", fmt.Errorf("gzip compression failed: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, "", fmt.Errorf("gzip compression close failed: %w", err)
		}
		return buf.Bytes(), EncodingGzip, nil

	case types.CompressionSnappy:
		return snappy.Encode(nil, body), EncodingSnappy, nil

	case types.CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(body); err != nil {
			w.Close()
			return nil, "", fmt.Errorf("lz4 compression failed: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, "", fmt.Errorf("lz4 compression close failed: %w", err)
		}
		return buf.Bytes(), EncodingLZ4, nil

	default:
		return body, "", nil
	}
}

// Decompress decodes body according to its Content-Encoding.
// Unknown or empty encodings return the body unchanged.
func Decompress(body []byte, encoding string) ([]byte, error) {
	switch encoding {
	case EncodingGzip:
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %v", ErrDecompression, err)
		}
		defer r.Close()
		decoded, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %v", ErrDecompression, err)
		}
		return decoded, nil

	case EncodingSnappy:
		decoded, err := snappy.Decode(nil, body)
		if err != nil {
			return nil, fmt.Errorf("%w: snappy: %v", ErrDecompression, err)
		}
		return decoded, nil

	case EncodingLZ4:
		decoded, err := io.ReadAll(lz4.NewReader(bytes.NewReader(body)))
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %v", ErrDecompression, err)
		}
		return decoded, nil

	default:
		return body, nil
	}
}
