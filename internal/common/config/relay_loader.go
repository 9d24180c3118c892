package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/edgecomet/eventrelay/internal/common/configtypes"
)

// LoadRelayConfig loads eventrelay configuration from a YAML file
func LoadRelayConfig(path string, logger *zap.Logger) (*configtypes.RelayConfig, error) {
	logger.Info("Loading relay configuration", zap.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := ParseRelayConfig(data)
	if err != nil {
		return nil, err
	}

	logger.Info("Relay configuration loaded successfully",
		zap.String("relay_id", cfg.RelayID),
		zap.Bool("async", cfg.Async.IsEnabled()),
		zap.Int("transports", cfg.Transports.EnabledCount()))

	return cfg, nil
}

// ParseRelayConfig decodes, validates and defaults a relay configuration document
func ParseRelayConfig(data []byte) (*configtypes.RelayConfig, error) {
	var cfg configtypes.RelayConfig
	if err := unmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// unmarshalStrict rejects unknown fields so typos in config files surface at startup
func unmarshalStrict(data []byte, v interface{}) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("config document is empty")
		}
		if msg := err.Error(); strings.Contains(msg, "field") && strings.Contains(msg, "not found") {
			return fmt.Errorf("unknown configuration field (check for typos): %w", err)
		}
		return err
	}
	return nil
}
