package livequery

import (
	"encoding/json"
	"time"

	"github.com/autom8ter/livequery/errors"
	"github.com/autom8ter/livequery/util"
)

// Config configures an Invalidator
type Config struct {
	// LogLevel is the level of the default logger (debug, info, warn, error). It is ignored if a logger is provided with WithLogger.
	LogLevel string `json:"logLevel" validate:"omitempty,oneof=debug info warn warning error"`
	// FetchTimeout bounds each refresh, including the wait for a fetch slot. Zero disables the timeout.
	FetchTimeout time.Duration `json:"fetchTimeout" validate:"gte=0"`
	// MaxConcurrentFetches bounds the number of refresh fetches in flight. Zero means unbounded.
	MaxConcurrentFetches int64 `json:"maxConcurrentFetches" validate:"gte=0"`
	// Metrics enables prometheus metrics on the registerer provided with WithRegisterer (or the default registerer)
	Metrics bool `json:"metrics"`
}

// Validate validates the config
func (c Config) Validate() error {
	return util.ValidateStruct(c)
}

// LoadConfig decodes a yaml or json config
func LoadConfig(content []byte) (Config, error) {
	var cfg Config
	jsonContent, err := util.YAMLToJSON(content)
	if err != nil {
		return cfg, errors.Wrap(err, errors.Validation, "failed to parse config")
	}
	values := map[string]any{}
	if err := json.Unmarshal(jsonContent, &values); err != nil {
		return cfg, errors.Wrap(err, errors.Validation, "failed to parse config")
	}
	if err := util.Decode(values, &cfg); err != nil {
		return cfg, errors.Wrap(err, errors.Validation, "failed to decode config")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
