package scheduler

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config for YAML decoding, spelling out the byte
// size and duration fields as the plain scalars the external
// configuration contract uses (cache_capacity in bytes,
// backend_write_timeout as a Go duration string like "500ms").
type fileConfig struct {
	Parallel            bool   `yaml:"parallel"`
	ChunkSize           int    `yaml:"chunk_size"`
	MaxTokens           int    `yaml:"max_tokens"`
	CacheCapacityBytes  int64  `yaml:"cache_capacity"`
	BackendWriteTimeout string `yaml:"backend_write_timeout"`
}

// LoadConfig decodes a Config from r's YAML content.
func LoadConfig(r io.Reader) (Config, error) {
	var fc fileConfig
	if err := yaml.NewDecoder(r).Decode(&fc); err != nil {
		return Config{}, fmt.Errorf("scheduler: decode config: %w", err)
	}

	cfg := Config{
		Parallel:           fc.Parallel,
		ChunkSize:          fc.ChunkSize,
		MaxTokens:          fc.MaxTokens,
		CacheCapacityBytes: fc.CacheCapacityBytes,
	}
	if fc.BackendWriteTimeout != "" {
		d, err := time.ParseDuration(fc.BackendWriteTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("scheduler: parse backend_write_timeout: %w", err)
		}
		cfg.BackendWriteTimeout = d
	}
	return cfg, nil
}
