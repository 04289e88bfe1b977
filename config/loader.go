package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var shared struct {
	once sync.Once
	cfg  IPC
}

// Shared returns the process-wide configuration. The file is read on first use
// only; later changes to it are not picked up.
func Shared() IPC {
	shared.once.Do(func() {
		shared.cfg = Load(Path())
	})
	return shared.cfg
}

// Path returns the configuration file location, honoring EnvConfig.
func Path() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads the configuration file at path. It never fails: a missing file
// yields the defaults, and an unreadable or malformed one yields the defaults
// with a warning. Keys with a missing or mistyped value fall back one by one.
func Load(path string) IPC {
	logger := log.With().Str("com", "config-loader").Str("file", path).Logger()

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn().Err(err).Msg("read config file failed, using defaults")
		}
		return Default()
	}

	cfg, err := parse(data, filepath.Ext(path), logger)
	if err != nil {
		logger.Warn().Err(err).Msg("parse config file failed, using defaults")
		return Default()
	}
	logger.Debug().Str("addr", cfg.Address()).Msg("loaded config")
	return cfg
}

// Parse decodes a configuration document. ext selects the syntax: ".yaml" and
// ".yml" for YAML, ".toml" for TOML, JSON otherwise. An error is returned only
// when the document itself cannot be decoded.
func Parse(data []byte, ext string) (IPC, error) {
	return parse(data, ext, zerolog.Nop())
}

func parse(data []byte, ext string, logger zerolog.Logger) (IPC, error) {
	doc, err := decodeDocument(data, ext)
	if err != nil {
		return Default(), err
	}

	cfg := Default()
	if v, ok := doc["host"]; ok {
		if host, ok := v.(string); ok && host != "" {
			cfg.Host = host
		} else {
			logger.Warn().Str("key", "host").Interface("value", v).Msg("invalid value, using default")
		}
	}
	if n, ok := intKey(doc, "port", logger); ok {
		if n >= 1 && n <= 65535 {
			cfg.Port = n
		} else {
			logger.Warn().Str("key", "port").Int("value", n).Msg("port out of range, using default")
		}
	}
	if n, ok := positiveIntKey(doc, "timeout", logger); ok {
		if int64(n) <= maxTimeoutSeconds {
			cfg.Timeout = time.Duration(n) * time.Second
		} else {
			logger.Warn().Str("key", "timeout").Int("value", n).Msg("timeout too large, using default")
		}
	}
	if n, ok := positiveIntKey(doc, "buffer_size", logger); ok {
		cfg.BufferSize = n
	}
	return cfg, nil
}

// maxTimeoutSeconds is the largest timeout a time.Duration can hold.
const maxTimeoutSeconds = int64(math.MaxInt64 / time.Second)

func decodeDocument(data []byte, ext string) (map[string]any, error) {
	doc := make(map[string]any)
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
	default:
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.UseNumber()
		if err := decoder.Decode(&doc); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	}
	return doc, nil
}

func intKey(doc map[string]any, key string, logger zerolog.Logger) (int, bool) {
	v, ok := doc[key]
	if !ok || v == nil {
		return 0, false
	}
	n, ok := intValue(v)
	if !ok {
		logger.Warn().Str("key", key).Interface("value", v).Msg("invalid value, using default")
	}
	return n, ok
}

func positiveIntKey(doc map[string]any, key string, logger zerolog.Logger) (int, bool) {
	n, ok := intKey(doc, key, logger)
	if ok && n <= 0 {
		logger.Warn().Str("key", key).Int("value", n).Msg("value must be positive, using default")
		return 0, false
	}
	return n, ok
}

// intValue accepts whole numbers only; floats, strings and booleans are rejected.
func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		if n < math.MinInt || n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case uint64:
		if n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case interface{ Int64() (int64, error) }: // json.Number
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	}
	return 0, false
}
