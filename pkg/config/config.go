// Package config loads the switchboard configuration file.
//
// The file is YAML by default and JSON when its extension is .json. It is
// decoded into a generic document first and then mapped onto File, so that
// durations may be written as "500ms" and argument lists as a single string.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/aretw0/switchboard/pkg/adapters/process"
	"github.com/google/shlex"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no file is named explicitly.
const DefaultPath = "switchboard.yaml"

// Store kinds.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreBolt   = "bolt"
	StoreRedis  = "redis"
)

// Builtin engines, served in-process.
const (
	BuiltinLua  = "lua"
	BuiltinEcho = "echo"
)

// File is the whole configuration.
type File struct {
	Engines  []EngineConfig `mapstructure:"engines"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Store    StoreConfig    `mapstructure:"store"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Shell    []string       `mapstructure:"shell"`
}

// EngineConfig declares one engine. Exactly one of Builtin, Command and URL
// selects how it runs.
type EngineConfig struct {
	Name     string `mapstructure:"name"`
	Language string `mapstructure:"language"`

	Builtin string `mapstructure:"builtin"`

	Command     string            `mapstructure:"command"`
	Args        []string          `mapstructure:"args"`
	Environment map[string]string `mapstructure:"env"`
	Dir         string            `mapstructure:"dir"`

	URL       string `mapstructure:"url"`
	Namespace string `mapstructure:"namespace"`
}

// Process returns the subprocess configuration of a command engine.
func (e EngineConfig) Process() process.Config {
	return process.Config{
		Name:        e.Name,
		Command:     e.Command,
		Args:        e.Args,
		Environment: e.Environment,
		Dir:         e.Dir,
	}
}

// ExchangeConfig tunes variable exchange.
type ExchangeConfig struct {
	// Prefix marks Host variables sent to every engine on entry.
	Prefix string `mapstructure:"prefix"`
}

// StoreConfig selects where Host dictionaries are persisted.
type StoreConfig struct {
	Kind string `mapstructure:"kind"`

	// Path is the directory of the file store or the database of the bolt store.
	Path string `mapstructure:"path"`

	// Addr and Prefix configure the redis store.
	Addr   string `mapstructure:"addr"`
	Prefix string `mapstructure:"prefix"`

	TTL     time.Duration `mapstructure:"ttl"`
	LockTTL time.Duration `mapstructure:"lock_ttl"`

	// EncryptionKey enables encryption at rest (32 bytes, AES-256).
	EncryptionKey string `mapstructure:"encryption_key"`
	// RedactKeys lists dictionary keys masked before saving.
	RedactKeys []string `mapstructure:"redact_keys"`
}

// RelayConfig tunes engine communication.
type RelayConfig struct {
	PollWait       time.Duration `mapstructure:"poll_wait"`
	ReplyTimeout   time.Duration `mapstructure:"reply_timeout"`
	StartupTimeout time.Duration `mapstructure:"startup_timeout"`
	GracePeriod    time.Duration `mapstructure:"grace_period"`
}

// Load reads the configuration at path. A missing DefaultPath yields an
// empty configuration; a missing file named explicitly is an error.
func Load(path string) (*File, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return &File{}, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data, strings.ToLower(filepath.Ext(path)) == ".json")
}

// Parse decodes a configuration document.
func Parse(data []byte, isJSON bool) (*File, error) {
	var doc map[string]any
	if isJSON {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse config json: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse config yaml: %w", err)
		}
	}

	var cfg File
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			stringToArgsHook,
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &cfg,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(doc); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// stringToArgsHook splits a string written where a list is expected the way
// a shell would.
func stringToArgsHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf([]string(nil)) {
		return data, nil
	}
	return shlex.Split(data.(string))
}

// Validate checks engine declarations and the store kind.
func (f *File) Validate() error {
	seen := make(map[string]bool, len(f.Engines))
	for i, e := range f.Engines {
		if e.Name == "" {
			return fmt.Errorf("engine #%d: name is required", i+1)
		}
		if seen[e.Name] {
			return fmt.Errorf("engine %s: declared twice", e.Name)
		}
		seen[e.Name] = true

		kinds := 0
		for _, set := range []bool{e.Builtin != "", e.Command != "", e.URL != ""} {
			if set {
				kinds++
			}
		}
		if kinds != 1 {
			return fmt.Errorf("engine %s: exactly one of builtin, command or url is required", e.Name)
		}
		if e.Builtin != "" && e.Builtin != BuiltinLua && e.Builtin != BuiltinEcho {
			return fmt.Errorf("engine %s: unknown builtin %q", e.Name, e.Builtin)
		}
	}

	switch f.Store.Kind {
	case "", StoreMemory, StoreFile, StoreBolt, StoreRedis:
	default:
		return fmt.Errorf("unknown store kind %q", f.Store.Kind)
	}
	if f.Store.EncryptionKey != "" && len(f.Store.EncryptionKey) != 32 {
		return errors.New("store encryption key must be 32 bytes")
	}
	return nil
}

// Engine returns the declaration of name.
func (f *File) Engine(name string) (EngineConfig, bool) {
	for _, e := range f.Engines {
		if e.Name == name {
			return e, true
		}
	}
	return EngineConfig{}, false
}
