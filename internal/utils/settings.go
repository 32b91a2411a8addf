package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings are the persisted user preferences. Flags override them for a
// single run.
type Settings struct {
	SpeedLimit      ByteSize      `yaml:"speed_limit"`
	CloseOnComplete bool          `yaml:"close_on_complete"`
	Workers         int           `yaml:"workers"`
	Connections     int           `yaml:"connections"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryInterval   time.Duration `yaml:"retry_interval"`
	ChunkIncrement  ByteSize      `yaml:"chunk_increment"`
	GlobalLimit     ByteSize      `yaml:"global_limit"`
	MaxConnections  int           `yaml:"max_connections"`
	Archive         ArchiveConfig `yaml:"archive"`
}

type ArchiveConfig struct {
	Target  string `yaml:"target"`
	Profile string `yaml:"profile"`
}

// ByteSize is a byte count that reads human sizes ("2MB") from YAML.
type ByteSize int64

func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a size", value.Line)
	}
	return b.set(value.Value)
}

func DefaultSettings() Settings {
	return Settings{
		Workers:        1,
		Connections:    8,
		MaxRetries:     3,
		RetryInterval:  30 * time.Second,
		ChunkIncrement: 1024 * 1024,
		MaxConnections: DefaultMaxConnections,
	}
}

// SettingsPath returns $XDG_CONFIG_HOME/sdm/settings.yaml or its platform
// equivalent.
func SettingsPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sdm", "settings.yaml"), nil
}

// LoadSettings reads path over the defaults. A missing file yields defaults.
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("error reading settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("error parsing settings: %w", err)
	}
	return settings, nil
}

func (s Settings) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating settings directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Set assigns one setting by its YAML key.
func (s *Settings) Set(key, value string) error {
	var err error
	switch strings.ToLower(key) {
	case "speed_limit":
		err = s.SpeedLimit.set(value)
	case "global_limit":
		err = s.GlobalLimit.set(value)
	case "chunk_increment":
		err = s.ChunkIncrement.set(value)
	case "close_on_complete":
		s.CloseOnComplete, err = strconv.ParseBool(value)
	case "workers":
		s.Workers, err = positiveInt(value)
	case "connections":
		s.Connections, err = positiveInt(value)
	case "max_connections":
		s.MaxConnections, err = positiveInt(value)
	case "max_retries":
		s.MaxRetries, err = strconv.Atoi(value)
		if err == nil && s.MaxRetries < 0 {
			err = fmt.Errorf("must not be negative")
		}
	case "retry_interval":
		s.RetryInterval, err = time.ParseDuration(value)
	case "archive.target", "archive":
		s.Archive.Target = value
	case "archive.profile":
		s.Archive.Profile = value
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	if err != nil {
		return fmt.Errorf("invalid value %q for %s: %w", value, key, err)
	}
	return nil
}

func (b *ByteSize) set(value string) error {
	n, err := ParseBytes(value)
	if err != nil {
		return err
	}
	*b = ByteSize(n)
	return nil
}

func positiveInt(value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return n, nil
}
