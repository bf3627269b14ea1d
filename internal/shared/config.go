package shared

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Player  PlayerConfig  `toml:"player"`
	Ingest  IngestConfig  `toml:"ingest"`
	Library LibraryConfig `toml:"library"`
}

// PlayerConfig contains playback and transport settings.
type PlayerConfig struct {
	SeekStep         float64 `toml:"seek_step"`         // Seconds per relative seek
	LoadOffset       float64 `toml:"load_offset"`       // Startup latency compensation in seconds
	PositionInterval int     `toml:"position_interval"` // Position update interval in milliseconds
}

// IngestConfig contains file ingestion settings.
type IngestConfig struct {
	Workers int `toml:"workers"`
}

// LibraryConfig contains watch-folder settings.
type LibraryConfig struct {
	WatchDirs []string `toml:"watch_dirs"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingConfig, path, err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	// Check if file already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	// Write the embedded example config to the file
	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
