package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// TomlConfig represents the top-level configuration
type TomlConfig struct {
	// PageSize is the number of posts per feed page
	PageSize int `toml:"page_size"`

	// AcceptedImageTypes are the MIME types the upload filter lets through
	AcceptedImageTypes []string `toml:"accepted_image_types"`

	// AllowOrigin is the origin allowed to call the API and open event streams
	AllowOrigin string `toml:"allow_origin"`
}

// DefaultConfig returns the configuration used when no config file is given.
func DefaultConfig() *TomlConfig {
	return &TomlConfig{
		PageSize:           2,
		AcceptedImageTypes: []string{"image/png", "image/jpg", "image/jpeg"},
		AllowOrigin:        "http://localhost:3000",
	}
}

func LoadConfig(path string) (*TomlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return config, nil
}
