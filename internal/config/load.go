package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

func GetConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}

	dir := filepath.Join(configDir, "meetscribe")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the user config file, falling back to defaults when none
// exists yet.
func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Printf("config: no config file at %s, using defaults", configPath)
		return DefaultConfig(), nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat config file %s: %w", configPath, err)
	}

	return LoadFrom(configPath)
}

// LoadFrom parses a config file at an explicit path. Missing keys keep their
// default values.
func LoadFrom(path string) (*Config, error) {
	config := DefaultConfig()
	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if config.Providers == nil {
		config.Providers = make(map[string]ProviderConfig)
	}

	log.Printf("config: loaded configuration from %s", path)
	return config, nil
}

// Save writes the config back to the user config path.
func Save(config *Config) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	f, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file %s: %w", configPath, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ResolveAPIKey returns the API key for a provider, preferring the config
// file over the environment.
func (c *Config) ResolveAPIKey(provider string) string {
	if p, ok := c.Providers[provider]; ok && p.APIKey != "" {
		return p.APIKey
	}
	switch provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	}
	return ""
}
