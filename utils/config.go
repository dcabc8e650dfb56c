package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the application configuration.
type Config struct {
	API  APIConfig  `json:"api"`
	Chat ChatConfig `json:"chat"`
	Data DataConfig `json:"data"`
}

// APIConfig configures the remote endpoint.
type APIConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
}

// ChatConfig configures send-pipeline defaults.
type ChatConfig struct {
	DefaultSystemPrompt string `json:"default_system_prompt"`
	MaxTokens           int    `json:"max_tokens"`
	DebounceMs          int    `json:"debounce_ms"`
}

// DataConfig configures local storage.
type DataConfig struct {
	DBPath string `json:"db_path"`
}

// LoadConfig loads configuration from file.
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if config.Data.DBPath != "" {
		config.Data.DBPath = expandPath(config.Data.DBPath)
	}
	return &config, nil
}

// SaveConfig writes configuration to file, creating directories as needed.
func SaveConfig(configPath string, config *Config) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// expandPath expands ~ and relative paths.
func expandPath(path string) string {
	if len(path) == 0 {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	absPath, err := filepath.Abs(path)
	if err == nil {
		return absPath
	}
	return path
}

// GetConfigPath returns the default config path under the user config dir.
func GetConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "./config/default.json"
	}
	return filepath.Join(configDir, "littlechat", "config.json")
}

// EnsureDefaultConfig creates a default config file if none exists and
// returns its path.
func EnsureDefaultConfig() (string, error) {
	configPath := GetConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil
	}

	defaultConfig := &Config{
		API: APIConfig{
			APIKey:  "",
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4-turbo",
		},
		Chat: ChatConfig{
			DefaultSystemPrompt: "You are a helpful assistant.",
			MaxTokens:           4096,
			DebounceMs:          250,
		},
		Data: DataConfig{
			DBPath: "./data/littlechat.db",
		},
	}

	if err := SaveConfig(configPath, defaultConfig); err != nil {
		return "", err
	}
	return configPath, nil
}
