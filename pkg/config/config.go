package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config manages service configuration
type Config struct {
	mu     sync.RWMutex
	values map[string]string

	// Define which keys require restart when changed
	restartKeys []string
}

// New creates a new configuration manager with defaults applied
func New() *Config {
	c := &Config{
		values: map[string]string{
			"server.host":       "0.0.0.0",
			"server.port":       "8002",
			"database.host":     "localhost",
			"database.port":     "5432",
			"database.name":     "analyzer_console",
			"database.user":     "analyzer",
			"database.password": "analyzer",
			"database.sslmode":  "disable",
			"redis.addr":        "",
			"llm.api_key":       "",
			"llm.model":         "gemini-2.0-flash",
			"llm.base_url":      "https://generativelanguage.googleapis.com/v1beta",
			"grids.api_key":     "",
		},
		restartKeys: []string{
			"database.host",
			"database.port",
			"database.name",
			"server.port",
			"server.host",
		},
	}
	c.applyEnv()
	return c
}

// LoadFile merges a YAML configuration file into the config.
// Nested keys are flattened with dots: database: {host: x} -> database.host.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	flat := make(map[string]string)
	flatten("", raw, flat)
	c.Update(flat)

	// Environment always wins over file values
	c.applyEnv()
	return nil
}

func flatten(prefix string, in map[string]interface{}, out map[string]string) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]interface{}:
			flatten(key, val, out)
		default:
			out[key] = fmt.Sprintf("%v", val)
		}
	}
}

// applyEnv overrides values from ANALYZER_* environment variables.
// ANALYZER_DATABASE_HOST maps to database.host.
func (c *Config) applyEnv() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, entry := range os.Environ() {
		if !strings.HasPrefix(entry, "ANALYZER_") {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(parts[0], "ANALYZER_"), "_", "."))
		c.values[key] = parts[1]
	}
}

// Get retrieves a configuration value
func (c *Config) Get(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[key]
}

// GetAll returns a copy of all configuration values
func (c *Config) GetAll() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	copy := make(map[string]string)
	for k, v := range c.values {
		copy[k] = v
	}
	return copy
}

// Update updates configuration values
func (c *Config) Update(values map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, v := range values {
		c.values[k] = v
	}
}

// RequiresRestart checks if any changed keys require a restart
func (c *Config) RequiresRestart(oldConfig map[string]string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, key := range c.restartKeys {
		if oldConfig[key] != c.values[key] {
			return true
		}
	}

	return false
}
