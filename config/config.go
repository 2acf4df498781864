// Package config loads server settings from an optional YAML file layered
// over the environment defaults in constants.
package config

import (
	"fmt"
	"os"

	"github.com/jsphweid/accompanist/chord"
	"github.com/jsphweid/accompanist/constants"
	"github.com/jsphweid/accompanist/pitch"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port           int             `yaml:"port"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
	LogLevel       string          `yaml:"log_level"`
	Session        SessionConfig   `yaml:"session"`
	Detection      DetectionConfig `yaml:"detection"`
}

type SessionConfig struct {
	Key         string   `yaml:"key"`
	Tempo       int      `yaml:"tempo"`
	Progression []string `yaml:"progression"`
	IdleMinutes int      `yaml:"idle_minutes"`
}

type DetectionConfig struct {
	SampleRate    int `yaml:"sample_rate"`
	WindowSeconds int `yaml:"window_seconds"`
}

func DefaultConfig() *Config {
	return &Config{
		Port:           constants.GetPort(),
		AllowedOrigins: constants.GetAllowedOrigins(),
		LogLevel:       constants.GetLogLevel(),
		Session: SessionConfig{
			Key:         constants.GetDefaultKey(),
			Tempo:       constants.GetDefaultTempo(),
			Progression: constants.GetProgression(),
			IdleMinutes: constants.GetSessionIdleMinutes(),
		},
		Detection: DetectionConfig{
			SampleRate:    constants.GetSampleRate(),
			WindowSeconds: constants.GetDetectWindowSeconds(),
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := pitch.Parse(c.Session.Key); err != nil {
		return fmt.Errorf("session key: %w", err)
	}
	if _, err := chord.ParseProgression(c.Session.Progression); err != nil {
		return fmt.Errorf("session progression: %w", err)
	}
	if c.Session.Tempo <= 0 {
		return fmt.Errorf("session tempo must be positive, got %v", c.Session.Tempo)
	}
	if c.Session.IdleMinutes <= 0 {
		return fmt.Errorf("session idle minutes must be positive, got %v", c.Session.IdleMinutes)
	}
	if c.Detection.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %v", c.Detection.SampleRate)
	}
	if c.Detection.WindowSeconds < constants.MinDetectSeconds {
		return fmt.Errorf("detection window must be at least %v seconds, got %v", constants.MinDetectSeconds, c.Detection.WindowSeconds)
	}
	if c.Port <= 0 {
		return fmt.Errorf("port must be positive, got %v", c.Port)
	}
	return nil
}

func (c *Config) Key() pitch.Class {
	k, _ := pitch.Parse(c.Session.Key)
	return k
}

func (c *Config) Progression() chord.Progression {
	return chord.MustParseProgression(c.Session.Progression)
}
