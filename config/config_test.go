package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jsphweid/accompanist/chord"
	"github.com/jsphweid/accompanist/pitch"
	"github.com/stretchr/testify/assert"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accompanist.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func clearEnv(t *testing.T) {
	for _, name := range []string{"PORT", "DEFAULT_KEY", "DEFAULT_TEMPO", "PROGRESSION", "SAMPLE_RATE", "DETECT_WINDOW_SECONDS", "SESSION_IDLE_MINUTES"} {
		t.Setenv(name, "")
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	assert := assert.New(t)
	cfg, err := Load("")
	assert.NoError(err)
	assert.Equal("D", cfg.Session.Key)
	assert.Equal(30, cfg.Session.Tempo)
	assert.Equal("I-V-vi-IV", cfg.Progression().String())
	assert.Equal(2, cfg.Key().Index())
}

func TestLoadOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
port: 9090
session:
  key: G
  tempo: 100
  progression: [ii, V, I]
detection:
  window_seconds: 6
`)
	assert := assert.New(t)
	cfg, err := Load(path)
	assert.NoError(err)
	assert.Equal(9090, cfg.Port)
	assert.Equal("G", cfg.Session.Key)
	assert.Equal(100, cfg.Session.Tempo)
	assert.Equal([]string{"ii", "V", "I"}, cfg.Session.Progression)
	assert.Equal(6, cfg.Detection.WindowSeconds)
	assert.Equal(44100, cfg.Detection.SampleRate)
}

func TestLoadRejectsBadValues(t *testing.T) {
	clearEnv(t)
	assert := assert.New(t)

	_, err := Load(writeConfig(t, "session:\n  key: H\n"))
	assert.True(errors.Is(err, pitch.ErrUnknownPitchClass))

	_, err = Load(writeConfig(t, "session:\n  progression: [I, IX]\n"))
	assert.True(errors.Is(err, chord.ErrUnknownScaleDegree))

	_, err = Load(writeConfig(t, "session:\n  progression: []\n"))
	assert.True(errors.Is(err, chord.ErrEmptyCandidateSet))

	_, err = Load(writeConfig(t, "session:\n  tempo: -5\n"))
	assert.Error(err)

	_, err = Load(writeConfig(t, "session:\n  idle_minutes: 0\n"))
	assert.Error(err)

	_, err = Load(writeConfig(t, "session:\n  idle_minutes: -10\n"))
	assert.Error(err)

	_, err = Load(writeConfig(t, "detection:\n  window_seconds: 1\n"))
	assert.Error(err)

	_, err = Load(writeConfig(t, "port: [1"))
	assert.Error(err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(err)
}
