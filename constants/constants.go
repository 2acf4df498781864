package constants

import (
	"os"
	"strconv"

	"github.com/jsphweid/accompanist/chord"
	"github.com/jsphweid/accompanist/util"
)

const DefaultPort = 8080

// reference demo defaults
const DefaultKey = "D"
const DefaultTempo = 30

const DefaultSampleRate = 44100

const DefaultDetectWindowSeconds = 4

// detection needs at least this much audio before it runs
const MinDetectSeconds = 2

const DefaultSessionIdleMinutes = 30

func getInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func getString(name string, fallback string) string {
	v := os.Getenv(name)
	if v != "" {
		return v
	}
	return fallback
}

func GetPort() int {
	return getInt("PORT", DefaultPort)
}

func GetDefaultKey() string {
	return getString("DEFAULT_KEY", DefaultKey)
}

func GetDefaultTempo() int {
	return getInt("DEFAULT_TEMPO", DefaultTempo)
}

func GetProgression() []string {
	tokens := util.SplitList(os.Getenv("PROGRESSION"))
	if len(tokens) == 0 {
		return append([]string(nil), chord.DefaultProgression...)
	}
	return tokens
}

func GetSampleRate() int {
	return getInt("SAMPLE_RATE", DefaultSampleRate)
}

func GetAllowedOrigins() []string {
	origins := util.SplitList(os.Getenv("ALLOWED_ORIGINS"))
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func GetLogLevel() string {
	return getString("LOG_LEVEL", "info")
}

func GetDetectWindowSeconds() int {
	return getInt("DETECT_WINDOW_SECONDS", DefaultDetectWindowSeconds)
}

func GetSessionIdleMinutes() int {
	return getInt("SESSION_IDLE_MINUTES", DefaultSessionIdleMinutes)
}
