package logging

import (
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
)

// New builds the process logger. Unknown levels fall back to info.
func New(name string, level string) hclog.Logger {
	return NewWithOutput(name, level, os.Stderr, false)
}

func NewWithOutput(name string, level string, out io.Writer, json bool) hclog.Logger {
	lvl := hclog.LevelFromString(level)
	if lvl == hclog.NoLevel {
		lvl = hclog.Info
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      lvl,
		Output:     out,
		JSONFormat: json,
	})
}

// OrNull lets components accept a nil logger.
func OrNull(l hclog.Logger) hclog.Logger {
	if l == nil {
		return hclog.NewNullLogger()
	}
	return l
}
