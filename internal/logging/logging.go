// Package logging wires zerolog to the process and to rotating log files.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds the root logger. basePath selects the log file ("-" keeps
// output on stderr only); level is a zerolog level name.
func New(basePath, level string) (zerolog.Logger, io.Closer, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if strings.TrimSpace(basePath) != "" && basePath != "-" {
		rw, err := NewRotatingWriter(basePath, 64<<20)
		if err != nil {
			return zerolog.Logger{}, nil, err
		}
		closer = rw
		out = io.MultiWriter(os.Stderr, rw)
	}

	logger := zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
