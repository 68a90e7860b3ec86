package observability

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	globalLogger zerolog.Logger
	initOnce     sync.Once
)

// InitLogger initializes the global structured logger.
// Only the first call takes effect.
func InitLogger(level string, pretty bool) {
	initOnce.Do(func() {
		var out io.Writer = os.Stdout
		if pretty {
			// Console output for development
			out = zerolog.ConsoleWriter{
				Out:        os.Stdout,
				TimeFormat: time.RFC3339,
			}
		}
		globalLogger = newLogger(out, level)

		log.Logger = globalLogger
	})
}

func newLogger(out io.Writer, level string) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(level))
	return zerolog.New(out).With().Timestamp().Str("service", ServiceName).Logger()
}

// ParseLevel maps a LOG_LEVEL value to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// GetLogger returns the global logger
func GetLogger() zerolog.Logger {
	InitLogger("info", false)
	return globalLogger
}

// NewCorrelationID generates a new correlation ID
func NewCorrelationID() string {
	return uuid.New().String()
}
