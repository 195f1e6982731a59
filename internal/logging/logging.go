// logging.go - Structured application and audit logging.
//
// The application log goes to the configured outputs. Audit events go to a separate rotating
// file so that proof generation and verification leave a durable trail.

package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	gnarklogger "github.com/consensys/gnark/logger"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"medproof/internal/config"
)

// Logger wraps a zerolog logger with an audit channel.
type Logger struct {
	zerolog.Logger
	audit   zerolog.Logger
	auditOn bool
	closers []io.Closer
}

// New builds a logger from the logging section of the configuration.
func New(cfg config.LoggingConfig) (*Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var (
		writers []io.Writer
		closers []io.Closer
	)
	outputs := cfg.Output
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	for _, out := range outputs {
		switch strings.ToLower(out) {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			f := rotating(out, cfg.Audit)
			writers = append(writers, f)
			closers = append(closers, f)
		}
	}
	if cfg.Format == "console" {
		for i, w := range writers {
			writers[i] = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: w != os.Stdout}
		}
	}

	var auditW io.Writer
	if cfg.Audit.Enabled {
		f := rotating(cfg.Audit.Path, cfg.Audit)
		auditW = f
		closers = append(closers, f)
	}

	l := newLogger(level, zerolog.MultiLevelWriter(writers...), auditW)
	l.closers = closers
	if cfg.Gnark {
		BridgeGnark(l.Logger)
	} else {
		SilenceGnark()
	}
	return l, nil
}

func newLogger(level zerolog.Level, w io.Writer, auditW io.Writer) *Logger {
	l := &Logger{
		Logger: zerolog.New(w).Level(level).With().Timestamp().Logger(),
		audit:  zerolog.Nop(),
	}
	if auditW != nil {
		l.audit = zerolog.New(auditW).With().Timestamp().Str("channel", "audit").Logger()
		l.auditOn = true
	}
	return l
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop(), audit: zerolog.Nop()}
}

func rotating(path string, a config.AuditConfig) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    a.MaxSizeMB,
		MaxBackups: a.MaxBackups,
		MaxAge:     a.MaxAgeDays,
		Compress:   a.Compress,
	}
}

// ParseLevel maps a configured level name to a zerolog level. Empty means info.
func ParseLevel(s string) (zerolog.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// Audit records an audit event. Audit events are written regardless of the log level.
func (l *Logger) Audit(event string, details map[string]any) {
	if !l.auditOn {
		return
	}
	l.audit.Log().Str("event", event).Fields(details).Msg("audit")
}

// Close flushes and closes any file outputs.
func (l *Logger) Close() error {
	var first error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// BridgeGnark routes the prover's internal logs through base.
func BridgeGnark(base zerolog.Logger) {
	gnarklogger.Set(base.With().Str("component", "gnark").Logger())
}

// SilenceGnark disables the prover's internal logs and returns a function restoring the
// previous logger.
func SilenceGnark() (restore func()) {
	prev := gnarklogger.Logger()
	gnarklogger.Set(zerolog.New(io.Discard).Level(zerolog.Disabled))
	return func() { gnarklogger.Set(prev) }
}
