package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rs/zerolog"

	"github.com/andresmejia3/faceguard/internal/config"
)

// New builds the root logger: human-readable output on stderr plus, when configured, a
// JSON log file rotated daily.
func New(cfg config.LogConfig) (zerolog.Logger, io.Closer, error) {
	return build(cfg, os.Stderr)
}

func build(cfg config.LogConfig, console io.Writer) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.Nop(), nil, fmt.Errorf("invalid log level %q", cfg.Level)
	}

	writers := []io.Writer{zerolog.ConsoleWriter{Out: console, TimeFormat: time.Kitchen}}
	var closer io.Closer = nopCloser{}

	if cfg.File != "" {
		maxDays := cfg.MaxDays
		if maxDays <= 0 {
			maxDays = 7
		}
		rl, err := rotatelogs.New(
			cfg.File+".%Y%m%d",
			rotatelogs.WithLinkName(cfg.File),
			rotatelogs.WithRotationTime(24*time.Hour),
			rotatelogs.WithMaxAge(time.Duration(maxDays)*24*time.Hour),
		)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, rl)
		closer = rl
	}

	log := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().Timestamp().Str("app", "faceguard").
		Logger()
	return log, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
