// Package logger configures the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config for logger setup.
type Config struct {
	Level   string // debug, info, warn, error
	Format  string // json or console
	Dir     string // optional: also write daily-rotated files under this dir
	Service string
}

// Setup installs the global logger. Call once from main.
func Setup(cfg Config) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stdout
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}

	if cfg.Dir != "" {
		if w, err := newDailyWriter(cfg.Dir, cfg.Service); err == nil {
			out = io.MultiWriter(out, w)
		}
	}

	log.Logger = zerolog.New(out).With().
		Timestamp().
		Str("service", cfg.Service).
		Logger()
}

// Component returns a child logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// dailyWriter appends to <dir>/<service>-YYYY-MM-DD.log, reopening on date change.
type dailyWriter struct {
	dir     string
	service string
	day     string
	file    *os.File
}

func newDailyWriter(dir, service string) (*dailyWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	w := &dailyWriter{dir: dir, service: service}
	if err := w.rotate(time.Now().UTC()); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *dailyWriter) rotate(now time.Time) error {
	day := now.Format("2006-01-02")
	if day == w.day && w.file != nil {
		return nil
	}
	if w.file != nil {
		w.file.Close()
	}
	f, err := os.OpenFile(filepath.Join(w.dir, w.service+"-"+day+".log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.day = day
	w.file = f
	return nil
}

func (w *dailyWriter) Write(p []byte) (int, error) {
	if err := w.rotate(time.Now().UTC()); err != nil {
		return 0, err
	}
	return w.file.Write(p)
}
