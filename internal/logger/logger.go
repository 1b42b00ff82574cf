// Package logger configures the global zerolog logger from command line options.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a go-flags option group.
type Logger struct {
	Level      string `short:"l" long:"log-level"       env:"LOG_LEVEL"       description:"Log level"                      choice:"trace" choice:"debug" choice:"info" choice:"warn" choice:"error" default:"info"`
	Format     string `short:"f" long:"log-format"      env:"LOG_FORMAT"      description:"Log output format"              choice:"console" choice:"json" default:"console"`
	File       string `long:"log-file"                  env:"LOG_FILE"        description:"Also write logs to this rotated file"`
	MaxSize    int    `long:"log-max-size"              env:"LOG_MAX_SIZE"    description:"Log file size in MB before rotation" default:"50"`
	MaxBackups int    `long:"log-max-backups"           env:"LOG_MAX_BACKUPS" description:"Rotated log files to keep"      default:"3"`
	NoColor    bool   `long:"log-no-color"              env:"LOG_NO_COLOR"    description:"Disable colored console output"`
}

// Setup installs the global logger and returns the writer it uses.
func (l Logger) Setup() io.Writer {
	w := l.Writer(os.Stderr)
	zerolog.SetGlobalLevel(ParseLevel(l.Level))
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return w
}

// Writer builds the output chain over out: console or JSON, plus the rotated file.
func (l Logger) Writer(out io.Writer) io.Writer {
	var w io.Writer = out
	if l.Format != "json" {
		w = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
			NoColor:    l.NoColor || !isTerminal(out),
		}
	}

	if l.File == "" {
		return w
	}

	file := &lumberjack.Logger{
		Filename:   l.File,
		MaxSize:    l.MaxSize,
		MaxBackups: l.MaxBackups,
		LocalTime:  true,
	}
	// file output is always JSON
	return zerolog.MultiLevelWriter(w, file)
}

// ParseLevel maps a level name to zerolog, falling back to info.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
