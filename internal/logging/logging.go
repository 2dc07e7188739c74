// Package logging builds the zerolog logger shared by the bot and whatsmeow.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// ParseLevel parses a level name. An empty name means info.
func ParseLevel(name string) (zerolog.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return zerolog.InfoLevel, nil
	}
	return zerolog.ParseLevel(name)
}

// New returns a logger writing to out at the given level. Terminals get
// human-readable output, anything else gets JSON lines.
func New(out io.Writer, level string) (zerolog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}
	w := out
	if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		w = zerolog.ConsoleWriter{Out: f, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// WhatsApp adapts log for whatsmeow. The protocol library is chatty, so
// below debug level only its errors get through.
func WhatsApp(log zerolog.Logger, module string) waLog.Logger {
	l := log.With().Str("module", module).Logger()
	if log.GetLevel() > zerolog.DebugLevel {
		l = l.Level(zerolog.ErrorLevel)
	}
	return waLog.Zerolog(l)
}
