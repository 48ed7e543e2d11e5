package logger

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New returns a sub-logger tagged with the given component name.
func New(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}

// SetDebug switches the global level between debug and info. Call it once the
// configuration, including any .env file, has been loaded.
func SetDebug(debug bool) {
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// DebugEnabled interprets a DEBUG value. A set but empty variable enables
// debug; anything else must parse as a bool.
func DebugEnabled(value string, set bool) (bool, error) {
	if !set {
		return false, nil
	}
	if value == "" {
		return true, nil
	}
	return strconv.ParseBool(value)
}

func init() {
	v, set := os.LookupEnv("DEBUG")
	debug, _ := DebugEnabled(v, set)
	SetDebug(debug)

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	})
}
