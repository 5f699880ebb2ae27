package reisenmedia

import (
	"os"

	"github.com/rs/zerolog"
)

// log field names
const (
	lMime   = "mime"
	lPath   = "path"
	lTrack  = "track"
	lImages = "images"
)

//nolint:gochecknoglobals // allows logging from non-method funcs
var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Str("pkg", "reisenmedia").Logger()

func setLogger(logger *zerolog.Logger) {
	if logger != nil {
		log = logger.With().Str("pkg", "reisenmedia").Logger()
	}
}
