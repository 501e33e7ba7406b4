package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ConnLogger returns the global logger tagged with one connection's id and
// server address.
func ConnLogger(connID, addr string) zerolog.Logger {
	return log.With().Str("conn", connID).Str("server", addr).Logger()
}
