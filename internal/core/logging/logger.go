package logging

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Component names used across the binary.
const (
	CmpEngine     = "engine"
	CmpFeed       = "feed"
	CmpSubscriber = "subscriber"
	CmpStore      = "store"
	CmpAPI        = "api"
	CmpBus        = "eventbus"
)

// Component creates a new logger with a component identifier under the
// "cmp" key. The logger carries ContextHook so contexts attached with
// Ctx contribute order and notification ids.
func Component(name string) zerolog.Logger {
	return log.With().Str("cmp", name).Logger().Hook(ContextHook{})
}
