package logging

import (
	"context"

	"github.com/rs/zerolog"
)

// ContextHook extracts the feed context and package ids from context and adds
// them to log events.
type ContextHook struct{}

// Run adds contextual fields to the zerolog event.
func (h ContextHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == context.Background() || ctx == nil {
		return
	}

	if id := GetContextID(ctx); id != "" {
		e.Str("context", id)
	}

	if id := GetPackageID(ctx); id != "" {
		e.Str("package", id)
	}
}
