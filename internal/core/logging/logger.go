package logging

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Component creates a new logger with a component identifier.
// Uses the "cmp" key for consistency with zerolog conventions.
func Component(name string) zerolog.Logger {
	return log.With().Str("cmp", name).Logger()
}

// Prefix formats the log prefix of the feed owned by contextID, padded to a
// fixed width so interleaved feeds line up.
func Prefix(contextID string) string {
	id := "no-context"
	if contextID != "" {
		id = "f:" + contextID
	}
	return fmt.Sprintf("%-20s", "["+id+"]")
}

// Feed creates the logger of the feed whose context id is stored in ctx.
// Entries carry the component and the padded prefix; ContextHook adds the
// context and package ids from the event context.
func Feed(ctx context.Context) zerolog.Logger {
	return log.With().
		Str("cmp", "feed").
		Str("prefix", Prefix(GetContextID(ctx))).
		Ctx(ctx).
		Logger()
}

// UserPrefix formats the log prefix of the profile of user.
func UserPrefix(user string) string {
	if user == "" {
		user = "anonymous"
	}
	return fmt.Sprintf("%-20s", "[u:"+user+"]")
}
