package logging

import "context"

type contextKey string

const (
	contextIDKey contextKey = "context_id"
	packageIDKey contextKey = "package_id"
)

// WithContextID adds the owning feed context (user or session) to ctx.
func WithContextID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextIDKey, id)
}

// WithPackageID adds a package identifier to ctx.
func WithPackageID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, packageIDKey, id)
}

// GetContextID retrieves the feed context id from ctx.
// Returns empty string if not present.
func GetContextID(ctx context.Context) string {
	if id, ok := ctx.Value(contextIDKey).(string); ok {
		return id
	}
	return ""
}

// GetPackageID retrieves the package identifier from ctx.
// Returns empty string if not present.
func GetPackageID(ctx context.Context) string {
	if id, ok := ctx.Value(packageIDKey).(string); ok {
		return id
	}
	return ""
}
