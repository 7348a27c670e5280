package auth

import "context"

type contextKey string

const (
	contextKeyRole    contextKey = "auth.role"
	contextKeySubject contextKey = "auth.subject"
)

// WithIdentity stores auth identity details in context.
func WithIdentity(ctx context.Context, role Role, subject string) context.Context {
	ctx = context.WithValue(ctx, contextKeyRole, role)
	ctx = context.WithValue(ctx, contextKeySubject, subject)
	return ctx
}

// RoleFromContext extracts the role from context.
func RoleFromContext(ctx context.Context) Role {
	if ctx == nil {
		return ""
	}
	value := ctx.Value(contextKeyRole)
	if role, ok := value.(Role); ok {
		return role
	}
	return ""
}

// SubjectFromContext extracts the token subject from context.
func SubjectFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value := ctx.Value(contextKeySubject)
	if subject, ok := value.(string); ok {
		return subject
	}
	return ""
}
