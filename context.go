package keyturn

import "context"

type userAgentContextKey struct{}
type priorSessionTokenContextKey struct{}

// WithUserAgent attaches the HTTP User-Agent string to ctx. The Workflow
// records it on audit entries; the core treats it as an opaque string.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithPriorSessionToken attaches the caller's existing session token to ctx.
// Login invalidates it before issuing a fresh token, so a pre-login token
// can never survive authentication (session fixation).
func WithPriorSessionToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, priorSessionTokenContextKey{}, token)
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

func priorSessionTokenFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	token, _ := ctx.Value(priorSessionTokenContextKey{}).(string)
	return token
}
