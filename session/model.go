package session

// Session binds an opaque token to an authenticated principal. Everything
// lives server side; the token itself carries no claims.
type Session struct {
	Token       string
	PrincipalID string
	Origin      string
	UserAgent   string
	CreatedAt   int64
	ExpiresAt   int64
}
