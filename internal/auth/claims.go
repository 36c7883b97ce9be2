package auth

import "github.com/golang-jwt/jwt/v5"

// Scopes gate what a caller may do with the call-state core.
const (
	// ScopeIngest allows delivering inbound event envelopes (push gateway,
	// native shim).
	ScopeIngest = "calls:ingest"
	// ScopeQuery allows reading call state and the call journal.
	ScopeQuery = "calls:query"
)

// Claims are the only supported JWT claims shape for this service.
// Tokens identify a calling service (push gateway, app backend), not an end
// user; per-user identity never reaches the call-state core.
type Claims struct {
	jwt.RegisteredClaims

	ServiceID string   `json:"service_id"`
	Scopes    []string `json:"scopes"`
}

func (c Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
