package auth

import (
	"chat-relay/domain"
	"strings"
)

// JWTAuthenticator verifies bearer tokens issued by a TokenManager.
type JWTAuthenticator struct {
	tokens *TokenManager
}

func NewJWTAuthenticator(tokens *TokenManager) *JWTAuthenticator {
	return &JWTAuthenticator{tokens: tokens}
}

// Verify accepts the token alone or prefixed with "Bearer ".
func (a *JWTAuthenticator) Verify(credential string) (domain.UserID, bool) {
	credential = strings.TrimPrefix(strings.TrimSpace(credential), "Bearer ")
	if credential == "" {
		return 0, false
	}
	claims, err := a.tokens.ValidateToken(credential)
	if err != nil || claims.UserID <= 0 {
		return 0, false
	}
	return claims.UserID, true
}
