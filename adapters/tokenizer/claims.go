package tokenizer

import "github.com/golang-jwt/jwt/v5"

// AccessClaims are the claims of a result proxy access token.
// The audience holds the wallet address, the subject a random id.
// Tokens carry no expiry.
type AccessClaims struct {
	jwt.RegisteredClaims
}

func (c AccessClaims) walletAddress() (string, bool) {
	if len(c.Audience) != 1 || c.Audience[0] == "" {
		return "", false
	}
	return c.Audience[0], true
}
