package tokenizer

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/core"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/ports"
	"github.com/rs/zerolog/log"
)

// KeySize is the length in bytes of generated signing keys
const KeySize = 128

// JWTTokenizer implements the Tokenizer interface using HS256 JWT
type JWTTokenizer struct {
	signKey []byte
	now     func() time.Time
}

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(signKey []byte) (*JWTTokenizer, error) {
	if len(signKey) == 0 {
		return nil, errors.New("empty signing key")
	}
	return &JWTTokenizer{signKey: signKey, now: time.Now}, nil
}

var _ ports.Tokenizer = (*JWTTokenizer)(nil)

// Mint signs a new token for the wallet
func (j *JWTTokenizer) Mint(walletAddress string) (string, error) {
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Audience: jwt.ClaimStrings{walletAddress},
			IssuedAt: jwt.NewNumericDate(j.now()),
			Subject:  uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedToken, err := token.SignedString(j.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signedToken, nil
}

// WalletAddress verifies the token and returns its audience
func (j *JWTTokenizer) WalletAddress(tokenStr string) (string, error) {
	tokenStr = core.BearerToken(tokenStr)

	token, err := jwt.ParseWithClaims(tokenStr, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.signKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w: %w", core.ErrInvalidToken, err)
	}

	if !token.Valid {
		return "", core.ErrInvalidToken
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok {
		return "", fmt.Errorf("invalid claims type")
	}

	wallet, ok := claims.walletAddress()
	if !ok {
		return "", fmt.Errorf("token has no single audience: %w", core.ErrInvalidToken)
	}
	return wallet, nil
}

// LoadOrCreateKey returns the signing key stored base64 encoded at path.
// A missing file is created with a fresh random key. An empty path yields
// a random key that lives as long as the process.
func LoadOrCreateKey(path string) ([]byte, error) {
	if path == "" {
		log.Warn().Msg("No JWT key path configured, tokens will not survive a restart")
		return randomKey()
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
		if err != nil {
			return nil, fmt.Errorf("failed to decode JWT key %s: %w", path, err)
		}
		if len(key) == 0 {
			return nil, fmt.Errorf("empty JWT key in %s", path)
		}
		log.Info().Str("path", path).Msg("Loaded JWT signing key")
		return key, nil
	case errors.Is(err, fs.ErrNotExist):
		key, err := randomKey()
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create JWT key directory: %w", err)
		}
		encoded := base64.StdEncoding.EncodeToString(key)
		if err := os.WriteFile(path, []byte(encoded), 0o600); err != nil {
			return nil, fmt.Errorf("failed to write JWT key %s: %w", path, err)
		}
		log.Info().Str("path", path).Msg("Created JWT signing key")
		return key, nil
	default:
		return nil, fmt.Errorf("failed to read JWT key %s: %w", path, err)
	}
}

func randomKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate JWT key: %w", err)
	}
	return key, nil
}
