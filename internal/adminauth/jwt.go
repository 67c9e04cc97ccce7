package adminauth

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims identifies an issued admin token. Subject is fixed to "admin"
// since there's exactly one principal in this API; the expiry is what
// actually bounds the token's lifetime.
type Claims struct {
	jwt.RegisteredClaims
}

// Manager issues and verifies EdDSA bearer tokens for the admin API. The
// signing key is deterministically derived from the process's admin
// secret, the same seed-from-secret approach the CLI's JWTManager uses
// (cli/internal/crypto/jwt.go), so restarting the process with the same
// secret keeps previously issued tokens valid.
type Manager struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
}

// NewManager derives a Manager's signing key from secret.
func NewManager(secret string) *Manager {
	seed := sha256.Sum256([]byte(secret))
	privateKey := ed25519.NewKeyFromSeed(seed[:])
	return &Manager{
		privateKey: privateKey,
		publicKey:  privateKey.Public().(ed25519.PublicKey),
	}
}

// IssueToken returns a signed bearer token valid for ttl.
func (m *Manager) IssueToken(ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(m.privateKey)
}

// VerifyToken parses and validates a bearer token, returning its claims.
func (m *Manager) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("adminauth: unexpected signing method: %v", t.Header["alg"])
		}
		return m.publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("adminauth: parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("adminauth: invalid token")
	}
	return claims, nil
}
