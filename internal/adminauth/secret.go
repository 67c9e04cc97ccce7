// Package adminauth gates the admin HTTP API (node pushes, server
// inspection) with a bearer JWT signed from a bootstrap secret whose hash
// is what the process actually stores, following the same
// challenge/verify shape as the teacher's auth handler
// (internal/api/handlers/auth.go) adapted to a single shared admin
// secret instead of per-user Ed25519 keys.
package adminauth

import "golang.org/x/crypto/bcrypt"

// HashSecret hashes an admin bootstrap secret for at-rest storage.
func HashSecret(secret string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifySecret reports whether secret matches the stored hash.
func VerifySecret(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
