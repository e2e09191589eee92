package store

import "golang.org/x/crypto/bcrypt"

// HashToken hashes a session token for storage, so a RedisStore (or any
// other Store) never persists a raw, replayable token.
func HashToken(token string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// VerifyToken reports whether token matches a hash produced by HashToken.
func VerifyToken(hash, token string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}
