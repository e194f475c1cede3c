package utils

import "golang.org/x/crypto/bcrypt"

// HashAPIKey returns the bcrypt hash of a collaborator API key, for the
// SYSTEM_API_KEY_HASH setting.
func HashAPIKey(key string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyAPIKey safely compares a bcrypt hash and a presented key.
func VerifyAPIKey(hash, key string) bool {
	if hash == "" || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}
