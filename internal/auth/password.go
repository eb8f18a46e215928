package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultBcryptCost is the default bcrypt cost factor
	DefaultBcryptCost = 12

	// MaxPasswordLength caps input length to prevent bcrypt DoS
	MaxPasswordLength = 128
)

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	if len(password) > MaxPasswordLength {
		return "", fmt.Errorf("password too long")
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), DefaultBcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

// VerifyPassword verifies a password against a hash
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Authenticator validates the operator password and issues tokens.
type Authenticator struct {
	passwordHash string
	jwt          *JWTManager
}

func NewAuthenticator(passwordHash string, jwt *JWTManager) *Authenticator {
	return &Authenticator{passwordHash: passwordHash, jwt: jwt}
}

// Login checks the operator password and returns an access token.
func (a *Authenticator) Login(password string) (string, error) {
	if a.passwordHash == "" || !VerifyPassword(password, a.passwordHash) {
		return "", ErrInvalidCredentials
	}
	return a.jwt.GenerateToken("operator")
}
