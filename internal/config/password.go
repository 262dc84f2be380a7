// Package config provides dashboard password verification.
package config

import (
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
)

// PasswordConfig holds the bcrypt hash of the single dashboard password.
// The dashboard is operated by one team; there is no per-user account store.
type PasswordConfig struct {
	Hash string
}

// NewPasswordConfig reads DASHBOARD_PASSWORD_HASH from the environment.
func NewPasswordConfig() (*PasswordConfig, error) {
	hash := os.Getenv("DASHBOARD_PASSWORD_HASH")
	if hash == "" {
		return nil, fmt.Errorf("DASHBOARD_PASSWORD_HASH is required but not set")
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("DASHBOARD_PASSWORD_HASH is not a valid bcrypt hash: %v", err)
	}
	return &PasswordConfig{Hash: hash}, nil
}

// Verify checks a presented password against the stored hash.
func (c *PasswordConfig) Verify(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(c.Hash), []byte(password)) == nil
}

// HashPassword hashes a password for initial setup (used by the hash
// subcommand so operators never handle bcrypt directly).
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
