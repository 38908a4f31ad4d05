// Package auth provides authentication for the gate node's operator surface.
// Implements Argon2id password hashing and PASETO token management. Note
// that operators are node administrators; callers of the contract itself
// authenticate by ledger key, not here.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters (OWASP recommended)
const (
	Argon2Memory      = 64 * 1024 // 64MB
	Argon2Iterations  = 3
	Argon2Parallelism = 4
	Argon2SaltLength  = 16
	Argon2KeyLength   = 32
)

// ErrInvalidHash is returned when the hash format is invalid
var ErrInvalidHash = errors.New("invalid password hash format")

// ErrMismatchedPassword is returned when password doesn't match
var ErrMismatchedPassword = errors.New("password does not match")

// HashPassword creates an Argon2id hash of the password
func HashPassword(password string) (string, error) {
	salt := make([]byte, Argon2SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	hash := argon2.IDKey(
		[]byte(password),
		salt,
		Argon2Iterations,
		Argon2Memory,
		Argon2Parallelism,
		Argon2KeyLength,
	)

	// Standard format: $argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>
	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		Argon2Memory,
		Argon2Iterations,
		Argon2Parallelism,
		b64Salt,
		b64Hash,
	)

	return encoded, nil
}

// VerifyPassword checks if a password matches the hash
func VerifyPassword(password, encodedHash string) error {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return ErrInvalidHash
	}

	if parts[1] != "argon2id" {
		return ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return ErrInvalidHash
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return ErrInvalidHash
	}

	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return ErrInvalidHash
	}

	// Recompute with the parameters stored in the hash itself
	computedHash := argon2.IDKey(
		[]byte(password),
		salt,
		iterations,
		memory,
		parallelism,
		uint32(len(expectedHash)),
	)

	if subtle.ConstantTimeCompare(expectedHash, computedHash) != 1 {
		return ErrMismatchedPassword
	}

	return nil
}

// Role represents an operator role for RBAC
type Role string

const (
	// RoleAdmin may trigger epoch rollovers, export snapshots and manage operators
	RoleAdmin Role = "ADMIN"
	// RoleViewer may read the archive, statements and node status
	RoleViewer Role = "VIEWER"
)

// Operator represents an authenticated node operator
type Operator struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// HasPermission checks if the operator has the required role
func (o *Operator) HasPermission(required Role) bool {
	if o.Role == RoleAdmin {
		return true // Admin has all permissions
	}
	return o.Role == required
}

// IsAdmin returns true if the operator is an admin
func (o *Operator) IsAdmin() bool {
	return o.Role == RoleAdmin
}
