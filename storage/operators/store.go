// Package operators provides in-memory operator storage with Argon2id
// password hashing. Operators are the node's administrative identities;
// losing them only costs admin access, so persistence is left to deployment
// tooling rather than the database.
package operators

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qugate/gate-node/auth"
)

// Common errors
var (
	ErrOperatorNotFound   = errors.New("operator not found")
	ErrUsernameExists     = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// StoredOperator represents an operator with hashed password
type StoredOperator struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Never expose
	Role         auth.Role `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ToOperator strips the password hash
func (so *StoredOperator) ToOperator() *auth.Operator {
	return &auth.Operator{
		ID:        so.ID,
		Username:  so.Username,
		Role:      so.Role,
		IsActive:  so.IsActive,
		CreatedAt: so.CreatedAt,
	}
}

// Store provides operator storage operations
type Store struct {
	mu     sync.RWMutex
	ops    map[string]*StoredOperator // by ID
	byName map[string]string          // username -> ID
}

// generateSecurePassword creates a cryptographically secure random password
func generateSecurePassword(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		log.Fatal("CRITICAL: Failed to generate secure random password")
	}
	return base64.URLEncoding.EncodeToString(bytes)[:length]
}

// getPasswordFromEnv retrieves a password from the environment or generates one
func getPasswordFromEnv(envVar, username string) string {
	if password := os.Getenv(envVar); password != "" {
		return password
	}
	generatedPassword := generateSecurePassword(32)
	log.Printf("WARNING: %s not set. Generated secure password for %s: %s", envVar, username, generatedPassword)
	log.Printf("IMPORTANT: Set %s environment variable in production!", envVar)
	return generatedPassword
}

// NewStore creates an operator store seeded with the default admin
func NewStore() *Store {
	store := &Store{
		ops:    make(map[string]*StoredOperator),
		byName: make(map[string]string),
	}

	adminPassword := getPasswordFromEnv("ADMIN_PASSWORD", "admin")

	adminHash, _ := auth.HashPassword(adminPassword)
	admin := &StoredOperator{
		ID:           "admin-default-001",
		Username:     "admin",
		PasswordHash: adminHash,
		Role:         auth.RoleAdmin,
		IsActive:     true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	store.ops[admin.ID] = admin
	store.byName[admin.Username] = admin.ID

	return store
}

// Create creates a new operator with a hashed password
func (s *Store) Create(username, password string, role auth.Role) (*StoredOperator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[username]; exists {
		return nil, ErrUsernameExists
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	op := &StoredOperator{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	s.ops[op.ID] = op
	s.byName[op.Username] = op.ID

	return op, nil
}

// GetByID retrieves an operator by ID
func (s *Store) GetByID(id string) (*StoredOperator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	op, exists := s.ops[id]
	if !exists {
		return nil, ErrOperatorNotFound
	}

	return op, nil
}

// Authenticate verifies credentials and returns the operator
func (s *Store) Authenticate(username, password string) (*StoredOperator, error) {
	s.mu.RLock()
	id, exists := s.byName[username]
	if !exists {
		s.mu.RUnlock()
		return nil, ErrInvalidCredentials
	}
	op := s.ops[id]
	s.mu.RUnlock()

	if !op.IsActive {
		return nil, ErrInvalidCredentials
	}

	if err := auth.VerifyPassword(password, op.PasswordHash); err != nil {
		return nil, ErrInvalidCredentials
	}

	return op, nil
}

// List returns all operators (for admin)
func (s *Store) List() []*auth.Operator {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*auth.Operator, 0, len(s.ops))
	for _, op := range s.ops {
		result = append(result, op.ToOperator())
	}
	return result
}
