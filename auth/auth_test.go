package auth

import (
	"strings"
	"testing"
	"time"
)

func TestPasswordHashing(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		hash, err := HashPassword("correct horse battery staple")
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		if !strings.HasPrefix(hash, "$argon2id$") {
			t.Fatalf("unexpected hash format: %s", hash)
		}
		if err := VerifyPassword("correct horse battery staple", hash); err != nil {
			t.Fatalf("verify: %v", err)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		hash, _ := HashPassword("secret")
		if err := VerifyPassword("wrong", hash); err != ErrMismatchedPassword {
			t.Fatalf("err = %v, want ErrMismatchedPassword", err)
		}
	})

	t.Run("salts differ between hashes", func(t *testing.T) {
		h1, _ := HashPassword("secret")
		h2, _ := HashPassword("secret")
		if h1 == h2 {
			t.Fatal("two hashes of the same password should differ")
		}
	})

	t.Run("malformed hash", func(t *testing.T) {
		if err := VerifyPassword("secret", "not-a-hash"); err != ErrInvalidHash {
			t.Fatalf("err = %v, want ErrInvalidHash", err)
		}
	})
}

func TestTokens(t *testing.T) {
	tm, err := NewTokenManager(DefaultTokenConfig())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	op := &Operator{
		ID:       "op-1",
		Username: "alice",
		Role:     RoleAdmin,
		IsActive: true,
	}

	t.Run("round trip", func(t *testing.T) {
		token, claims, err := tm.GenerateToken(op)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}

		got, err := tm.VerifyToken(token)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if got.OperatorID != op.ID || got.Username != op.Username || got.Role != op.Role {
			t.Fatalf("claims = %+v", got)
		}
		if got.TokenID != claims.TokenID {
			t.Fatal("token id mismatch")
		}
	})

	t.Run("garbage token rejected", func(t *testing.T) {
		if _, err := tm.VerifyToken("v2.local.garbage"); err != ErrInvalidToken {
			t.Fatalf("err = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("wrong key rejected", func(t *testing.T) {
		other, _ := NewTokenManager(&TokenConfig{
			SymmetricKey: "10987654321098765432109876543210",
			Issuer:       "qugate-node",
			TokenTTL:     time.Hour,
		})
		token, _, _ := other.GenerateToken(op)
		if _, err := tm.VerifyToken(token); err != ErrInvalidToken {
			t.Fatalf("err = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("expired token rejected", func(t *testing.T) {
		shortLived, _ := NewTokenManager(&TokenConfig{
			SymmetricKey: "01234567890123456789012345678901",
			Issuer:       "qugate-node",
			TokenTTL:     -time.Minute,
		})
		token, _, _ := shortLived.GenerateToken(op)
		if _, err := tm.VerifyToken(token); err != ErrExpiredToken {
			t.Fatalf("err = %v, want ErrExpiredToken", err)
		}
	})

	t.Run("short key rejected", func(t *testing.T) {
		if _, err := NewTokenManager(&TokenConfig{SymmetricKey: "short"}); err == nil {
			t.Fatal("expected error for short key")
		}
	})
}

func TestRolePermissions(t *testing.T) {
	admin := &Operator{Role: RoleAdmin}
	viewer := &Operator{Role: RoleViewer}

	if !admin.HasPermission(RoleViewer) {
		t.Fatal("admin should cover viewer permissions")
	}
	if !admin.IsAdmin() {
		t.Fatal("admin should be admin")
	}
	if viewer.HasPermission(RoleAdmin) {
		t.Fatal("viewer must not have admin permissions")
	}
	if viewer.IsAdmin() {
		t.Fatal("viewer is not admin")
	}
}
