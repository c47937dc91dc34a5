package auth

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestService(t *testing.T, password string) *Service {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	return NewService(Config{
		PasswordHash:  string(hash),
		JWTSecret:     testSecret,
		TokenDuration: time.Hour,
		BCryptCost:    bcrypt.MinCost,
	})
}

func TestLogin(t *testing.T) {
	s := newTestService(t, "correct horse")

	t.Run("Correct password issues admin token", func(t *testing.T) {
		token, expires, err := s.Login("correct horse")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if token == "" {
			t.Fatal("Expected non-empty token")
		}
		if time.Until(expires) < 59*time.Minute {
			t.Errorf("Expected expiry ~1h ahead, got %v", time.Until(expires))
		}

		claims, err := s.ValidateToken(token)
		if err != nil {
			t.Fatalf("Expected valid token, got %v", err)
		}
		if claims.Role != RoleAdmin {
			t.Errorf("Expected role %s, got %s", RoleAdmin, claims.Role)
		}
		if claims.ID == "" {
			t.Error("Expected token ID")
		}
	})

	t.Run("Wrong password", func(t *testing.T) {
		if _, _, err := s.Login("battery staple"); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("Empty password", func(t *testing.T) {
		if _, _, err := s.Login(""); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("No configured hash", func(t *testing.T) {
		s := NewService(Config{JWTSecret: testSecret})
		if _, _, err := s.Login("anything"); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Expected ErrInvalidCredentials, got %v", err)
		}
	})
}

func TestHashPassword(t *testing.T) {
	s := NewService(Config{BCryptCost: bcrypt.MinCost})

	hash, err := s.HashPassword("secret")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if hash == "secret" {
		t.Error("Expected hashed password")
	}
	if err := s.ComparePassword(hash, "secret"); err != nil {
		t.Errorf("Expected match, got %v", err)
	}
	if err := s.ComparePassword(hash, "Secret"); err == nil {
		t.Error("Expected mismatch")
	}
}

func TestValidateToken(t *testing.T) {
	s := newTestService(t, "pw")

	t.Run("Garbage", func(t *testing.T) {
		if _, err := s.ValidateToken("not.a.token"); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("Other secret", func(t *testing.T) {
		other := NewService(Config{JWTSecret: "another-secret-of-sufficient-len"})
		token, _, err := other.GenerateToken("admin", RoleAdmin)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if _, err := s.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("Expired", func(t *testing.T) {
		token, _, err := s.GenerateToken("admin", RoleAdmin)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		defer func() { s.now = time.Now }()

		if _, err := s.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Expected ErrInvalidToken, got %v", err)
		}
	})
}

func TestHasRole(t *testing.T) {
	tests := []struct {
		user, required string
		want           bool
	}{
		{RoleAdmin, RoleAdmin, true},
		{RoleAdmin, RoleViewer, true},
		{RoleViewer, RoleAdmin, false},
		{RoleViewer, RoleViewer, true},
		{"root", RoleViewer, false},
	}

	for _, tt := range tests {
		t.Run(tt.user+"_"+tt.required, func(t *testing.T) {
			if got := HasRole(tt.user, tt.required); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}
