package auth

import (
	"testing"
	"time"

	"github.com/salescope/salescope/internal/model"
)

func TestTokenRoundTrip(t *testing.T) {
	mgr, err := NewManager("secret", time.Minute)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	user := model.User{ID: 42, Username: "maria", Role: model.RoleAnalyst}
	token, exp, err := mgr.IssueToken(user)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if exp.Before(time.Now()) {
		t.Fatalf("expiry in past")
	}
	claims, err := mgr.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != 42 || claims.Username != "maria" || claims.Role != model.RoleAnalyst {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestExpiredToken(t *testing.T) {
	mgr, _ := NewManager("secret", -time.Minute)
	token, _, err := mgr.IssueToken(model.User{ID: 1, Username: "u", Role: model.RoleViewer})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := mgr.ValidateToken(token); err == nil {
		t.Fatalf("expected expiration error")
	}
}

func TestWrongSecretRejected(t *testing.T) {
	mgr1, _ := NewManager("secret-a", time.Minute)
	mgr2, _ := NewManager("secret-b", time.Minute)
	token, _, err := mgr1.IssueToken(model.User{ID: 1, Username: "u", Role: model.RoleAdmin})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := mgr2.ValidateToken(token); err == nil {
		t.Fatalf("expected signature error")
	}
}

func TestEmptySecret(t *testing.T) {
	if _, err := NewManager("", 0); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword(hash, "hunter2") {
		t.Fatalf("expected password to match")
	}
	if CheckPassword(hash, "hunter3") {
		t.Fatalf("expected mismatch to fail")
	}
}
