package auth

import (
	"strings"
	"testing"
	"time"
)

func TestAuthToken_RoundTrip(t *testing.T) {
	at := NewAuthToken("test-secret").WithTTL(time.Minute)

	tokenString, err := at.GenerateToken(42)
	if err != nil {
		t.Fatalf("GenerateToken returned error: %v", err)
	}

	valid, doctorID, err := at.VerifyToken(tokenString)
	if err != nil {
		t.Fatalf("VerifyToken returned error: %v", err)
	}
	if !valid {
		t.Fatal("expected token to be valid")
	}
	if doctorID != 42 {
		t.Errorf("expected doctor id 42, got %d", doctorID)
	}
}

func TestAuthToken_WrongSecret(t *testing.T) {
	issuer := NewAuthToken("secret-a")
	verifier := NewAuthToken("secret-b")

	tokenString, err := issuer.GenerateToken(1)
	if err != nil {
		t.Fatalf("GenerateToken returned error: %v", err)
	}

	valid, _, err := verifier.VerifyToken(tokenString)
	if err == nil || valid {
		t.Error("expected verification to fail with wrong secret")
	}
}

func TestAuthToken_Expired(t *testing.T) {
	at := NewAuthToken("test-secret").WithTTL(-time.Minute)

	tokenString, err := at.GenerateToken(1)
	if err != nil {
		t.Fatalf("GenerateToken returned error: %v", err)
	}

	valid, _, err := at.VerifyToken(tokenString)
	if err == nil || valid {
		t.Error("expected expired token to be rejected")
	}
	if err != nil && !strings.Contains(err.Error(), "expired") {
		t.Logf("rejection reason: %v", err)
	}
}

func TestAuthToken_EmptySecret(t *testing.T) {
	at := NewAuthToken("")

	if _, err := at.GenerateToken(1); err == nil {
		t.Error("expected error with empty secret")
	}
	if valid, _, err := at.VerifyToken("whatever"); err == nil || valid {
		t.Error("expected verification to fail with empty secret")
	}
}

func TestAuthToken_Garbage(t *testing.T) {
	at := NewAuthToken("test-secret")

	valid, _, err := at.VerifyToken("not.a.token")
	if err == nil || valid {
		t.Error("expected garbage token to be rejected")
	}
}
