package auth

import (
	"testing"
	"time"
)

func TestAuthenticateSuccess(t *testing.T) {
	a := NewAuthenticator(Config{
		Enabled: true, Username: "operator", Password: "s3cret",
		JWTSecret: "test-secret", JWTExpiry: time.Hour,
	})

	token, expiresAt, err := a.Authenticate("operator", "s3cret")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if token == "" {
		t.Fatalf("empty token")
	}
	if expiresAt <= time.Now().Unix() {
		t.Errorf("expiry %d is not in the future", expiresAt)
	}

	claims, err := a.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.Username != "operator" {
		t.Errorf("claims username = %s, want operator", claims.Username)
	}
	if claims.Issuer != "zvision" {
		t.Errorf("claims issuer = %s, want zvision", claims.Issuer)
	}
}

func TestAuthenticateWrongPassword(t *testing.T) {
	a := NewAuthenticator(Config{Enabled: true, Username: "operator", Password: "s3cret"})

	if _, _, err := a.Authenticate("operator", "wrong"); err != ErrInvalidCredentials {
		t.Errorf("wrong password error = %v, want ErrInvalidCredentials", err)
	}
	if _, _, err := a.Authenticate("intruder", "s3cret"); err != ErrInvalidCredentials {
		t.Errorf("wrong username error = %v, want ErrInvalidCredentials", err)
	}
}

func TestAuthenticateDisabled(t *testing.T) {
	a := NewAuthenticator(Config{Enabled: false})
	if a.IsEnabled() {
		t.Errorf("IsEnabled = true, want false")
	}
	if _, _, err := a.Authenticate("admin", "x"); err != ErrAuthDisabled {
		t.Errorf("disabled auth error = %v, want ErrAuthDisabled", err)
	}
}

func TestPreHashedPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	a := NewAuthenticator(Config{Enabled: true, Username: "admin", Password: hash})
	if _, _, err := a.Authenticate("admin", "s3cret"); err != nil {
		t.Errorf("Authenticate against pre-hashed password failed: %v", err)
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	a := NewAuthenticator(Config{Enabled: true, Username: "admin", Password: "x", JWTSecret: "s"})
	if _, err := a.ValidateToken("not.a.token"); err != ErrInvalidToken {
		t.Errorf("garbage token error = %v, want ErrInvalidToken", err)
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	issuer := NewJWTManager("secret-a", time.Hour)
	verifier := NewJWTManager("secret-b", time.Hour)

	token, _, err := issuer.GenerateToken("admin")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if _, err := verifier.ValidateToken(token); err != ErrInvalidToken {
		t.Errorf("cross-secret validation error = %v, want ErrInvalidToken", err)
	}
}

func TestExpiredToken(t *testing.T) {
	m := NewJWTManager("secret", time.Millisecond)
	token, _, err := m.GenerateToken("admin")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	if _, err := m.ValidateToken(token); err != ErrExpiredToken {
		t.Errorf("expired token error = %v, want ErrExpiredToken", err)
	}
}
