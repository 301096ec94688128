package auth

import (
	"errors"
	"testing"
	"time"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse 1")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hash == "correct horse 1" {
		t.Fatal("hash must not equal the plaintext")
	}
	if !VerifyPassword("correct horse 1", hash) {
		t.Error("valid password rejected")
	}
	if VerifyPassword("wrong horse 1", hash) {
		t.Error("wrong password accepted")
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		ok       bool
	}{
		{"valid", "abcdef12", true},
		{"too short", "ab12", false},
		{"no digit", "abcdefgh", false},
		{"no letter", "12345678", false},
		{"long mixed", "averylongpassword42", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password, 8)
			if tt.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected rejection")
			}
		})
	}
}

func TestJWTRoundTrip(t *testing.T) {
	mgr := NewJWTManager("test-secret", time.Hour, 24*time.Hour)

	pair, err := mgr.GenerateTokenPair(UserClaims{UserID: "u-1", Email: "a@b.c"})
	if err != nil {
		t.Fatalf("GenerateTokenPair failed: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("empty token in pair")
	}

	claims, err := mgr.ValidateAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken failed: %v", err)
	}
	if claims.UserID != "u-1" || claims.Email != "a@b.c" {
		t.Errorf("claims mismatch: %+v", claims)
	}
}

func TestRefreshTokenNotAcceptedAsAccess(t *testing.T) {
	mgr := NewJWTManager("test-secret", time.Hour, 24*time.Hour)
	pair, err := mgr.GenerateTokenPair(UserClaims{UserID: "u-1", Email: "a@b.c"})
	if err != nil {
		t.Fatalf("GenerateTokenPair failed: %v", err)
	}

	if _, err := mgr.ValidateAccessToken(pair.RefreshToken); err == nil {
		t.Fatal("refresh token accepted on the access path")
	}
	if _, err := mgr.ValidateRefreshToken(pair.AccessToken); err == nil {
		t.Fatal("access token accepted on the refresh path")
	}
	if _, err := mgr.ValidateRefreshToken(pair.RefreshToken); err != nil {
		t.Errorf("valid refresh token rejected: %v", err)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	mgr := NewJWTManager("test-secret", -time.Minute, -time.Minute)
	pair, err := mgr.GenerateTokenPair(UserClaims{UserID: "u-1", Email: "a@b.c"})
	if err != nil {
		t.Fatalf("GenerateTokenPair failed: %v", err)
	}

	_, err = mgr.ValidateAccessToken(pair.AccessToken)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestWrongSecretRejected(t *testing.T) {
	mgr := NewJWTManager("secret-a", time.Hour, 24*time.Hour)
	other := NewJWTManager("secret-b", time.Hour, 24*time.Hour)

	pair, err := mgr.GenerateTokenPair(UserClaims{UserID: "u-1", Email: "a@b.c"})
	if err != nil {
		t.Fatalf("GenerateTokenPair failed: %v", err)
	}
	if _, err := other.ValidateAccessToken(pair.AccessToken); err == nil {
		t.Fatal("token validated under a different secret")
	}
}
