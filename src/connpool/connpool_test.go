package connpool

import (
	"net/url"
	"testing"
	"time"
)

func TestTokenSignerRoundTrip(t *testing.T) {
	signer := NewTokenSigner("shared-secret")

	token, err := signer.Sign("sess-123", time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	claims, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.SessionID != "sess-123" {
		t.Errorf("SessionID = %q, want sess-123", claims.SessionID)
	}
}

func TestTokenSignerRejectsExpired(t *testing.T) {
	signer := NewTokenSigner("shared-secret")

	token, err := signer.Sign("sess-123", -time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := signer.Verify(token); err == nil {
		t.Fatal("expected Verify to reject an expired token")
	}
}

func TestTokenSignerRejectsWrongSecret(t *testing.T) {
	signer := NewTokenSigner("shared-secret")
	other := NewTokenSigner("different-secret")

	token, err := signer.Sign("sess-123", time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := other.Verify(token); err == nil {
		t.Fatal("expected Verify to reject a token signed with a different secret")
	}
}

func TestAuthConfigCheckOrigin(t *testing.T) {
	a := AuthConfig{AllowedOrigins: []string{"https://example.com"}}
	if !a.CheckOrigin("https://example.com") {
		t.Error("expected allow-listed origin to pass")
	}
	if a.CheckOrigin("https://evil.example") {
		t.Error("expected non-allow-listed origin to fail")
	}

	open := AuthConfig{}
	if !open.CheckOrigin("https://anything.example") {
		t.Error("expected empty allow-list to accept all origins")
	}
}

func TestAuthConfigCheckBearer(t *testing.T) {
	a := AuthConfig{BearerToken: "secret-token"}

	if !a.CheckBearer("Bearer secret-token", url.Values{}) {
		t.Error("expected matching Authorization header to pass")
	}
	if !a.CheckBearer("", url.Values{"token": {"secret-token"}}) {
		t.Error("expected matching ?token= query param to pass")
	}
	if a.CheckBearer("Bearer wrong", url.Values{}) {
		t.Error("expected mismatched token to fail")
	}
}

func TestPoolAdmitRejectsOverCapacity(t *testing.T) {
	p := NewPool(1)

	if _, err := p.Admit("https://example.com"); err != nil {
		t.Fatalf("first Admit: %v", err)
	}
	if _, err := p.Admit("https://example.com"); err != ErrServerOverloaded {
		t.Fatalf("second Admit error = %v, want ErrServerOverloaded", err)
	}
}

func TestPoolRemove(t *testing.T) {
	p := NewPool(0)
	conn, err := p.Admit("https://example.com")
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if p.Len() != 1 {
		t.Fatalf("Len = %d, want 1", p.Len())
	}
	p.Remove(conn.ID)
	if p.Len() != 0 {
		t.Fatalf("Len after Remove = %d, want 0", p.Len())
	}
}
