package security

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"kiddoquest/internal/models"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestTokenRoundTrip(t *testing.T) {
	v, err := NewTokenVerifier(testSecret, "kiddoquest")
	if err != nil {
		t.Fatalf("NewTokenVerifier() error = %v", err)
	}

	want := models.Identity{UserID: "user-1", FamilyID: "fam-1", Role: models.RoleParent}
	token, err := v.Issue(want, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	got, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got != want {
		t.Errorf("Verify() = %+v, want %+v", got, want)
	}
}

func TestVerifyRejects(t *testing.T) {
	v, _ := NewTokenVerifier(testSecret, "kiddoquest")
	other, _ := NewTokenVerifier("ffffffffffffffffffffffffffffffff", "kiddoquest")

	expired, _ := v.Issue(models.Identity{UserID: "u", FamilyID: "f", Role: models.RoleParent}, -time.Minute)
	forged, _ := other.Issue(models.Identity{UserID: "u", FamilyID: "f", Role: models.RoleAdmin}, time.Hour)
	noFamily, _ := v.Issue(models.Identity{UserID: "u", Role: models.RoleParent}, time.Hour)
	badRole, _ := v.Issue(models.Identity{UserID: "u", FamilyID: "f", Role: "owner"}, time.Hour)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: models.RoleSystem}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := map[string]string{
		"expired":        expired,
		"wrong secret":   forged,
		"missing family": noFamily,
		"unknown role":   badRole,
		"alg none":       none,
		"garbage":        "not.a.token",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestSystemIdentityNeedsNoFamily(t *testing.T) {
	v, _ := NewTokenVerifier(testSecret, "")
	token, _ := v.Issue(models.Identity{UserID: "scheduler", Role: models.RoleSystem}, time.Hour)
	id, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !id.IsSystem() {
		t.Error("expected system identity")
	}
}

func TestNewTokenVerifierShortSecret(t *testing.T) {
	if _, err := NewTokenVerifier("short", ""); err == nil {
		t.Error("expected error for short secret")
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc.def", "abc.def", false},
		{"bearer xyz", "xyz", false},
		{"Basic dXNlcjpwYXNz", "", true},
		{"Bearer ", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := BearerToken(tt.header)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("BearerToken(%q) = %q, %v", tt.header, got, err)
		}
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 3)

	for i := 0; i < 3; i++ {
		if !rl.Allow("fam-1:user-1") {
			t.Fatalf("request %d should be allowed within burst", i)
		}
	}
	if rl.Allow("fam-1:user-1") {
		t.Error("request beyond burst should be limited")
	}
	if !rl.Allow("fam-1:user-2") {
		t.Error("other keys have their own bucket")
	}

	rl.cleanup(time.Now().Add(time.Hour))
	if len(rl.visitors) != 0 {
		t.Errorf("idle visitors not removed: %d left", len(rl.visitors))
	}
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	if got := GetClientIP(r); got != "10.0.0.1:1234" {
		t.Errorf("GetClientIP() = %q", got)
	}
	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.2")
	if got := GetClientIP(r); got != "203.0.113.5" {
		t.Errorf("GetClientIP() = %q", got)
	}
}
