package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/artxchange/skillswap/internal/apperr"
)

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *http.Request)
		want  string
	}{
		{"none", func(*http.Request) {}, ""},
		{"query", func(r *http.Request) { r.URL.RawQuery = "token=q1" }, "q1"},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer h1") }, "h1"},
		{"bearer lowercase", func(r *http.Request) { r.Header.Set("Authorization", "bearer h2") }, "h2"},
		{"basic ignored", func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") }, ""},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: "c1"}) }, "c1"},
		{"query wins", func(r *http.Request) {
			r.URL.RawQuery = "token=q1"
			r.Header.Set("Authorization", "Bearer h1")
		}, "q1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			tt.setup(r)
			if got := TokenFromRequest(r); got != tt.want {
				t.Errorf("TokenFromRequest() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHandshakeToken_IgnoresCookie(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "c1"})
	if got := HandshakeToken(r); got != "" {
		t.Errorf("HandshakeToken() = %q, want empty", got)
	}

	r.Header.Set("Authorization", "Bearer h1")
	if got := HandshakeToken(r); got != "h1" {
		t.Errorf("HandshakeToken() = %q, want h1", got)
	}
}

func TestContextUser(t *testing.T) {
	if _, ok := UserFrom(context.Background()); ok {
		t.Error("empty context must not carry a user")
	}
	ctx := WithUser(context.Background(), "alice")
	if id, ok := UserFrom(ctx); !ok || id != "alice" {
		t.Errorf("UserFrom() = %q, %v", id, ok)
	}
}

func TestJWTVerifier_IssueAndVerify(t *testing.T) {
	v := NewJWTVerifier("s3cret")

	token, err := v.Issue("alice", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	id, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if id != "alice" {
		t.Errorf("expected alice, got %q", id)
	}
}

func TestJWTVerifier_SubjectFallback(t *testing.T) {
	claims := jwt.RegisteredClaims{Subject: "bob", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))

	id, err := NewJWTVerifier("s3cret").Verify(context.Background(), token)
	if err != nil || id != "bob" {
		t.Errorf("Verify() = %q, %v; want bob", id, err)
	}
}

func TestJWTVerifier_Rejects(t *testing.T) {
	v := NewJWTVerifier("s3cret")
	other := NewJWTVerifier("different")

	expired, _ := v.Issue("alice", -time.Minute)
	wrongKey, _ := other.Issue("alice", time.Hour)
	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("s3cret"))
	wrongAlg, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{UserID: "alice"}).SignedString([]byte("s3cret"))

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt"},
		{"expired", expired},
		{"wrong key", wrongKey},
		{"no subject", noSubject},
		{"wrong algorithm", wrongAlg},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.token)
			if !apperr.Is(err, apperr.KindAuthentication) {
				t.Errorf("expected authentication error, got %v", err)
			}
		})
	}
}

func TestStaticVerifier(t *testing.T) {
	v := StaticVerifier{"t-alice": "alice"}
	if id, err := v.Verify(context.Background(), "t-alice"); err != nil || id != "alice" {
		t.Errorf("Verify() = %q, %v", id, err)
	}
	if _, err := v.Verify(context.Background(), "nope"); !apperr.Is(err, apperr.KindAuthentication) {
		t.Errorf("expected authentication error, got %v", err)
	}
}
