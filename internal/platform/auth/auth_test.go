package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret-key-32-bytes-long!!!")

func makeToken(subject, role string, exp time.Time) string {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Role: role,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, _ := tok.SignedString(testSecret)
	return signed
}

func newVerifier() JWTVerifier { return JWTVerifier{Secret: testSecret} }

// ─── JWTVerifier ────────────────────────────────────────────────────────────

func TestJWTVerifier_ValidToken(t *testing.T) {
	tok := makeToken("mod-1", "moderator", time.Now().Add(time.Hour))
	claims, err := newVerifier().Parse(tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.Subject != "mod-1" || claims.Role != "moderator" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestJWTVerifier_Rejects(t *testing.T) {
	valid := makeToken("mod-1", "admin", time.Now().Add(time.Hour))
	parts := strings.Split(valid, ".")
	cases := map[string]struct {
		v   JWTVerifier
		tok string
	}{
		"expired":      {newVerifier(), makeToken("mod-1", "admin", time.Now().Add(-time.Hour))},
		"wrong secret": {JWTVerifier{Secret: []byte("wrong-secret")}, valid},
		"no secret":    {JWTVerifier{}, valid},
		"malformed":    {newVerifier(), "not.a.valid.token"},
		"tampered":     {newVerifier(), parts[0] + ".dGFtcGVyZWQ." + parts[2]},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := tc.v.Parse(tc.tok); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

// ─── RequireUser ────────────────────────────────────────────────────────────

func callRequireUser(req *http.Request) (*httptest.ResponseRecorder, string) {
	rr := httptest.NewRecorder()
	var role string
	RequireUser(newVerifier())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub, _ := SubjectFromContext(r.Context())
		role, _ = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(sub))
	})).ServeHTTP(rr, req)
	return rr, role
}

func TestRequireUser_ValidBearer(t *testing.T) {
	tok := makeToken("mod-42", "moderator", time.Now().Add(time.Hour))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)

	rr, role := callRequireUser(req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Body.String() != "mod-42" {
		t.Fatalf("expected 'mod-42' in body, got %q", rr.Body.String())
	}
	if role != "moderator" {
		t.Fatalf("expected role 'moderator', got %q", role)
	}
}

func TestRequireUser_Unauthorized(t *testing.T) {
	cases := map[string]string{
		"missing header": "",
		"basic scheme":   "Basic dXNlcjpwYXNz",
		"invalid token":  "Bearer invalid.token.here",
		"expired token":  "Bearer " + makeToken("mod-1", "admin", time.Now().Add(-time.Hour)),
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rr, _ := callRequireUser(req)
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rr.Code)
			}
		})
	}
}

// ─── RequireModerator ───────────────────────────────────────────────────────

func callRequireModerator(ctx context.Context) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/moderation", nil).WithContext(ctx)
	rr := httptest.NewRecorder()
	RequireModerator(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rr, req)
	return rr
}

func TestRequireModerator(t *testing.T) {
	cases := []struct {
		role string
		want int
	}{
		{"admin", http.StatusOK},
		{"ADMIN", http.StatusOK},
		{"moderator", http.StatusOK},
		{"user", http.StatusForbidden},
		{"", http.StatusForbidden},
	}
	for _, tc := range cases {
		rr := callRequireModerator(WithSubject(context.Background(), "someone", tc.role))
		if rr.Code != tc.want {
			t.Fatalf("role %q: expected %d, got %d", tc.role, tc.want, rr.Code)
		}
	}
}
