package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func TestJWTVerifierParse(t *testing.T) {
	verifier := JWTVerifier{Secret: []byte(testSecret)}
	other := JWTVerifier{Secret: []byte("other-secret")}

	valid := tokenFor(t, "user-1", RoleAdmin)
	expired, _ := verifier.Sign(Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}})
	foreign, _ := other.Sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}})
	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "user-1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	cases := []struct {
		name  string
		token string
		ok    bool
	}{
		{"valid", valid, true},
		{"expired", expired, false},
		{"wrong secret", foreign, false},
		{"alg none", unsigned, false},
		{"garbage", "abc.def.ghi", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			claims, err := verifier.Parse(c.token)
			if (err == nil) != c.ok {
				t.Fatalf("Parse err = %v, want ok=%v", err, c.ok)
			}
			if c.ok && (claims.Subject != "user-1" || claims.Role != RoleAdmin) {
				t.Fatalf("claims = %+v", claims)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc ", "abc", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"abc", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := bearerToken(c.header)
		if got != c.want || ok != c.ok {
			t.Fatalf("bearerToken(%q) = %q, %v; want %q, %v", c.header, got, ok, c.want, c.ok)
		}
	}
}

func TestRequireUser_MissingSubject(t *testing.T) {
	verifier := JWTVerifier{Secret: []byte(testSecret)}
	token, _ := verifier.Sign(Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}})

	called := false
	h := RequireUser(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized || called {
		t.Fatalf("status = %d called=%v, want 401 and not called", rec.Code, called)
	}
}

func TestRequireUser_InjectsUserID(t *testing.T) {
	verifier := JWTVerifier{Secret: []byte(testSecret)}
	var got string
	h := RequireUser(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = UserIDFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, "user-42", ""))
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got != "user-42" {
		t.Fatalf("user id = %q, want user-42", got)
	}
}
