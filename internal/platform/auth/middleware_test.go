package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func runMiddleware(t *testing.T, mw echo.MiddlewareFunc, header string, handler echo.HandlerFunc) error {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	c := e.NewContext(req, httptest.NewRecorder())
	return mw(handler)(c)
}

func ok(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	httpErr, isHTTP := err.(*echo.HTTPError)
	if !isHTTP {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "", ok)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	for _, header := range []string{"Token abc123", "Bearer", "Bearer ", "Basic dXNlcjpwYXNz"} {
		t.Run(header, func(t *testing.T) {
			err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), header, ok)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ClaimsExtraction(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "nurse@city.local",
			Issuer:    "hms",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TenantID: "city_general",
		Roles:    []string{RoleNurse},
		StaffID:  "7c0e8b8f-5a6a-4db4-8d6f-9a1c2b3d4e5f",
	}
	tokenStr := createTestToken(t, claims, testSigningKey)

	var called bool
	err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Issuer: "hms"}), "Bearer "+tokenStr, func(c echo.Context) error {
		called = true
		ctx := c.Request().Context()
		if got := UserIDFromContext(ctx); got != "nurse@city.local" {
			t.Errorf("user id = %q", got)
		}
		if roles := RolesFromContext(ctx); len(roles) != 1 || roles[0] != RoleNurse {
			t.Errorf("roles = %v", roles)
		}
		if got := StaffIDFromContext(ctx); got != claims.StaffID {
			t.Errorf("staff id = %q", got)
		}
		if got := c.Get("jwt_tenant_id"); got != "city_general" {
			t.Errorf("jwt_tenant_id = %v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("handler was not called")
	}
}

func TestJWTMiddleware_Rejects(t *testing.T) {
	valid := jwt.RegisteredClaims{Subject: "x", Issuer: "hms", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	otherIssuer := valid
	otherIssuer.Issuer = "someone-else"

	tests := []struct {
		name  string
		token string
	}{
		{"expired", createTestToken(t, Claims{RegisteredClaims: expired}, testSigningKey)},
		{"wrong key", createTestToken(t, Claims{RegisteredClaims: valid}, []byte("another-key-entirely-000000000000"))},
		{"wrong issuer", createTestToken(t, Claims{RegisteredClaims: otherIssuer}, testSigningKey)},
		{"garbage", "not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Issuer: "hms"}), "Bearer "+tt.token, ok)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_RejectsNoneAlgorithm(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "x"}})
	tokenStr, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	err = runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+tokenStr, ok)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_Skipper(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/v1/auth/login")

	if err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Skipper: AuthSkipper})(ok)(c); err != nil {
		t.Fatalf("expected public path to skip auth, got %v", err)
	}
}

func TestDevAuthMiddleware_AnonymousIsAdmin(t *testing.T) {
	err := runMiddleware(t, DevAuthMiddleware(JWTConfig{SigningKey: testSigningKey}), "", func(c echo.Context) error {
		if !HasRole(c.Request().Context(), RolePharmacist) {
			t.Error("dev user should pass every role check")
		}
		if UserIDFromContext(c.Request().Context()) != "dev-user" {
			t.Error("expected dev-user")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDevAuthMiddleware_ValidatesPresentToken(t *testing.T) {
	err := runMiddleware(t, DevAuthMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer junk", ok)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestStaffUUID(t *testing.T) {
	id := uuid.New()
	ctx := context.WithValue(context.Background(), StaffIDKey, id.String())
	if got := StaffUUID(ctx); got == nil || *got != id {
		t.Errorf("StaffUUID() = %v, want %s", got, id)
	}
	if got := StaffUUID(context.Background()); got != nil {
		t.Errorf("expected nil without staff id, got %v", got)
	}
	bad := context.WithValue(context.Background(), StaffIDKey, "dev-user")
	if got := StaffUUID(bad); got != nil {
		t.Errorf("expected nil for malformed id, got %v", got)
	}
}

func TestJWTMiddleware_WebSocketQueryToken(t *testing.T) {
	token := createTestToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "nurse@example.org", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		TenantID:         "city",
		Roles:            []string{RoleNurse},
	}, testSigningKey)
	mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})

	newReq := func(target string, upgrade bool) *http.Request {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		if upgrade {
			req.Header.Set("Connection", "Upgrade")
			req.Header.Set("Upgrade", "websocket")
		}
		return req
	}

	t.Run("upgrade with query token", func(t *testing.T) {
		e := echo.New()
		c := e.NewContext(newReq("/api/v1/live?topic=beds&access_token="+token, true), httptest.NewRecorder())
		var user, tenant string
		err := mw(func(c echo.Context) error {
			user = UserIDFromContext(c.Request().Context())
			tenant, _ = c.Get("jwt_tenant_id").(string)
			return nil
		})(c)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user != "nurse@example.org" || tenant != "city" {
			t.Errorf("expected claims from query token, got user=%q tenant=%q", user, tenant)
		}
	})

	t.Run("plain request ignores query token", func(t *testing.T) {
		e := echo.New()
		c := e.NewContext(newReq("/api/v1/patients?access_token="+token, false), httptest.NewRecorder())
		expectStatus(t, mw(ok)(c), http.StatusUnauthorized)
	})

	t.Run("upgrade with bad query token", func(t *testing.T) {
		e := echo.New()
		c := e.NewContext(newReq("/api/v1/live?access_token=garbage", true), httptest.NewRecorder())
		expectStatus(t, mw(ok)(c), http.StatusUnauthorized)
	})
}
