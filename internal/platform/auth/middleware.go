package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
	StaffIDKey   contextKey = "staff_id"
)

// Claims carried by staff tokens. Subject is the staff email.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string   `json:"tenant_id"`
	Roles    []string `json:"roles"`
	StaffID  string   `json:"staff_id,omitempty"`
}

type JWTConfig struct {
	Issuer     string
	SigningKey []byte
	// Skipper bypasses authentication for matching requests.
	Skipper func(c echo.Context) bool
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			claims, err := parseBearer(authorization(c), cfg)
			if err != nil {
				return err
			}
			setClaims(c, claims)
			return next(c)
		}
	}
}

// AccessTokenParam carries the token on websocket upgrades, where browsers
// cannot set an Authorization header.
const AccessTokenParam = "access_token"

// authorization returns the Authorization header, falling back to the
// access_token query parameter for websocket upgrades only.
func authorization(c echo.Context) string {
	if h := c.Request().Header.Get("Authorization"); h != "" {
		return h
	}
	if c.IsWebSocket() {
		if tok := c.QueryParam(AccessTokenParam); tok != "" {
			return "Bearer " + tok
		}
	}
	return ""
}

func parseBearer(header string, cfg JWTConfig) (*Claims, error) {
	if header == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	scheme, tokenStr, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(tokenStr) == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(tokenStr), claims, func(t *jwt.Token) (interface{}, error) {
		return cfg.SigningKey, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	return claims, nil
}

func setClaims(c echo.Context, claims *Claims) {
	// read by the tenant middleware
	c.Set("jwt_tenant_id", claims.TenantID)

	ctx := c.Request().Context()
	ctx = context.WithValue(ctx, UserIDKey, claims.Subject)
	ctx = context.WithValue(ctx, UserRolesKey, claims.Roles)
	ctx = context.WithValue(ctx, StaffIDKey, claims.StaffID)
	c.SetRequest(c.Request().WithContext(ctx))
}

// DevAuthMiddleware treats anonymous requests as an admin of the default
// tenant. A bearer token, when present, is still validated so login can be
// exercised locally.
func DevAuthMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if authorization(c) == "" || len(cfg.SigningKey) == 0 {
				setClaims(c, &Claims{
					RegisteredClaims: jwt.RegisteredClaims{Subject: "dev-user"},
					Roles:            []string{RoleAdmin},
				})
				return next(c)
			}
			return JWTMiddleware(cfg)(next)(c)
		}
	}
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}

// StaffIDFromContext returns the staff row id of the caller, empty for dev
// and service tokens.
func StaffIDFromContext(ctx context.Context) string {
	sid, _ := ctx.Value(StaffIDKey).(string)
	return sid
}

// StaffUUID parses StaffIDFromContext, returning nil when absent or malformed.
func StaffUUID(ctx context.Context) *uuid.UUID {
	id, err := uuid.Parse(StaffIDFromContext(ctx))
	if err != nil {
		return nil
	}
	return &id
}
