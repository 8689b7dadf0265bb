package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func withRoles(roles ...string) context.Context {
	return context.WithValue(context.Background(), UserRolesKey, roles)
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name     string
		roles    []string
		required []string
		wantCode int
	}{
		{"matching role", []string{RolePharmacist}, []string{RolePharmacist}, http.StatusOK},
		{"one of many", []string{RoleNurse}, []string{RoleDoctor, RoleNurse}, http.StatusOK},
		{"admin passes", []string{RoleAdmin}, []string{RoleDoctor}, http.StatusOK},
		{"wrong role", []string{RoleReceptionist}, []string{RolePharmacist}, http.StatusForbidden},
		{"no roles", nil, []string{RoleDoctor}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(withRoles(tt.roles...))
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := RequireRole(tt.required...)(ok)(c)
			if tt.wantCode == http.StatusOK {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			expectStatus(t, err, tt.wantCode)
		})
	}
}

func TestValidRole(t *testing.T) {
	for _, r := range Roles {
		if !ValidRole(r) {
			t.Errorf("expected %s to be valid", r)
		}
	}
	if ValidRole("physician") || ValidRole("") {
		t.Error("unexpected valid role")
	}
}

func TestHasRole_EmptyContext(t *testing.T) {
	if HasRole(context.Background(), RoleDoctor) {
		t.Error("expected no roles on empty context")
	}
}
