package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/grcplatform/grc/internal/domain/user"
)

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name string
		user *user.User
		want int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"viewer", &user.User{ID: 1, Role: user.RoleViewer}, http.StatusForbidden},
		{"editor", &user.User{ID: 2, Role: user.RoleEditor}, http.StatusOK},
		{"admin", &user.User{ID: 3, Role: user.RoleAdmin}, http.StatusOK},
	}
	h := RequireRole(user.RoleAdmin, user.RoleEditor)(okHandler())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/frameworks/", http.NoBody)
			if tt.user != nil {
				req = req.WithContext(WithPrincipal(req.Context(), tt.user, nil))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
