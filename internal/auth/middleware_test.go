package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func issueToken(t *testing.T, secret []byte, roles ...string) string {
	t.Helper()
	token, err := Issue(secret, Claims{UserID: "user-1", Roles: roles}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return token
}

func TestMiddleware(t *testing.T) {
	secret := []byte("test-secret")
	token := issueToken(t, secret, RoleOrganizer)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserID(r.Context()) != "user-1" {
			t.Errorf("claims missing from context")
		}
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name    string
		path    string
		header  string
		upgrade bool
		want    int
	}{
		{name: "bearer header", path: "/api/v1/events/e1/schedules", header: "Bearer " + token, want: http.StatusOK},
		{name: "missing token", path: "/api/v1/events/e1/schedules", want: http.StatusUnauthorized},
		{name: "garbage token", path: "/api/v1/events/e1/schedules", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "query token without upgrade", path: "/api/v1/events?token=" + token, want: http.StatusUnauthorized},
		{name: "query token on other path", path: "/api/v1/events/e1/schedules?token=" + token, upgrade: true, want: http.StatusUnauthorized},
		{name: "query token on websocket", path: "/api/v1/events?eventId=e1&token=" + token, upgrade: true, want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.upgrade {
				req.Header.Set("Upgrade", "websocket")
			}
			rr := httptest.NewRecorder()
			Middleware(secret)(next).ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d body=%s", tt.want, rr.Code, rr.Body.String())
			}
			if tt.want == http.StatusUnauthorized && rr.Header().Get("WWW-Authenticate") != "Bearer" {
				t.Fatal("missing WWW-Authenticate header")
			}
		})
	}
}

func TestRequireRoles(t *testing.T) {
	secret := []byte("test-secret")
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	handler := Middleware(secret)(RequireRoles(RoleOrganizer, RoleAdmin)(ok))

	tests := []struct {
		name  string
		roles []string
		want  int
	}{
		{name: "organizer", roles: []string{RoleOrganizer}, want: http.StatusNoContent},
		{name: "admin", roles: []string{RoleAdmin}, want: http.StatusNoContent},
		{name: "judge", roles: []string{RoleJudge}, want: http.StatusForbidden},
		{name: "no roles", want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/events/e1/schedules", nil)
			req.Header.Set("Authorization", "Bearer "+issueToken(t, secret, tt.roles...))
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rr.Code)
			}
		})
	}
}

func TestRequireRolesWithoutClaims(t *testing.T) {
	rr := httptest.NewRecorder()
	RequireRoles(RoleAdmin)(http.NotFoundHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}
