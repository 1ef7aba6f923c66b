package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"leadgrid.io/internal/auth"
)

func TestRequireAccountType(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	guarded := RequireAccountType(auth.AccountTypeAdmin)(okHandler)

	t.Run("no identity", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		guarded.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
		if rec.Header().Get("WWW-Authenticate") == "" {
			t.Fatal("expected WWW-Authenticate challenge")
		}
	})

	t.Run("wrong kind", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		ctx := auth.ContextWithIdentity(req.Context(), auth.Identity{
			PrincipalID: "u-1",
			AccountType: auth.AccountTypeUser,
		})
		guarded.ServeHTTP(rec, req.WithContext(ctx))
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("matching kind", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		ctx := auth.ContextWithIdentity(req.Context(), auth.Identity{
			PrincipalID: "a-1",
			AccountType: auth.AccountTypeAdmin,
		})
		guarded.ServeHTTP(rec, req.WithContext(ctx))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want 204", rec.Code)
		}
	})
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   string
		ok     bool
	}{
		{"missing", "", "", false},
		{"bare token", "abc123", "", false},
		{"wrong scheme", "Basic abc123", "", false},
		{"bearer", "Bearer abc123", "abc123", true},
		{"case insensitive scheme", "bearer abc123", "abc123", true},
		{"empty token", "Bearer   ", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			got, ok := extractBearerToken(req)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("got (%q, %v), want (%q, %v)", got, ok, tc.want, tc.ok)
			}
		})
	}
}
