package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                           "/",
		"/metrics":                   "/metrics",
		"/v1/auth/login":             "/v1/auth/login",
		"/v1/auth/login/":            "/v1/auth/login",
		"/v1/auth/refresh?source=ui": "/v1/auth/refresh",
		"/v1/auth/unknown":           "/other",
		"/v1/accounts/abc":           "/other",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
