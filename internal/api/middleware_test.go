package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestIsAllowedOrigin(t *testing.T) {
	allowed := []string{
		"http://localhost:3000",
		"http://localhost",
		"https://localhost:8443",
		"http://127.0.0.1:5000",
		"http://127.0.0.1",
		"http://[::1]:5000",
		"chrome-extension://abcdefghijklmnopabcdefghijklmnop",
		"moz-extension://0b6f9c4e-1a2b-4c3d-8e9f-0a1b2c3d4e5f",
	}

	for _, origin := range allowed {
		if !isAllowedOrigin(origin) {
			t.Errorf("isAllowedOrigin(%q) = false, want true", origin)
		}
	}

	denied := []string{
		"https://evil.com",
		"https://localhost.evil.com",
		"http://192.168.1.1:3000",
		"",
		"ftp://localhost:3000",
		"http://localhost:not-a-port",
		"http://localhost:3000/path",
		"http://localhost:99999",
		"chrome-extension://short",
		"chrome-extension://ABCDEFGHIJKLMNOPABCDEFGHIJKLMNOP",
		"moz-extension://not-a-uuid",
	}

	for _, origin := range denied {
		if isAllowedOrigin(origin) {
			t.Errorf("isAllowedOrigin(%q) = true, want false", origin)
		}
	}
}

func TestIsLoopbackRemoteAddr(t *testing.T) {
	loopback := []string{
		"127.0.0.1:12345",
		"[::1]:12345",
	}

	for _, addr := range loopback {
		if !isLoopbackRemoteAddr(addr) {
			t.Errorf("isLoopbackRemoteAddr(%q) = false, want true", addr)
		}
	}

	nonLoopback := []string{
		"8.8.8.8:12345",
		"192.168.1.1:8080",
		"10.0.0.1:3000",
		"not-an-ip:1234",
	}

	for _, addr := range nonLoopback {
		if isLoopbackRemoteAddr(addr) {
			t.Errorf("isLoopbackRemoteAddr(%q) = true, want false", addr)
		}
	}
}

func TestCORSAllowlist_SimpleRequests(t *testing.T) {
	tests := []struct {
		name     string
		origin   string
		wantACAO string
		wantVary string
	}{
		{name: "local web app", origin: "http://localhost:3000", wantACAO: "http://localhost:3000", wantVary: "Origin"},
		{name: "chrome extension", origin: "chrome-extension://abcdefghijklmnopabcdefghijklmnop", wantACAO: "chrome-extension://abcdefghijklmnopabcdefghijklmnop", wantVary: "Origin"},
		{name: "denied origin still served", origin: "https://evil.com"},
		{name: "no origin", origin: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := CORSAllowlist()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tc.wantACAO {
				t.Errorf("ACAO = %q, want %q", got, tc.wantACAO)
			}
			if got := rr.Header().Get("Vary"); got != tc.wantVary {
				t.Errorf("Vary = %q, want %q", got, tc.wantVary)
			}
		})
	}
}

func TestCORSAllowlist_DeniedOrigin_Preflight(t *testing.T) {
	handler := CORSAllowlist()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called for denied preflight")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/fact_check", nil)
	req.Header.Set("Origin", "https://evil.com")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d for denied preflight", rr.Code, http.StatusForbidden)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("ACAO = %q, want empty for denied preflight", got)
	}
}

func TestCORSAllowlist_AllowedPreflight(t *testing.T) {
	handler := CORSAllowlist()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called for preflight")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/fact_check", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNoContent)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
}

func TestCORSAllowlist_AllowedHeaders(t *testing.T) {
	handler := CORSAllowlist()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/fact_check", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	allowHeaders := rr.Header().Get("Access-Control-Allow-Headers")
	for _, h := range []string{"Content-Type", "Authorization", "X-Request-ID"} {
		if !containsHeader(allowHeaders, h) {
			t.Errorf("Access-Control-Allow-Headers missing %q, got %q", h, allowHeaders)
		}
	}

	allowMethods := rr.Header().Get("Access-Control-Allow-Methods")
	for _, m := range []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"} {
		if !containsHeader(allowMethods, m) {
			t.Errorf("Access-Control-Allow-Methods missing %q, got %q", m, allowMethods)
		}
	}
}

func containsHeader(headerVal, target string) bool {
	for _, part := range strings.Split(headerVal, ",") {
		if strings.TrimSpace(part) == target {
			return true
		}
	}
	return false
}

func TestCORSAllowlist_VaryIsAdditive(t *testing.T) {
	handler := CORSAllowlist()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	rr.Header().Set("Vary", "Accept-Encoding")

	handler.ServeHTTP(rr, req)

	vary := rr.Header().Values("Vary")
	hasEncoding := false
	hasOrigin := false
	for _, v := range vary {
		if v == "Accept-Encoding" {
			hasEncoding = true
		}
		if v == "Origin" {
			hasOrigin = true
		}
	}
	if !hasEncoding {
		t.Errorf("Vary lost Accept-Encoding, got %v", vary)
	}
	if !hasOrigin {
		t.Errorf("Vary missing Origin, got %v", vary)
	}
}

func TestCORSAllowlist_PreflightWithRequestHeaders(t *testing.T) {
	handler := CORSAllowlist()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called for preflight")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/fact_check", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type,authorization")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNoContent)
	}

	allowHeaders := rr.Header().Get("Access-Control-Allow-Headers")
	if !containsHeader(allowHeaders, "Content-Type") {
		t.Errorf("Access-Control-Allow-Headers missing Content-Type, got %q", allowHeaders)
	}
	if !containsHeader(allowHeaders, "Authorization") {
		t.Errorf("Access-Control-Allow-Headers missing Authorization, got %q", allowHeaders)
	}
}

func TestIsLoopbackRemoteAddr_EdgeCases(t *testing.T) {
	cases := []struct {
		addr string
		want bool
	}{
		{"::1", true},
		{"", false},
		{"garbage", false},
		{"[::1]", true},
		{"127.0.0.1", true},
	}

	for _, tc := range cases {
		got := isLoopbackRemoteAddr(tc.addr)
		if got != tc.want {
			t.Errorf("isLoopbackRemoteAddr(%q) = %v, want %v", tc.addr, got, tc.want)
		}
	}
}

func TestLoopbackGuard_Rejects_NonLoopback(t *testing.T) {
	handler := LoopbackGuard()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called for non-loopback")
	}))

	req := httptest.NewRequest(http.MethodGet, "/get/abc123_summary.json", nil)
	req.RemoteAddr = "8.8.8.8:12345"
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusForbidden)
	}

	body := decodeJSONBody(t, rr)
	if code, ok := body["code"].(string); !ok || code != "FORBIDDEN" {
		t.Errorf("error code = %v, want FORBIDDEN", body["code"])
	}
}

func TestLoopbackGuard_AllowsLoopback(t *testing.T) {
	for _, addr := range []string{"127.0.0.1:12345", "[::1]:12345"} {
		called := false
		handler := LoopbackGuard()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodDelete, "/delete/abc123_summary.json", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if !called || rr.Code != http.StatusOK {
			t.Errorf("RemoteAddr %s: called = %v, status = %d; want handler to run", addr, called, rr.Code)
		}
	}
}

func TestAuthMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name   string
		tokens TokenSource
		header string
		want   int
	}{
		{name: "no token source", tokens: nil, want: http.StatusOK},
		{name: "empty token leaves api open", tokens: StaticToken(""), want: http.StatusOK},
		{name: "missing header", tokens: StaticToken("secret"), want: http.StatusUnauthorized},
		{name: "wrong scheme", tokens: StaticToken("secret"), header: "Basic secret", want: http.StatusUnauthorized},
		{name: "wrong token", tokens: StaticToken("secret"), header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "valid token", tokens: StaticToken("secret"), header: "Bearer secret", want: http.StatusOK},
		{
			name:   "token lookup fails",
			tokens: func(context.Context) (string, error) { return "", errors.New("db closed") },
			header: "Bearer secret",
			want:   http.StatusInternalServerError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/status", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()

			AuthMiddleware(tc.tokens, testLogger())(ok).ServeHTTP(rr, req)

			if rr.Code != tc.want {
				t.Errorf("status = %d, want %d", rr.Code, tc.want)
			}
		})
	}
}

func TestHealthRoute_NoAuth_CORS_Integration(t *testing.T) {
	cfg := testConfig(&fakePipeline{})
	cfg.Tokens = StaticToken("secret")
	router := NewRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("GET /status without token = %d, want 401", rr.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	if code := decodeJSONBody(t, rr)["code"]; code != "INTERNAL_ERROR" {
		t.Errorf("code = %v, want INTERNAL_ERROR", code)
	}
}
