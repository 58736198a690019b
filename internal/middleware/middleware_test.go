package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"van-dispatch/internal/config"
	"van-dispatch/internal/logger"
	"van-dispatch/internal/services"

	"github.com/golang-jwt/jwt/v4"
)

var authCfg = config.AuthConfig{JWTSecret: "test-secret", Issuer: "pet-care-admin", AdminRole: "admin"}

func okHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := ClaimsFromContext(r.Context()); !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func signed(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestAuthMiddleware(t *testing.T) {
	j := NewJWT(&authCfg)
	h := Auth(j, logger.NewDiscard())(http.HandlerFunc(okHandler))

	valid, err := j.GenerateToken("admin@example.com", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	exp := time.Now().Add(time.Hour).Unix()

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + valid, http.StatusOK},
		{"lowercase scheme", "bearer " + valid, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"no scheme", valid, http.StatusUnauthorized},
		{"garbage", "Bearer not-a-token", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signed(t, "other", jwt.MapClaims{"role": "admin", "iss": "pet-care-admin", "exp": exp}), http.StatusUnauthorized},
		{"wrong role", "Bearer " + signed(t, "test-secret", jwt.MapClaims{"role": "groomer", "iss": "pet-care-admin", "exp": exp}), http.StatusUnauthorized},
		{"wrong issuer", "Bearer " + signed(t, "test-secret", jwt.MapClaims{"role": "admin", "iss": "someone", "exp": exp}), http.StatusUnauthorized},
		{"expired", "Bearer " + signed(t, "test-secret", jwt.MapClaims{"role": "admin", "iss": "pet-care-admin", "exp": time.Now().Add(-time.Minute).Unix()}), http.StatusUnauthorized},
	}

	for _, c := range cases {
		req := httptest.NewRequest(http.MethodGet, "/vans?date=2024-06-01", nil)
		if c.header != "" {
			req.Header.Set("Authorization", c.header)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != c.want {
			t.Fatalf("%s: got %d, want %d", c.name, rr.Code, c.want)
		}
		if c.want == http.StatusUnauthorized {
			var body map[string]interface{}
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("%s: decode: %v", c.name, err)
			}
			if body["success"] != false || body["message"] != "Unauthorized" {
				t.Fatalf("%s: unexpected body %s", c.name, rr.Body.String())
			}
		}
	}
}

func TestRateLimitWithoutRedisAllows(t *testing.T) {
	limiter := services.NewRateLimiterService(nil, &config.RateLimitConfig{Enabled: true, DefaultRPM: 1}, logger.NewDiscard())
	h := RateLimit(limiter, logger.NewDiscard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/vans/generate-weekly-routes", nil))
		if rr.Code != http.StatusNoContent {
			t.Fatalf("request %d: got %d", i, rr.Code)
		}
		if rr.Header().Get("X-RateLimit-Limit") == "" {
			t.Fatal("missing X-RateLimit-Limit header")
		}
	}
}

func resolvedIP(trustProxy bool, req *http.Request) string {
	var got string
	RealIP(trustProxy)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClientIP(r)
	})).ServeHTTP(httptest.NewRecorder(), req)
	return got
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:5555"
	if got := ClientIP(req); got != "10.0.0.7" {
		t.Fatalf("remote addr: %s", got)
	}
	if got := resolvedIP(true, req); got != "10.0.0.7" {
		t.Fatalf("no headers: %s", got)
	}
	req.Header.Set("X-Real-IP", "10.0.0.8")
	if got := resolvedIP(true, req); got != "10.0.0.8" {
		t.Fatalf("x-real-ip: %s", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.1, 10.0.0.1")
	if got := resolvedIP(true, req); got != "203.0.113.1" {
		t.Fatalf("x-forwarded-for: %s", got)
	}

	ipv6 := httptest.NewRequest(http.MethodGet, "/", nil)
	ipv6.RemoteAddr = "[2001:db8::1]:443"
	if got := ClientIP(ipv6); got != "2001:db8::1" {
		t.Fatalf("ipv6: %s", got)
	}
}

func TestClientIPIgnoresSpoofedHeadersWithoutTrustedProxy(t *testing.T) {
	for _, spoofed := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		req := httptest.NewRequest(http.MethodPost, "/vans/generate-weekly-routes", nil)
		req.RemoteAddr = "198.51.100.4:40000"
		req.Header.Set("X-Forwarded-For", spoofed)
		req.Header.Set("X-Real-IP", spoofed)
		if got := ClientIP(req); got != "198.51.100.4" {
			t.Fatalf("bare request with %s: %s", spoofed, got)
		}
		if got := resolvedIP(false, req); got != "198.51.100.4" {
			t.Fatalf("untrusted proxy with %s: %s", spoofed, got)
		}
	}
}

func TestAccessLogRecordsStatus(t *testing.T) {
	h := AccessLog(logger.NewDiscard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusTeapot {
		t.Fatalf("status: %d", rr.Code)
	}
}

func TestRouteLabel(t *testing.T) {
	got := routeLabel("/vans/schedules/6f1c1a57-1d8c-4f0e-9a43-1b2b3c4d5e6f/assignments")
	if got != "/vans/schedules/:id/assignments" {
		t.Fatalf("label: %s", got)
	}
	if routeLabel("/vans") != "/vans" {
		t.Fatal("static path must not change")
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { order = append(order, "handler") }), mw("a"), mw("b"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if strings.Join(order, ",") != "a,b,handler" {
		t.Fatalf("order: %v", order)
	}
}

func TestAuthWithoutSecretRejectsEverything(t *testing.T) {
	j := NewJWT(&config.AuthConfig{Issuer: "pet-care-admin", AdminRole: "admin"})
	if _, err := j.GenerateToken("admin", time.Hour); err != ErrNoSecret {
		t.Fatalf("GenerateToken: expected ErrNoSecret, got %v", err)
	}

	h := Auth(j, logger.NewDiscard())(http.HandlerFunc(okHandler))
	exp := time.Now().Add(time.Hour).Unix()
	for _, secret := range []string{"van-dispatch-dev-secret", "any-guess"} {
		req := httptest.NewRequest(http.MethodGet, "/vans", nil)
		req.Header.Set("Authorization", "Bearer "+signed(t, secret, jwt.MapClaims{"role": "admin", "iss": "pet-care-admin", "exp": exp}))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("secret %q: got %d, want 401", secret, rr.Code)
		}
	}
}
