package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		expected   string
	}{
		{"remote addr strips port", "10.0.0.7:52311", nil, "10.0.0.7"},
		{"remote addr without port", "10.0.0.7", nil, "10.0.0.7"},
		{"first forwarded entry", "10.0.0.1:80", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.2"}, "203.0.113.5"},
		{"real ip header", "10.0.0.1:80", map[string]string{"X-Real-IP": "198.51.100.9"}, "198.51.100.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := getIP(req); got != tt.expected {
				t.Fatalf("getIP() = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestRateLimiter_PerClient(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	handler := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("1.2.3.4:1000"); code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", code)
	}
	if code := send("1.2.3.4:2000"); code != http.StatusTooManyRequests {
		t.Fatalf("expected same client on another port to be throttled, got %d", code)
	}
	if code := send("5.6.7.8:1000"); code != http.StatusOK {
		t.Fatalf("expected other client to pass, got %d", code)
	}

	rl.CleanupLimiters()
	if code := send("1.2.3.4:1000"); code != http.StatusOK {
		t.Fatalf("expected limiter reset after cleanup, got %d", code)
	}
}
