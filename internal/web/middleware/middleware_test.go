package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTrustedRealIP(t *testing.T) {
	tests := []struct {
		name    string
		trusted []string
		remote  string
		header  http.Header
		want    string
	}{
		{"untrusted keeps remote", nil, "203.0.113.5:4000", http.Header{"X-Real-Ip": {"10.0.0.1"}}, "203.0.113.5:4000"},
		{"trusted cidr uses real ip", []string{"10.0.0.0/8"}, "10.1.2.3:4000", http.Header{"X-Real-Ip": {"198.51.100.7"}}, "198.51.100.7"},
		{"trusted single ip uses forwarded for", []string{"127.0.0.1"}, "127.0.0.1:4000", http.Header{"X-Forwarded-For": {"198.51.100.8, 10.0.0.1"}}, "198.51.100.8"},
		{"invalid header ignored", []string{"10.0.0.0/8"}, "10.1.2.3:4000", http.Header{"X-Real-Ip": {"garbage"}}, "10.1.2.3:4000"},
		{"invalid trusted entry skipped", []string{"not-an-ip"}, "10.1.2.3:4000", http.Header{"X-Real-Ip": {"198.51.100.7"}}, "10.1.2.3:4000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := TrustedRealIP(tt.trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.RemoteAddr
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			req.Header = tt.header
			h.ServeHTTP(httptest.NewRecorder(), req)

			if got != tt.want {
				t.Errorf("RemoteAddr = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidKey(t *testing.T) {
	keys := []string{"alpha", "beta"}
	tests := []struct {
		key  string
		want bool
	}{
		{"alpha", true},
		{"beta", true},
		{"gamma", false},
		{"alph", false},
	}
	for _, tt := range tests {
		if got := validKey(tt.key, keys); got != tt.want {
			t.Errorf("validKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
	if validKey("alpha", nil) {
		t.Error("validKey with no keys = true, want false")
	}
}

func TestResponseWriterStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	w.WriteHeader(http.StatusTeapot)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("x"))

	if w.status != http.StatusTeapot {
		t.Errorf("status = %d, want %d", w.status, http.StatusTeapot)
	}
}

func TestRateLimiterAllow(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	for i, want := range []bool{true, true, false} {
		if got := rl.Allow("10.0.0.1"); got != want {
			t.Errorf("request %d: Allow = %v, want %v", i+1, got, want)
		}
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("second client limited by the first client's budget")
	}

	now = now.Add(time.Minute)
	if !rl.Allow("10.0.0.1") {
		t.Error("Allow after window reset = false, want true")
	}

	now = now.Add(3 * time.Minute)
	rl.Allow("10.0.0.3")
	if _, ok := rl.visitors["10.0.0.2"]; ok {
		t.Error("idle visitor not swept")
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	codes := make([]int, 2)
	for i := range codes {
		req := httptest.NewRequest(http.MethodGet, "/api/files", nil)
		req.RemoteAddr = "192.0.2.1:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes[i] = rec.Code
		if i == 1 && rec.Header().Get("Retry-After") != "60" {
			t.Errorf("Retry-After = %q, want 60", rec.Header().Get("Retry-After"))
		}
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 429]", codes)
	}
}
