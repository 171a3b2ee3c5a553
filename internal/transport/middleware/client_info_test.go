package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/heartmarshall/ledger-backend/pkg/ctxutil"
)

func TestClientInfo(t *testing.T) {
	cases := []struct {
		name       string
		trustProxy bool
		remoteAddr string
		headers    map[string]string
		wantIP     string
	}{
		{"remote addr", false, "10.1.2.3:4567", nil, "10.1.2.3"},
		{"remote addr without port", false, "10.1.2.3", nil, "10.1.2.3"},
		{"ignores forwarded when untrusted", false, "10.1.2.3:1", map[string]string{"X-Forwarded-For": "8.8.8.8"}, "10.1.2.3"},
		{"first forwarded hop", true, "10.1.2.3:1", map[string]string{"X-Forwarded-For": "8.8.8.8, 10.0.0.1"}, "8.8.8.8"},
		{"real ip", true, "10.1.2.3:1", map[string]string{"X-Real-Ip": "9.9.9.9"}, "9.9.9.9"},
		{"ipv6", false, "[::1]:8080", nil, "::1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got ctxutil.ClientInfo
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = ctxutil.ClientInfoFromCtx(r.Context())
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			req.Header.Set("User-Agent", "test-agent/1.0")
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}

			ClientInfo(tc.trustProxy)(handler).ServeHTTP(httptest.NewRecorder(), req)

			if got.IP != tc.wantIP {
				t.Errorf("IP = %q, want %q", got.IP, tc.wantIP)
			}
			if got.UserAgent != "test-agent/1.0" {
				t.Errorf("UserAgent = %q, want %q", got.UserAgent, "test-agent/1.0")
			}
		})
	}
}
