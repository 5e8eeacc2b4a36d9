package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequireJSON(t *testing.T) {
	h := RequireJSON(okHandler())

	tests := []struct {
		name        string
		method      string
		contentType string
		body        string
		want        int
	}{
		{"json post", http.MethodPost, "application/json", `{}`, http.StatusOK},
		{"json with charset", http.MethodPut, "application/json; charset=utf-8", `{}`, http.StatusOK},
		{"bodyless post", http.MethodPost, "", "", http.StatusOK},
		{"form post", http.MethodPost, "application/x-www-form-urlencoded", "a=b", http.StatusUnsupportedMediaType},
		{"body without content type", http.MethodPost, "", `{}`, http.StatusUnsupportedMediaType},
		{"get ignores content type", http.MethodGet, "text/plain", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/v1/channels", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rr.Code)
			}
		})
	}
}
