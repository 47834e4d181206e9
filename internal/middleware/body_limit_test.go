package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLimitBodyBytesMatchesAPIPrefix(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	router := LimitBodyBytes(2,
		BodyLimitOverride{PathPrefix: "/imports/upload", MaxBytes: 10},
		BodyLimitOverride{PathPrefix: "/imports/process", MaxBytes: 8},
	)(handler)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"override applies on /api path", "/api/imports/upload", "12345", http.StatusOK},
		{"second override applies", "/api/imports/process", "1234567", http.StatusOK},
		{"override still caps", "/api/imports/process", "123456789", http.StatusRequestEntityTooLarge},
		{"default limit applies elsewhere", "/api/leads", "12345", http.StatusRequestEntityTooLarge},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Fatalf("expected status %d, got %d", tc.want, rr.Code)
			}
		})
	}
}
