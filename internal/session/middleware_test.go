package session

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"storefront/internal/model"
)

func serveWithSession(t *testing.T, header string) (*httptest.ResponseRecorder, model.Session) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var got model.Session
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	if header != "" {
		req.Header.Set(HeaderName, header)
	}
	w := httptest.NewRecorder()
	Middleware(ClientVersion, logger)(next).ServeHTTP(w, req)
	return w, got
}

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		wantCode  int
		wantToken string
		wantError string
	}{
		{"no header is anonymous", "", http.StatusNoContent, "", ""},
		{"valid session", `token="abc", user="u", v="v1.0.0"`, http.StatusNoContent, "abc", ""},
		{"older client", `token="abc", v="v0.9.0"`, http.StatusNoContent, "abc", ""},
		{"newer client", `token="abc", v="v9.0.0"`, http.StatusBadRequest, "", CodeVersionUnsupported},
		{"malformed", `token=`, http.StatusBadRequest, "", CodeInvalidHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, got := serveWithSession(t, tt.header)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if got.Token != tt.wantToken {
				t.Errorf("token = %q, want %q", got.Token, tt.wantToken)
			}
			if tt.wantError == "" {
				return
			}

			var body struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if body.Error.Code != tt.wantError {
				t.Errorf("error code = %q, want %q", body.Error.Code, tt.wantError)
			}
		})
	}
}

func TestFromContextWithoutSession(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if s := FromContext(req.Context()); s.Authenticated() {
		t.Errorf("FromContext() = %+v, want anonymous", s)
	}
}
