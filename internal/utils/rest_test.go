package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRespondWithError(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		message string
	}{
		{"bad request", http.StatusBadRequest, "Missing required parameters"},
		{"unauthorized", http.StatusUnauthorized, "请配置 openai 的 API Key"},
		{"internal server error", http.StatusInternalServerError, "Failed to process chat request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			RespondWithError(w, tt.code, tt.message)

			if w.Code != tt.code {
				t.Errorf("status = %d, want %d", w.Code, tt.code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %s, want application/json", ct)
			}

			var raw map[string]any
			if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if raw["error"] != tt.message {
				t.Errorf("error = %v, want %s", raw["error"], tt.message)
			}
			if _, ok := raw["details"]; ok {
				t.Errorf("details must be omitted when empty")
			}
		})
	}
}

func TestRespondWithErrorDetails(t *testing.T) {
	w := httptest.NewRecorder()
	RespondWithErrorDetails(w, http.StatusInternalServerError, "Failed to process chat request", "openai API error (status 429): rate limited")

	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Details != "openai API error (status 429): rate limited" {
		t.Errorf("details = %q", resp.Details)
	}
}

func TestRespondWithJSONUnencodable(t *testing.T) {
	w := httptest.NewRecorder()
	if err := RespondWithJSON(w, http.StatusOK, map[string]any{"bad": make(chan int)}); err == nil {
		t.Fatalf("expected encode error")
	}
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestDecodeJSONBody(t *testing.T) {
	var v struct {
		Provider string `json:"provider"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"provider":"qwen"}`))
	if err := DecodeJSONBody(r, &v, 1024); err != nil {
		t.Fatalf("DecodeJSONBody() error = %v", err)
	}
	if v.Provider != "qwen" {
		t.Errorf("provider = %q, want qwen", v.Provider)
	}

	for name, body := range map[string]string{
		"empty":     "",
		"malformed": "{",
		"too large": `{"provider":"` + strings.Repeat("x", 100) + `"}`,
	} {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
			if err := DecodeJSONBody(r, &v, 32); err == nil {
				t.Errorf("expected error")
			}
		})
	}
}
