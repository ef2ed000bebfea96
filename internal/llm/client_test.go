package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClient_requiresAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := NewClient(context.Background(), "", " ", nil); err == nil {
		t.Fatal("expected error without api key")
	}
	if _, err := NewClient(context.Background(), "", "key", nil); err != nil {
		t.Fatalf("default base url: %v", err)
	}
}

func newTestClient(t *testing.T, srv *httptest.Server, apiKey string) *Client {
	t.Helper()
	// Trailing slash is trimmed so request paths stay single-slashed.
	c, err := NewClient(context.Background(), srv.URL+"/", apiKey, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestClient_Generate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		status        int
		body          string
		want          string
		wantErr       bool
		wantStatus    int
		wantOverload  bool
		wantEmptyResp bool
	}{
		{
			name:   "200_text",
			status: http.StatusOK,
			body:   `{"candidates":[{"content":{"parts":[{"text":"hello "},{"text":"world"}]}}]}`,
			want:   "hello world",
		},
		{
			name:          "200_no_candidates",
			status:        http.StatusOK,
			body:          `{"candidates":[]}`,
			wantErr:       true,
			wantEmptyResp: true,
		},
		{
			name:    "200_invalid_json",
			status:  http.StatusOK,
			body:    `{`,
			wantErr: true,
		},
		{
			name:         "503_overloaded",
			status:       http.StatusServiceUnavailable,
			body:         `{"error":{"code":503,"message":"The model is overloaded.","status":"UNAVAILABLE"}}`,
			wantErr:      true,
			wantStatus:   http.StatusServiceUnavailable,
			wantOverload: true,
		},
		{
			name:         "500_internal",
			status:       http.StatusInternalServerError,
			body:         `internal`,
			wantErr:      true,
			wantStatus:   http.StatusInternalServerError,
			wantOverload: true,
		},
		{
			name:       "403_denied",
			status:     http.StatusForbidden,
			body:       `{"error":{"code":403,"message":"API key invalid","status":"PERMISSION_DENIED"}}`,
			wantErr:    true,
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "429_quota",
			status:     http.StatusTooManyRequests,
			body:       `{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`,
			wantErr:    true,
			wantStatus: http.StatusTooManyRequests,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1beta/models/gemini-test:generateContent" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				if r.Header.Get("x-goog-api-key") != "secret" {
					t.Errorf("missing api key header")
				}
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c := newTestClient(t, srv, "secret")
			got, err := c.Generate(context.Background(), "gemini-test", "prompt")
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				if IsOverloaded(err) != tt.wantOverload {
					t.Errorf("IsOverloaded = %v, want %v (%v)", IsOverloaded(err), tt.wantOverload, err)
				}
				if tt.wantStatus != 0 {
					var statusErr *StatusError
					if !errors.As(err, &statusErr) || statusErr.StatusCode != tt.wantStatus {
						t.Errorf("expected StatusError %d, got %v", tt.wantStatus, err)
					}
				}
				if tt.wantEmptyResp && !errors.Is(err, ErrEmptyResponse) {
					t.Errorf("expected ErrEmptyResponse, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Generate = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClient_GenerateSendsPrompt(t *testing.T) {
	t.Parallel()

	var received struct {
		Contents []struct {
			Role  string `json:"role"`
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"contents"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`)
	}))
	defer srv.Close()

	if _, err := newTestClient(t, srv, "k").Generate(context.Background(), "m", "document this"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(received.Contents) != 1 || len(received.Contents[0].Parts) != 1 || received.Contents[0].Parts[0].Text != "document this" || received.Contents[0].Role != "user" {
		t.Fatalf("unexpected request payload: %+v", received)
	}
}

func TestIsOverloaded_wrapped(t *testing.T) {
	t.Parallel()
	err := fmt.Errorf("attempt 1: %w", &StatusError{StatusCode: http.StatusServiceUnavailable})
	if !IsOverloaded(err) {
		t.Fatalf("expected wrapped 503 to be overloaded")
	}
	if IsOverloaded(errors.New("boom")) {
		t.Fatalf("plain error must not be overloaded")
	}
}
