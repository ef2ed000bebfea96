package github

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testKey(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	return key, pem.EncodeToMemory(block)
}

func newTestClient(t *testing.T, baseURL, token string) *Client {
	t.Helper()
	c, err := NewClient(baseURL, token, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return c
}

func TestNewAppValidation(t *testing.T) {
	_, pemBytes := testKey(t)

	_, err := NewApp(AppOptions{PrivateKeyPEM: pemBytes})
	if err == nil {
		t.Error("expected error")
	}

	_, err = NewApp(AppOptions{AppID: 1})
	if err == nil {
		t.Error("expected error")
	}

	_, err = NewApp(AppOptions{AppID: 1, PrivateKeyPEM: []byte("not a key")})
	if err == nil {
		t.Error("expected error")
	}
}

func TestAppJWTClaims(t *testing.T) {
	key, pemBytes := testKey(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	app, err := NewApp(AppOptions{AppID: 42, PrivateKeyPEM: pemBytes, Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	signed, err := app.JWT()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	_, err = parser.ParseWithClaims(signed, claims, func(*jwt.Token) (interface{}, error) {
		return &key.PublicKey, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.Issuer != "42" {
		t.Errorf("expected %q, got %q", "42", claims.Issuer)
	}
	if !reflect.DeepEqual(claims.IssuedAt.Unix(), now.Add(-time.Minute).Unix()) {
		t.Errorf("expected %v, got %v", now.Add(-time.Minute).Unix(), claims.IssuedAt.Unix())
	}
	if !reflect.DeepEqual(claims.ExpiresAt.Unix(), now.Add(9*time.Minute).Unix()) {
		t.Errorf("expected %v, got %v", now.Add(9*time.Minute).Unix(), claims.ExpiresAt.Unix())
	}
}

func TestInstallationTokenCached(t *testing.T) {
	_, pemBytes := testKey(t)
	var calls atomic.Int32
	expires := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("expected %v, got %v", http.MethodPost, r.Method)
		}
		if r.URL.Path != "/app/installations/7/access_tokens" {
			t.Errorf("expected %q, got %q", "/app/installations/7/access_tokens", r.URL.Path)
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			t.Errorf("expected %q to have prefix %q", r.Header.Get("Authorization"), "Bearer ")
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"token":"inst-token","expires_at":"`+expires+`"}`)
	}))
	defer srv.Close()

	app, err := NewApp(AppOptions{AppID: 1, PrivateKeyPEM: pemBytes, BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 3; i++ {
		token, err := app.InstallationToken(context.Background(), 7)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if token != "inst-token" {
			t.Errorf("expected %q, got %q", "inst-token", token)
		}
	}
	if calls.Load() != int32(1) {
		t.Errorf("expected %v, got %v", int32(1), calls.Load())
	}
}

func TestInstallationTokenRefreshesNearExpiry(t *testing.T) {
	_, pemBytes := testKey(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		// Expires within the refresh skew, so never reused.
		expires := time.Now().Add(30 * time.Second).UTC().Format(time.RFC3339)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"token":"short","expires_at":"`+expires+`"}`)
	}))
	defer srv.Close()

	app, err := NewApp(AppOptions{AppID: 1, PrivateKeyPEM: pemBytes, BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = app.InstallationToken(context.Background(), 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = app.InstallationToken(context.Background(), 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != int32(2) {
		t.Errorf("expected %v, got %v", int32(2), calls.Load())
	}
}

func TestClientCompareCommits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/widgets/compare/aaa...bbb" {
			t.Errorf("expected %q, got %q", "/repos/acme/widgets/compare/aaa...bbb", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer t0k" {
			t.Errorf("expected %q, got %q", "Bearer t0k", r.Header.Get("Authorization"))
		}
		if r.Header.Get("X-GitHub-Api-Version") != "2022-11-28" {
			t.Errorf("expected %q, got %q", "2022-11-28", r.Header.Get("X-GitHub-Api-Version"))
		}
		if r.Header.Get("User-Agent") != "docsync" {
			t.Errorf("expected %q, got %q", "docsync", r.Header.Get("User-Agent"))
		}
		_, _ = io.WriteString(w, `{"files":[{"filename":"src/a.js","status":"modified","patch":"@@ -1 +1 @@\n+x"},{"filename":"logo.png","status":"added"}]}`)
	}))
	defer srv.Close()

	files, err := newTestClient(t, srv.URL, "t0k").CompareCommits(context.Background(), "acme", "widgets", "aaa", "bbb")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 entries in files, got %d", len(files))
	}
	if !reflect.DeepEqual(files[0], ChangedFile{Filename: "src/a.js", Status: "modified", Patch: "@@ -1 +1 @@\n+x"}) {
		t.Errorf("expected %v, got %v", ChangedFile{Filename: "src/a.js", Status: "modified", Patch: "@@ -1 +1 @@\n+x"}, files[0])
	}
	if len(files[1].Patch) != 0 {
		t.Errorf("expected empty, got %v", files[1].Patch)
	}
}

func TestClientGetContentDecodesWrappedBase64(t *testing.T) {
	text := "export function greet(name) {\n  return `hi ${name}`;\n}\n"
	encoded := base64.StdEncoding.EncodeToString([]byte(text))
	wrapped := encoded[:20] + "\n" + encoded[20:]

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/widgets/contents/src/greet.js" {
			t.Errorf("expected %q, got %q", "/repos/acme/widgets/contents/src/greet.js", r.URL.Path)
		}
		if r.URL.Query().Get("ref") != "main" {
			t.Errorf("expected %q, got %q", "main", r.URL.Query().Get("ref"))
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"type":     "file",
			"path":     "src/greet.js",
			"sha":      "blob1",
			"content":  wrapped,
			"encoding": "base64",
		})
	}))
	defer srv.Close()

	got, err := newTestClient(t, srv.URL, "t").GetContent(context.Background(), "acme", "widgets", "src/greet.js", "main")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, FileContent{Path: "src/greet.js", SHA: "blob1", Text: text}) {
		t.Errorf("expected %v, got %v", FileContent{Path: "src/greet.js", SHA: "blob1", Text: text}, got)
	}
}

func TestClientNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message":"Not Found"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, "t").GetContent(context.Background(), "acme", "widgets", ".docsync.yml", "main")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected %v, got %v", ErrNotFound, err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatal("expected errors.As(err, &apiErr)")
	}
	if apiErr.Message != "Not Found" {
		t.Errorf("expected %q, got %q", "Not Found", apiErr.Message)
	}
	if apiErr.Method != http.MethodGet {
		t.Errorf("expected %v, got %v", http.MethodGet, apiErr.Method)
	}
	if apiErr.Path != "/repos/acme/widgets/contents/.docsync.yml" {
		t.Errorf("expected %q, got %q", "/repos/acme/widgets/contents/.docsync.yml", apiErr.Path)
	}
}

func TestClientRejectsDirectoryContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"type":"file","path":"src/a.js","sha":"x"}]`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, "t").GetContent(context.Background(), "acme", "widgets", "src", "main")
	if err == nil {
		t.Fatal("expected error")
	}
	if (errors.Is(err, ErrNotFound)) {
		t.Error("unexpected errors.Is(err, ErrNotFound)")
	}
}

func TestClientInstallationToken(t *testing.T) {
	_, pemBytes := testKey(t)
	expires := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/app/installations/3/access_tokens":
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"token":"inst-3","expires_at":"`+expires+`"}`)
		case "/repos/acme/widgets/git/ref/heads/main":
			if r.Header.Get("Authorization") != "Bearer inst-3" {
				t.Errorf("expected %q, got %q", "Bearer inst-3", r.Header.Get("Authorization"))
			}
			_, _ = io.WriteString(w, `{"ref":"refs/heads/main","object":{"sha":"abc"}}`)
		default:
			t.Errorf("unexpected call %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	app, err := NewApp(AppOptions{AppID: 1, PrivateKeyPEM: pemBytes, BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, err := app.Client(context.Background(), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sha, err := c.GetRef(context.Background(), "acme", "widgets", "main")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sha != "abc" {
		t.Errorf("expected %q, got %q", "abc", sha)
	}
}

func TestInstallationTokenFailure(t *testing.T) {
	_, pemBytes := testKey(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"Bad credentials"}`)
	}))
	defer srv.Close()

	app, err := NewApp(AppOptions{AppID: 1, PrivateKeyPEM: pemBytes, BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = app.InstallationToken(context.Background(), 4)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatal("expected errors.As(err, &apiErr)")
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected %v, got %v", http.StatusUnauthorized, apiErr.StatusCode)
	}
	if apiErr.Message != "Bad credentials" {
		t.Errorf("expected %q, got %q", "Bad credentials", apiErr.Message)
	}
}

func TestClientPublishCalls(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		var body map[string]any
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		switch r.Method + " " + r.URL.Path {
		case "GET /repos/acme/widgets/git/ref/heads/main":
			_, _ = io.WriteString(w, `{"object":{"sha":"head-sha"}}`)
		case "POST /repos/acme/widgets/git/refs":
			if body["ref"] != "refs/heads/docsync-1" {
				t.Errorf("expected %q, got %q", "refs/heads/docsync-1", body["ref"])
			}
			if body["sha"] != "head-sha" {
				t.Errorf("expected %q, got %q", "head-sha", body["sha"])
			}
			w.WriteHeader(http.StatusCreated)
		case "PUT /repos/acme/widgets/contents/README.md":
			raw, err := base64.StdEncoding.DecodeString(body["content"].(string))
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if string(raw) != "# Widgets" {
				t.Errorf("expected %q, got %q", "# Widgets", string(raw))
			}
			if body["branch"] != "docsync-1" {
				t.Errorf("expected %q, got %q", "docsync-1", body["branch"])
			}
			if body["sha"] != "old-blob" {
				t.Errorf("expected %q, got %q", "old-blob", body["sha"])
			}
			w.WriteHeader(http.StatusOK)
		case "POST /repos/acme/widgets/pulls":
			if body["head"] != "docsync-1" {
				t.Errorf("expected %q, got %q", "docsync-1", body["head"])
			}
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"number":12,"html_url":"https://github.test/acme/widgets/pull/12"}`)
		case "POST /repos/acme/widgets/issues/12/comments":
			if body["body"] != "hello" {
				t.Errorf("expected %q, got %q", "hello", body["body"])
			}
			w.WriteHeader(http.StatusCreated)
		default:
			t.Errorf("unexpected call %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	c := newTestClient(t, srv.URL, "t")

	sha, err := c.GetRef(ctx, "acme", "widgets", "main")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sha != "head-sha" {
		t.Errorf("expected %q, got %q", "head-sha", sha)
	}

	if err := c.CreateRef(ctx, "acme", "widgets", "docsync-1", sha); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.PutFile(ctx, "acme", "widgets", FileUpdate{
		Path:    "README.md",
		Message: "docs: auto-update documentation",
		Content: "# Widgets",
		Branch:  "docsync-1",
		SHA:     "old-blob",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pull, err := c.CreatePull(ctx, "acme", "widgets", NewPull{Title: "t", Head: "docsync-1", Base: "main"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pull.Number != 12 {
		t.Errorf("expected %v, got %v", 12, pull.Number)
	}

	if err := c.CreateComment(ctx, "acme", "widgets", pull.Number, "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != 5 {
		t.Errorf("expected 5 entries in seen, got %d", len(seen))
	}
}

func TestPushEventHelpers(t *testing.T) {
	payload := `{
		"ref": "refs/heads/main",
		"before": "abc",
		"after": "def",
		"repository": {"name": "widgets", "owner": {"name": "acme"}},
		"installation": {"id": 5},
		"commits": [{"id": "1", "message": "feat: one"}, {"id": "2", "message": "fix [diagram]"}],
		"head_commit": {"id": "2", "message": "fix [diagram]"}
	}`
	var ev PushEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ev.OwnerLogin() != "acme" {
		t.Errorf("expected %q, got %q", "acme", ev.OwnerLogin())
	}
	if ev.InstallationID() != int64(5) {
		t.Errorf("expected %v, got %v", int64(5), ev.InstallationID())
	}
	if !reflect.DeepEqual(ev.CommitMessages(), []string{"feat: one", "fix [diagram]"}) {
		t.Errorf("expected %v, got %v", []string{"feat: one", "fix [diagram]"}, ev.CommitMessages())
	}
	if PushEvent{}.InstallationID() != int64(0) {
		t.Errorf("expected %v, got %v", int64(0), PushEvent{}.InstallationID())
	}
}
