package github

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// iat is backdated to tolerate clock drift against GitHub.
const (
	appJWTLifetime   = 9 * time.Minute
	appJWTBackdate   = 60 * time.Second
	tokenRefreshSkew = time.Minute
)

// AppOptions configures App construction.
type AppOptions struct {
	AppID         int64
	PrivateKeyPEM []byte
	BaseURL       string
	HTTPClient    *http.Client
	Now           func() time.Time
}

// App mints installation tokens for a GitHub App and caches them until
// shortly before expiry.
type App struct {
	id         int64
	key        *rsa.PrivateKey
	baseURL    string
	httpClient *http.Client
	now        func() time.Time

	mu     sync.Mutex
	tokens map[int64]installationToken
}

type installationToken struct {
	value     string
	expiresAt time.Time
}

// NewApp validates options and parses the RSA private key.
func NewApp(opts AppOptions) (*App, error) {
	if opts.AppID <= 0 {
		return nil, errors.New("github: app id is required")
	}
	if len(opts.PrivateKeyPEM) == 0 {
		return nil, errors.New("github: private key is required")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(opts.PrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("github: parse private key: %w", err)
	}

	baseURL := strings.TrimSpace(opts.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &App{
		id:         opts.AppID,
		key:        key,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		now:        now,
		tokens:     make(map[int64]installationToken),
	}, nil
}

// JWT signs a short-lived RS256 app token.
func (a *App) JWT() (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Issuer:    strconv.FormatInt(a.id, 10),
		IssuedAt:  jwt.NewNumericDate(now.Add(-appJWTBackdate)),
		ExpiresAt: jwt.NewNumericDate(now.Add(appJWTLifetime)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("github: sign app jwt: %w", err)
	}
	return signed, nil
}

// InstallationToken returns a cached token or exchanges a fresh app JWT for one.
func (a *App) InstallationToken(ctx context.Context, installationID int64) (string, error) {
	if installationID <= 0 {
		return "", errors.New("github: installation id is required")
	}

	a.mu.Lock()
	cached, ok := a.tokens[installationID]
	a.mu.Unlock()
	if ok && a.now().Add(tokenRefreshSkew).Before(cached.expiresAt) {
		return cached.value, nil
	}

	appJWT, err := a.JWT()
	if err != nil {
		return "", err
	}
	rest, err := newREST(a.baseURL, appJWT, a.httpClient)
	if err != nil {
		return "", err
	}

	tok, _, err := rest.Apps.CreateInstallationToken(ctx, installationID, nil)
	if err != nil {
		return "", wrapError("create installation token", err)
	}
	value := tok.GetToken()
	if value == "" {
		return "", errors.New("github: empty installation token")
	}
	expiresAt := tok.GetExpiresAt().Time

	a.mu.Lock()
	a.tokens[installationID] = installationToken{value: value, expiresAt: expiresAt}
	a.mu.Unlock()
	return value, nil
}

// Client returns a REST client authenticated as the installation.
func (a *App) Client(ctx context.Context, installationID int64) (*Client, error) {
	token, err := a.InstallationToken(ctx, installationID)
	if err != nil {
		return nil, err
	}
	return NewClient(a.baseURL, token, a.httpClient)
}

// BaseURL reports the API root the app talks to.
func (a *App) BaseURL() string {
	return a.baseURL
}
