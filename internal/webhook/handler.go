// Package webhook receives GitHub App deliveries, verifies their signatures,
// and hands push events to a dispatcher.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/theroutercompany/docsync/internal/github"
	"github.com/theroutercompany/docsync/internal/http/problem"
	pkglog "github.com/theroutercompany/docsync/pkg/log"
	"github.com/theroutercompany/docsync/pkg/metrics"
)

const (
	defaultMaxBodyBytes    int64 = 1 << 20 // 1 MiB
	defaultSignatureHeader       = "X-Hub-Signature-256"

	eventHeader    = "X-GitHub-Event"
	deliveryHeader = "X-GitHub-Delivery"
)

// Dispatcher runs the docsync pipeline for an accepted push. Dispatch must
// not block on the pipeline itself.
type Dispatcher interface {
	Dispatch(ctx context.Context, event github.PushEvent)
}

// Options configures the webhook handler behaviour.
type Options struct {
	Secret          string
	SignatureHeader string
	MaxBodyBytes    int64
	Dispatcher      Dispatcher
	Logger          pkglog.Logger
	Metrics         *metrics.Registry
}

// New constructs an HTTP handler that validates webhook signatures and
// routes deliveries by event type.
func New(opts Options) (http.Handler, error) {
	if strings.TrimSpace(opts.Secret) == "" {
		return nil, errors.New("webhook secret required")
	}
	if opts.Dispatcher == nil {
		return nil, errors.New("webhook dispatcher required")
	}
	if strings.TrimSpace(opts.SignatureHeader) == "" {
		opts.SignatureHeader = defaultSignatureHeader
	}
	if opts.Logger == nil {
		opts.Logger = pkglog.Shared()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}

	h := &handler{
		secret:          []byte(opts.Secret),
		signatureHeader: opts.SignatureHeader,
		maxBodyBytes:    opts.MaxBodyBytes,
		dispatcher:      opts.Dispatcher,
		logger:          opts.Logger,
	}
	if opts.Metrics != nil {
		h.deliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: opts.Metrics.Name("webhook_deliveries_total"),
			Help: "Webhook deliveries by event and result.",
		}, []string{"event", "result"})
		opts.Metrics.Register(h.deliveries)
	}
	return h, nil
}

type handler struct {
	secret          []byte
	signatureHeader string
	maxBodyBytes    int64
	dispatcher      Dispatcher
	logger          pkglog.Logger
	deliveries      *prometheus.CounterVec
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	event := strings.ToLower(strings.TrimSpace(r.Header.Get(eventHeader)))
	delivery := r.Header.Get(deliveryHeader)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.reject(w, r, event, http.StatusMethodNotAllowed, problem.CodeMethodNotAllowed, "only POST deliveries are accepted")
		return
	}
	defer r.Body.Close()

	body, err := readRequestBody(r.Body, h.maxBodyBytes)
	if err != nil {
		var tooLarge *errBodyTooLarge
		if errors.As(err, &tooLarge) {
			h.reject(w, r, event, http.StatusRequestEntityTooLarge, problem.CodePayloadTooLarge, fmt.Sprintf("payload exceeds %d bytes", h.maxBodyBytes))
			return
		}
		h.logger.Errorw("webhook read body failed", "error", err, "delivery", delivery)
		h.reject(w, r, event, http.StatusBadRequest, problem.CodeInvalidPayload, "request body could not be read")
		return
	}

	if err := h.verifySignature(r.Header.Get(h.signatureHeader), body); err != nil {
		h.logger.Warnw("webhook signature verification failed", "error", err, "delivery", delivery)
		h.reject(w, r, event, http.StatusUnauthorized, problem.CodeInvalidSignature, "signature does not match payload")
		return
	}

	switch event {
	case "ping":
		h.count(event, "pong")
		writeStatus(w, http.StatusOK, "pong")
	case "push":
		var push github.PushEvent
		if err := json.Unmarshal(body, &push); err != nil {
			h.logger.Warnw("webhook push payload invalid", "error", err, "delivery", delivery)
			h.reject(w, r, event, http.StatusBadRequest, problem.CodeInvalidPayload, "push payload is not valid JSON")
			return
		}
		h.logger.Infow("webhook push received",
			"delivery", delivery,
			"repository", push.Repository.FullName,
			"ref", push.Ref,
			"after", push.After,
		)
		// The pipeline outlives the request; keep its values, drop its deadline.
		h.dispatcher.Dispatch(context.WithoutCancel(r.Context()), push)
		h.count(event, "accepted")
		writeStatus(w, http.StatusAccepted, "accepted")
	default:
		h.logger.Debugw("webhook event ignored", "event", event, "delivery", delivery)
		h.count(event, "ignored")
		writeStatus(w, http.StatusAccepted, "ignored")
	}
}

func (h *handler) reject(w http.ResponseWriter, r *http.Request, event string, status int, code, detail string) {
	h.count(event, code)
	problem.Write(w, problem.New(r, status, code, detail))
}

func (h *handler) count(event, result string) {
	if h.deliveries == nil {
		return
	}
	if event == "" {
		event = "unknown"
	}
	h.deliveries.WithLabelValues(event, result).Inc()
}

func (h *handler) verifySignature(sigHeader string, body []byte) error {
	sig := strings.TrimSpace(sigHeader)
	if sig == "" {
		return errors.New("signature header missing")
	}
	if !strings.HasPrefix(strings.ToLower(sig), "sha256=") {
		return errors.New("signature must use sha256")
	}
	sig = sig[len("sha256="):]

	expectedMAC := computeHMAC(body, h.secret)
	provided, err := hex.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}

	if !hmac.Equal(expectedMAC, provided) {
		return errors.New("signature mismatch")
	}
	return nil
}

func writeStatus(w http.ResponseWriter, status int, value string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": value})
}

func readRequestBody(body io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBodyBytes
	}
	limited := io.LimitReader(body, maxBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, &errBodyTooLarge{size: int64(len(data)), limit: maxBytes}
	}
	return data, nil
}

// Sign returns the X-Hub-Signature-256 value for body.
func Sign(body, secret []byte) string {
	return "sha256=" + hex.EncodeToString(computeHMAC(body, secret))
}

func computeHMAC(body []byte, secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}

type errBodyTooLarge struct {
	size  int64
	limit int64
}

func (e *errBodyTooLarge) Error() string {
	return fmt.Sprintf("body size %d exceeds limit %d bytes", e.size, e.limit)
}
