// Package problem writes RFC 7807 problem documents. Every docsync rejection
// carries a stable code so GitHub's delivery log shows why a hook failed.
package problem

import (
	"encoding/json"
	"net/http"
)

// Codes reported by docsync endpoints.
const (
	CodeMethodNotAllowed = "method_not_allowed"
	CodePayloadTooLarge  = "payload_too_large"
	CodeInvalidPayload   = "invalid_payload"
	CodeInvalidSignature = "invalid_signature"
)

const typePrefix = "https://docsync.dev/problems/"

// Response represents an RFC 7807 problem document.
type Response struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Code     string `json:"code,omitempty"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	TraceID  string `json:"traceId,omitempty"`
}

// New builds a problem for r. The instance is the request path and the trace
// id is read from X-Trace-Id, which request middleware always populates.
func New(r *http.Request, status int, code, detail string) Response {
	resp := Response{
		Type:   "about:blank",
		Title:  http.StatusText(status),
		Status: status,
		Code:   code,
		Detail: detail,
	}
	if code != "" {
		resp.Type = typePrefix + code
	}
	if r != nil {
		resp.Instance = r.URL.Path
		resp.TraceID = r.Header.Get("X-Trace-Id")
	}
	return resp
}

// Write emits resp as application/problem+json.
func Write(w http.ResponseWriter, resp Response) {
	if resp.Status == 0 {
		resp.Status = http.StatusInternalServerError
	}
	if resp.Title == "" {
		resp.Title = http.StatusText(resp.Status)
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(resp.Status)
	_ = json.NewEncoder(w).Encode(resp)
}
