package apihttp

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"backoffice/internal/audit"
	"backoffice/internal/auth"
	"backoffice/internal/platform/errs"
)

// DateLayout is the wire format of business dates.
const DateLayout = "2006-01-02"

// HealthHandler answers liveness probes and pings the database when set.
type HealthHandler struct {
	db *sql.DB
}

// NewHealthHandler constructs a HealthHandler. db may be nil.
func NewHealthHandler(db *sql.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// ServeHTTP handles GET /healthz.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h != nil && h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// WriteJSON encodes payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// DecodeJSON decodes the request body into dst, rejecting unknown fields.
func DecodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

// RespondError maps a service error onto an HTTP status.
func RespondError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errs.IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errs.IsConflict(err):
		http.Error(w, err.Error(), http.StatusConflict)
	case errs.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errs.IsTransient(err), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// ParseIntQuery parses an optional integer query parameter.
func ParseIntQuery(r *http.Request, key string) (int, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return parsed, nil
}

// LogAudit records an audit entry for the authenticated request.
func LogAudit(logger audit.Logger, r *http.Request, action, resourceType, resourceID string, metadata map[string]any) {
	if logger == nil || r == nil {
		return
	}
	var raw json.RawMessage
	if len(metadata) > 0 {
		if data, err := json.Marshal(metadata); err == nil {
			raw = data
		}
	}
	_ = logger.Log(r.Context(), audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     raw,
		IP:           clientIP(r),
		UserAgent:    r.UserAgent(),
	})
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// peer address without its port.
func clientIP(r *http.Request) string {
	if hop, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(hop) != "" {
		return strings.TrimSpace(hop)
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
