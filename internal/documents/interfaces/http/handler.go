package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apihttp "backoffice/internal/api/http"
	"backoffice/internal/audit"
	"backoffice/internal/auth"
	documentsapp "backoffice/internal/documents/application"
	documents "backoffice/internal/documents/domain"
)

const routePrefix = "/api/v1/documents/"

// Handler serves document routes under /api/v1/documents.
type Handler struct {
	coordinator *documentsapp.Coordinator
	auditLogger audit.Logger
}

// NewHandler constructs a handler. auditLogger may be nil.
func NewHandler(coordinator *documentsapp.Coordinator, auditLogger audit.Logger) (*Handler, error) {
	if coordinator == nil {
		return nil, errors.New("documents handler: nil coordinator")
	}
	return &Handler{coordinator: coordinator, auditLogger: auditLogger}, nil
}

// ServeHTTP routes /api/v1/documents/{type} and /api/v1/documents/{type}/{reference}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, routePrefix), "/")
	parts := strings.Split(rest, "/")
	if rest == "" || len(parts) > 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	kind, err := documents.KindForSlug(parts[0])
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	if len(parts) == 2 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		doc, err := h.coordinator.Get(r.Context(), parts[1])
		if err != nil {
			apihttp.RespondError(w, err)
			return
		}
		if doc.Kind != kind {
			http.Error(w, documents.ErrDocumentNotFound.Error(), http.StatusNotFound)
			return
		}
		apihttp.WriteJSON(w, http.StatusOK, doc)
		return
	}

	switch r.Method {
	case http.MethodPost:
		h.handleCreate(w, r, parts[0])
	case http.MethodGet:
		year, err := apihttp.ParseIntQuery(r, "year")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		limit, err := apihttp.ParseIntQuery(r, "limit")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		list, err := h.coordinator.List(r.Context(), kind, year, limit)
		if err != nil {
			apihttp.RespondError(w, err)
			return
		}
		apihttp.WriteJSON(w, http.StatusOK, list)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type createRequest struct {
	DateOp         string          `json:"date_op"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	CounterpartyID string          `json:"counterparty_id"`
	Label          string          `json:"label"`
	Attributes     json.RawMessage `json:"attributes"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request, slug string) {
	kind, _ := documents.KindForSlug(slug)
	var req createRequest
	if err := apihttp.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	var dateOp time.Time
	if req.DateOp != "" {
		parsed, err := time.Parse(apihttp.DateLayout, req.DateOp)
		if err != nil {
			http.Error(w, "date_op must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		dateOp = parsed
	}

	doc, err := h.coordinator.Create(r.Context(), kind, documentsapp.CreateRequest{
		DateOp:         dateOp,
		Amount:         req.Amount,
		Currency:       req.Currency,
		ActorID:        auth.SubjectFromContext(r.Context()),
		CounterpartyID: req.CounterpartyID,
		Label:          req.Label,
		Attributes:     req.Attributes,
	})
	if err != nil {
		apihttp.RespondError(w, err)
		return
	}
	w.Header().Set("Location", routePrefix+documents.SlugForKind(doc.Kind)+"/"+doc.Reference)
	apihttp.WriteJSON(w, http.StatusCreated, doc)
	apihttp.LogAudit(h.auditLogger, r, "document.create", "document", doc.Reference, map[string]any{
		"kind":   string(doc.Kind),
		"amount": doc.Amount.StringFixed(2),
	})
}
