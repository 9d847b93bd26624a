package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apihttp "backoffice/internal/api/http"
	"backoffice/internal/audit"
	"backoffice/internal/auth"
	cashapp "backoffice/internal/cash/application"
	cash "backoffice/internal/cash/domain"
	"backoffice/internal/observability/metrics"
)

const routePrefix = "/api/v1/cash/"

// Handler serves the cash register API.
type Handler struct {
	service     *cashapp.Service
	auditLogger audit.Logger
	currency    string
}

// NewHandler constructs a handler. auditLogger may be nil.
func NewHandler(service *cashapp.Service, auditLogger audit.Logger, currency string) (*Handler, error) {
	if service == nil {
		return nil, errors.New("cash handler: nil service")
	}
	return &Handler{service: service, auditLogger: auditLogger, currency: currency}, nil
}

// ServeHTTP handles routes under /api/v1/cash.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, routePrefix), "/")
	parts := strings.Split(rest, "/")

	switch {
	case rest == "open" && r.Method == http.MethodPost:
		h.handleOpen(w, r)
	case rest == "close" && r.Method == http.MethodPost:
		h.handleClose(w, r)
	case rest == "registers" && r.Method == http.MethodGet:
		h.handleListRegisters(w, r)
	case rest == "registers/open" && r.Method == http.MethodGet:
		h.handleGetOpen(w, r)
	case parts[0] == "registers" && len(parts) >= 2 && r.Method == http.MethodGet:
		h.handleRegister(w, r, parts[1:])
	case rest == "transactions" && r.Method == http.MethodPost:
		h.handleRecord(w, r)
	case parts[0] == "transactions" && len(parts) == 2 && r.Method == http.MethodGet:
		h.handleGetTransaction(w, r, parts[1])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OpeningBalance decimal.Decimal `json:"opening_balance"`
	}
	if err := apihttp.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	reg, err := h.service.OpenRegister(r.Context(), req.OpeningBalance, auth.SubjectFromContext(r.Context()))
	if err != nil {
		apihttp.RespondError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusCreated, reg)
	apihttp.LogAudit(h.auditLogger, r, "cash.open", "cash_register", strconv.FormatInt(reg.ID, 10), map[string]any{
		"business_date":   reg.BusinessDate.Format(apihttp.DateLayout),
		"opening_balance": reg.OpeningBalance.StringFixed(2),
	})
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	reg, err := h.service.CloseRegister(r.Context(), auth.SubjectFromContext(r.Context()))
	if err != nil {
		apihttp.RespondError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, map[string]any{
		"register_id":     reg.ID,
		"closing_balance": reg.ClosingBalance.Decimal,
		"status":          reg.Status,
	})
	apihttp.LogAudit(h.auditLogger, r, "cash.close", "cash_register", strconv.FormatInt(reg.ID, 10), map[string]any{
		"closing_balance": reg.ClosingBalance.Decimal.StringFixed(2),
	})
}

func (h *Handler) handleListRegisters(w http.ResponseWriter, r *http.Request) {
	limit, err := apihttp.ParseIntQuery(r, "limit")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	list, err := h.service.ListRegisters(r.Context(), limit)
	if err != nil {
		apihttp.RespondError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) handleGetOpen(w http.ResponseWriter, r *http.Request) {
	reg, err := h.service.GetOpenRegister(r.Context())
	if err != nil {
		apihttp.RespondError(w, err)
		return
	}
	if reg == nil {
		apihttp.WriteJSON(w, http.StatusOK, nil)
		return
	}
	summary, err := h.service.Balance(r.Context(), reg.ID)
	if err != nil {
		apihttp.RespondError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request, parts []string) {
	id, err := parseID(parts[0])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(parts) == 1 {
		summary, err := h.service.Balance(r.Context(), id)
		if err != nil {
			apihttp.RespondError(w, err)
			return
		}
		apihttp.WriteJSON(w, http.StatusOK, summary)
		return
	}
	if len(parts) != 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	switch parts[1] {
	case "transactions":
		txs, err := h.service.ListTransactions(r.Context(), id)
		if err != nil {
			apihttp.RespondError(w, err)
			return
		}
		apihttp.WriteJSON(w, http.StatusOK, txs)
	case "export.pdf":
		h.handleExport(w, r, id, "pdf")
	case "export.xlsx":
		h.handleExport(w, r, id, "xlsx")
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, id int64, format string) {
	result := metrics.ResultSuccess
	defer func() {
		metrics.IncRegisterExport(format, result)
	}()

	stmt, err := h.service.Statement(r.Context(), id)
	if err != nil {
		result = metrics.ResultError
		apihttp.RespondError(w, err)
		return
	}
	var (
		data        []byte
		contentType string
	)
	switch format {
	case "pdf":
		data, err = BuildStatementPDF(stmt, h.currency)
		contentType = "application/pdf"
	default:
		data, err = BuildStatementXLSX(stmt, h.currency)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		result = metrics.ResultError
		http.Error(w, "export "+format+" error", http.StatusInternalServerError)
		return
	}
	filename := "register-" + stmt.Register.BusinessDate.Format(apihttp.DateLayout) + "." + format
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	apihttp.LogAudit(h.auditLogger, r, "cash.export", "cash_register", strconv.FormatInt(id, 10), map[string]any{"format": format})
}

type recordRequest struct {
	RegisterID  int64           `json:"register_id"`
	Direction   string          `json:"direction"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Date        string          `json:"date"`
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := apihttp.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	var date time.Time
	if req.Date != "" {
		parsed, err := time.Parse(apihttp.DateLayout, req.Date)
		if err != nil {
			http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		date = parsed
	}
	tx, err := h.service.RecordTransaction(r.Context(), cashapp.RecordRequest{
		RegisterID:  req.RegisterID,
		Direction:   cash.Direction(req.Direction),
		Amount:      req.Amount,
		Description: req.Description,
		Date:        date,
		ActorID:     auth.SubjectFromContext(r.Context()),
	})
	if err != nil {
		apihttp.RespondError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusCreated, tx)
	apihttp.LogAudit(h.auditLogger, r, "cash.transaction", "cash_transaction", strconv.FormatInt(tx.ID, 10), map[string]any{
		"register_id": tx.RegisterID,
		"direction":   string(tx.Direction),
		"amount":      tx.Amount.StringFixed(2),
	})
}

func (h *Handler) handleGetTransaction(w http.ResponseWriter, r *http.Request, raw string) {
	id, err := parseID(raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	tx, err := h.service.GetTransaction(r.Context(), id)
	if err != nil {
		apihttp.RespondError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, tx)
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("id must be a positive integer")
	}
	return id, nil
}
