package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/toyiyo/nimble-pnl-sub016/internal/inventory"
	"github.com/toyiyo/nimble-pnl-sub016/internal/ledger"
	"github.com/toyiyo/nimble-pnl-sub016/internal/revenue"
	"github.com/toyiyo/nimble-pnl-sub016/internal/security"
	"github.com/toyiyo/nimble-pnl-sub016/internal/statement"
)

type listAccountsResponse struct {
	CorrelationID string            `json:"correlation_id"`
	Accounts      []*ledger.Account `json:"accounts"`
}

func handleListAccounts(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := RestaurantIDFromContext(r.Context())
		accounts, err := deps.Ledger.Store().ListAccounts(r.Context(), rid)
		if err != nil {
			security.WriteJSONError(w, r, http.StatusInternalServerError, "internal_error")
			return
		}
		writeJSON(w, r, http.StatusOK, listAccountsResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Accounts:      accounts,
		})
	}
}

type statementResponse struct {
	CorrelationID string                     `json:"correlation_id"`
	Statement     *statement.IncomeStatement `json:"statement"`
}

func handleCompileStatement(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := RestaurantIDFromContext(r.Context())

		period, ok := parsePeriod(w, r)
		if !ok {
			return
		}

		st, err := deps.Compiler.Compile(r.Context(), rid, period)
		if err != nil {
			if errors.Is(err, r.Context().Err()) {
				return
			}
			security.WriteJSONError(w, r, http.StatusInternalServerError, "statement_unavailable")
			return
		}
		writeJSON(w, r, http.StatusOK, statementResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Statement:     st,
		})
	}
}

func parsePeriod(w http.ResponseWriter, r *http.Request) (ledger.Period, bool) {
	var p ledger.Period
	if v := r.URL.Query().Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_period")
			return p, false
		}
		p.Start = t
	}
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_period")
			return p, false
		}
		p.End = t
	}
	return p, true
}

type checkBalanceResponse struct {
	CorrelationID string `json:"correlation_id"`
	Debits        string `json:"debits"`
	Credits       string `json:"credits"`
	Balanced      bool   `json:"balanced"`
}

func handleCheckBalance(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := RestaurantIDFromContext(r.Context())
		debits, credits, err := deps.Ledger.CheckBalance(r.Context(), rid)
		if err != nil {
			security.WriteJSONError(w, r, http.StatusInternalServerError, "internal_error")
			return
		}
		writeJSON(w, r, http.StatusOK, checkBalanceResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Debits:        debits.String(),
			Credits:       credits.String(),
			Balanced:      debits.Equal(credits),
		})
	}
}

type postEntryRequest struct {
	OccurredAt  string `json:"occurred_at"`
	Description string `json:"description"`
	Lines       []struct {
		AccountCode string          `json:"account_code"`
		Side        string          `json:"side"`
		Amount      decimal.Decimal `json:"amount"`
		Memo        string          `json:"memo"`
	} `json:"lines"`
}

type postEntryResponse struct {
	CorrelationID string `json:"correlation_id"`
	EntryID       string `json:"entry_id"`
}

func handlePostEntry(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := RestaurantIDFromContext(r.Context())

		var req postEntryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		entry := &ledger.JournalEntry{
			RestaurantID: rid,
			Source:       ledger.SourceManual,
			Description:  req.Description,
		}
		if req.OccurredAt != "" {
			t, err := time.Parse(time.RFC3339, req.OccurredAt)
			if err != nil {
				security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_occurred_at")
				return
			}
			entry.OccurredAt = t
		}
		for _, l := range req.Lines {
			acct, err := deps.Ledger.Store().GetAccount(r.Context(), rid, l.AccountCode)
			if err != nil {
				if errors.Is(err, ledger.ErrAccountNotFound) {
					security.WriteJSONError(w, r, http.StatusNotFound, "account_not_found")
					return
				}
				security.WriteJSONError(w, r, http.StatusInternalServerError, "internal_error")
				return
			}
			entry.Lines = append(entry.Lines, ledger.Line{
				AccountID: acct.ID,
				Side:      ledger.Side(l.Side),
				Amount:    l.Amount,
				Memo:      l.Memo,
			})
		}

		entryID, err := deps.Ledger.Post(r.Context(), entry)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusCreated, postEntryResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			EntryID:       entryID,
		})
	}
}

type reverseEntryRequest struct {
	Reason string `json:"reason"`
}

func handleReverseEntry(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := RestaurantIDFromContext(r.Context())

		var req reverseEntryRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
				return
			}
		}

		reversal, err := deps.Ledger.Reverse(r.Context(), rid, chi.URLParam(r, "entryID"), req.Reason)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusCreated, postEntryResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			EntryID:       reversal.ID,
		})
	}
}

type posTransactionRequest struct {
	ID         string          `json:"id"`
	Gross      decimal.Decimal `json:"gross"`
	Tax        decimal.Decimal `json:"tax"`
	Tip        decimal.Decimal `json:"tip"`
	OccurredAt string          `json:"occurred_at"`
}

type posTransactionResponse struct {
	CorrelationID string `json:"correlation_id"`
	EntryID       string `json:"entry_id"`
}

func handleIngestPOS(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := RestaurantIDFromContext(r.Context())

		var req posTransactionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		tx := revenue.POSTransaction{
			ID:           req.ID,
			RestaurantID: rid,
			Gross:        req.Gross,
			Tax:          req.Tax,
			Tip:          req.Tip,
		}
		if req.OccurredAt != "" {
			t, err := time.Parse(time.RFC3339, req.OccurredAt)
			if err != nil {
				security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_occurred_at")
				return
			}
			tx.OccurredAt = t
		}

		entryID, err := deps.Recognizer.Ingest(r.Context(), tx)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusCreated, posTransactionResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			EntryID:       entryID,
		})
	}
}

type currentStockResponse struct {
	CorrelationID string `json:"correlation_id"`
	ProductID     string `json:"product_id"`
	Quantity      int64  `json:"quantity"`
}

func handleCurrentStock(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := RestaurantIDFromContext(r.Context())
		productID := chi.URLParam(r, "productID")
		if _, err := deps.Catalog.GetProduct(r.Context(), rid, productID); err != nil {
			writeDomainError(w, r, err)
			return
		}
		qty, err := deps.Stock.CurrentQuantity(r.Context(), productID)
		if err != nil {
			security.WriteJSONError(w, r, http.StatusInternalServerError, "internal_error")
			return
		}
		writeJSON(w, r, http.StatusOK, currentStockResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			ProductID:     productID,
			Quantity:      qty,
		})
	}
}

type startCountRequest struct {
	ProductID string `json:"product_id"`
}

type sessionResponse struct {
	CorrelationID string             `json:"correlation_id"`
	Session       *inventory.Session `json:"session"`
}

func handleStartCount(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := RestaurantIDFromContext(r.Context())

		var req startCountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		s, err := deps.Sessions.StartCount(r.Context(), rid, req.ProductID)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusCreated, sessionResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Session:       s,
		})
	}
}

// scopedSession resolves the sessionID route param within the request's
// restaurant. A session owned by another restaurant reads as not found,
// so ids never leak across tenants.
func scopedSession(deps Dependencies, w http.ResponseWriter, r *http.Request) (*inventory.Session, bool) {
	s, err := deps.Sessions.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeDomainError(w, r, err)
		return nil, false
	}
	if s.RestaurantID != RestaurantIDFromContext(r.Context()) {
		security.WriteJSONError(w, r, http.StatusNotFound, "not_found")
		return nil, false
	}
	return s, true
}

func handleGetSession(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := scopedSession(deps, w, r)
		if !ok {
			return
		}
		writeJSON(w, r, http.StatusOK, sessionResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Session:       s,
		})
	}
}

type submitCountRequest struct {
	Quantity int64 `json:"quantity"`
}

func handleSubmitCount(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitCountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		scoped, ok := scopedSession(deps, w, r)
		if !ok {
			return
		}
		s, err := deps.Sessions.SubmitCount(r.Context(), scoped.ID, req.Quantity)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, sessionResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Session:       s,
		})
	}
}

func handleRecount(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scoped, ok := scopedSession(deps, w, r)
		if !ok {
			return
		}
		s, err := deps.Sessions.Recount(r.Context(), scoped.ID)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, sessionResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Session:       s,
		})
	}
}

type confirmResponse struct {
	CorrelationID string `json:"correlation_id"`
	EntryID       string `json:"entry_id,omitempty"`
}

func handleConfirm(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scoped, ok := scopedSession(deps, w, r)
		if !ok {
			return
		}
		entryID, err := deps.Sessions.Confirm(r.Context(), scoped.ID)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, confirmResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			EntryID:       entryID,
		})
	}
}

func handleCancel(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scoped, ok := scopedSession(deps, w, r)
		if !ok {
			return
		}
		s, err := deps.Sessions.Cancel(r.Context(), scoped.ID)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, sessionResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Session:       s,
		})
	}
}

type historyResponse struct {
	CorrelationID string               `json:"correlation_id"`
	Sessions      []*inventory.Session `json:"sessions"`
}

func handleSessionHistory(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := RestaurantIDFromContext(r.Context())
		productID := r.URL.Query().Get("product_id")
		if productID == "" {
			security.WriteJSONError(w, r, http.StatusBadRequest, "missing_product_id")
			return
		}
		if _, err := deps.Catalog.GetProduct(r.Context(), rid, productID); err != nil {
			writeDomainError(w, r, err)
			return
		}
		sessions, err := deps.Sessions.History(r.Context(), productID)
		if err != nil {
			security.WriteJSONError(w, r, http.StatusInternalServerError, "internal_error")
			return
		}
		writeJSON(w, r, http.StatusOK, historyResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Sessions:      sessions,
		})
	}
}

// writeDomainError maps domain error types onto the HTTP surface:
// conflicts are retryable 409s, invalid state is a 422 usage error,
// unbalanced entries are 422 producer defects.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		balanceErr  *ledger.BalanceError
		dupErr      *ledger.DuplicateEntryError
		conflictErr *inventory.SessionConflictError
		stateErr    *inventory.InvalidStateError
	)
	switch {
	case errors.As(err, &balanceErr):
		security.WriteJSONError(w, r, http.StatusUnprocessableEntity, "unbalanced_entry")
	case errors.As(err, &dupErr):
		security.WriteJSONError(w, r, http.StatusConflict, "duplicate_entry")
	case errors.As(err, &conflictErr):
		security.WriteJSONError(w, r, http.StatusConflict, "count_already_in_progress")
	case errors.As(err, &stateErr):
		security.WriteJSONError(w, r, http.StatusUnprocessableEntity, "invalid_session_state")
	case errors.Is(err, inventory.ErrSessionNotFound),
		errors.Is(err, inventory.ErrProductNotFound),
		errors.Is(err, ledger.ErrAccountNotFound),
		errors.Is(err, ledger.ErrEntryNotFound):
		security.WriteJSONError(w, r, http.StatusNotFound, "not_found")
	default:
		security.WriteJSONError(w, r, http.StatusInternalServerError, "internal_error")
	}
}
