package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toyiyo/nimble-pnl-sub016/internal/inventory"
	"github.com/toyiyo/nimble-pnl-sub016/internal/ledger"
	"github.com/toyiyo/nimble-pnl-sub016/internal/revenue"
	"github.com/toyiyo/nimble-pnl-sub016/internal/statement"
	"github.com/toyiyo/nimble-pnl-sub016/pkg/audit"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := ledger.NewService(ledger.NewMemoryStore(), logger)
	require.NoError(t, svc.EnsureChart(ctx, "r1"))
	require.NoError(t, svc.EnsureChart(ctx, "r2"))

	catalog := inventory.NewMemoryCatalog()
	catalog.PutProduct(&inventory.Product{
		ID:           "p1",
		RestaurantID: "r1",
		SKU:          "TOMATO-1KG",
		Name:         "Tomatoes 1kg",
		UnitCost:     decimal.RequireFromString("2.50"),
	})

	stock := inventory.NewStockLedger(inventory.NewMemoryStockStore())
	sessions := inventory.NewManager(inventory.NewMemorySessionStore(), stock, svc, catalog, logger)

	router, err := NewRouter(Dependencies{
		Logger:     logger,
		Ledger:     svc,
		Compiler:   statement.NewCompiler(svc),
		Recognizer: revenue.NewRecognizer(svc, logger),
		Stock:      stock,
		Sessions:   sessions,
		Catalog:    catalog,
		Auditor:    audit.NewChainLogger(),
	})
	require.NoError(t, err)
	return router
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return doRequestAs(t, router, "r1", method, path, body)
}

func doRequestAs(t *testing.T, router http.Handler, restaurantID, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(RestaurantIDHeader, restaurantID)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMissingRestaurantHeader(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/accounts", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing_restaurant_id")
}

func TestListAccounts(t *testing.T) {
	router := newTestRouter(t)
	rec := doRequest(t, router, http.MethodGet, "/v1/accounts", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		CorrelationID string            `json:"correlation_id"`
		Accounts      []*ledger.Account `json:"accounts"`
	}
	decodeBody(t, rec, &resp)
	assert.NotEmpty(t, resp.CorrelationID)
	assert.Len(t, resp.Accounts, 9)
}

func TestPostJournalEntry(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/v1/journal-entries", `{
		"description": "rent",
		"lines": [
			{"account_code": "6000", "side": "debit", "amount": 1200},
			{"account_code": "1000", "side": "credit", "amount": 1200}
		]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		EntryID string `json:"entry_id"`
	}
	decodeBody(t, rec, &resp)
	assert.NotEmpty(t, resp.EntryID)

	check := doRequest(t, router, http.MethodGet, "/v1/ledger/check", "")
	require.Equal(t, http.StatusOK, check.Code)
	assert.Contains(t, check.Body.String(), `"balanced":true`)
}

func TestPostJournalEntryUnbalanced(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/v1/journal-entries", `{
		"lines": [
			{"account_code": "6000", "side": "debit", "amount": 100},
			{"account_code": "1000", "side": "credit", "amount": 90}
		]
	}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "unbalanced_entry")
}

func TestPostJournalEntrySchemaRejections(t *testing.T) {
	router := newTestRouter(t)

	// A single line can never balance.
	rec := doRequest(t, router, http.MethodPost, "/v1/journal-entries", `{
		"lines": [{"account_code": "6000", "side": "debit", "amount": 100}]
	}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Negative amounts are rejected before the handler runs.
	rec = doRequest(t, router, http.MethodPost, "/v1/journal-entries", `{
		"lines": [
			{"account_code": "6000", "side": "debit", "amount": -5},
			{"account_code": "1000", "side": "credit", "amount": -5}
		]
	}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/v1/journal-entries", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostJournalEntryUnknownAccount(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/v1/journal-entries", `{
		"lines": [
			{"account_code": "9999", "side": "debit", "amount": 10},
			{"account_code": "1000", "side": "credit", "amount": 10}
		]
	}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "account_not_found")
}

func TestReverseJournalEntry(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/v1/journal-entries", `{
		"lines": [
			{"account_code": "6000", "side": "debit", "amount": 250},
			{"account_code": "1000", "side": "credit", "amount": 250}
		]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var posted struct {
		EntryID string `json:"entry_id"`
	}
	decodeBody(t, rec, &posted)

	rec = doRequest(t, router, http.MethodPost, "/v1/journal-entries/"+posted.EntryID+"/reverse", `{"reason": "mispost"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var reversed struct {
		EntryID string `json:"entry_id"`
	}
	decodeBody(t, rec, &reversed)
	assert.NotEmpty(t, reversed.EntryID)
	assert.NotEqual(t, posted.EntryID, reversed.EntryID)

	// A second reversal of the same entry conflicts.
	rec = doRequest(t, router, http.MethodPost, "/v1/journal-entries/"+posted.EntryID+"/reverse", `{"reason": "again"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/v1/journal-entries/ghost/reverse", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIngestPOSTransaction(t *testing.T) {
	router := newTestRouter(t)

	body := `{"id": "tx-1", "gross": 100, "tax": 8, "tip": 15}`
	rec := doRequest(t, router, http.MethodPost, "/v1/pos/transactions", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var first struct {
		EntryID string `json:"entry_id"`
	}
	decodeBody(t, rec, &first)
	require.NotEmpty(t, first.EntryID)

	// Replays return the original entry id instead of double posting.
	rec = doRequest(t, router, http.MethodPost, "/v1/pos/transactions", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	var second struct {
		EntryID string `json:"entry_id"`
	}
	decodeBody(t, rec, &second)
	assert.Equal(t, first.EntryID, second.EntryID)
}

func TestIngestPOSValidation(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/v1/pos/transactions", `{"gross": 100}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "id is required")

	rec = doRequest(t, router, http.MethodPost, "/v1/pos/transactions", `{"id": "tx-1", "gross": 0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "gross must be positive")
}

func TestStatementEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/v1/pos/transactions",
		`{"id": "tx-1", "gross": 1500, "tax": 60, "tip": 40}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/v1/statement", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Statement struct {
			Revenue struct {
				GrossRevenue decimal.Decimal `json:"gross_revenue"`
				NetSales     decimal.Decimal `json:"net_sales"`
			} `json:"revenue"`
			NetIncome decimal.Decimal `json:"net_income"`
		} `json:"statement"`
	}
	decodeBody(t, rec, &resp)
	assert.True(t, resp.Statement.Revenue.GrossRevenue.Equal(decimal.NewFromInt(1500)))
	assert.True(t, resp.Statement.Revenue.NetSales.Equal(decimal.NewFromInt(1400)))
	assert.True(t, resp.Statement.NetIncome.Equal(decimal.NewFromInt(1400)))
}

func TestStatementInvalidPeriod(t *testing.T) {
	router := newTestRouter(t)
	rec := doRequest(t, router, http.MethodGet, "/v1/statement?start=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_period")
}

func TestReconciliationLifecycleOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/v1/reconciliations", `{"product_id": "p1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var started struct {
		Session *inventory.Session `json:"session"`
	}
	decodeBody(t, rec, &started)
	sessionID := started.Session.ID
	require.NotEmpty(t, sessionID)
	assert.Equal(t, inventory.StateCountingInProgress, started.Session.State)

	// A second start for the same product conflicts.
	rec = doRequest(t, router, http.MethodPost, "/v1/reconciliations", `{"product_id": "p1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "count_already_in_progress")

	// Confirming before any count is a state-machine violation.
	rec = doRequest(t, router, http.MethodPost, "/v1/reconciliations/"+sessionID+"/confirm", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_session_state")

	rec = doRequest(t, router, http.MethodPost, "/v1/reconciliations/"+sessionID+"/count", `{"quantity": 4}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(t, router, http.MethodPost, "/v1/reconciliations/"+sessionID+"/confirm", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var confirmed struct {
		EntryID string `json:"entry_id"`
	}
	decodeBody(t, rec, &confirmed)
	assert.NotEmpty(t, confirmed.EntryID, "variance of +4 posts an adjustment")

	// Stock now reflects the counted quantity.
	rec = doRequest(t, router, http.MethodGet, "/v1/stock/p1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"quantity":4`)

	// The terminal session shows up in history and rejects reuse.
	rec = doRequest(t, router, http.MethodGet, "/v1/reconciliations/history?product_id=p1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		Sessions []*inventory.Session `json:"sessions"`
	}
	decodeBody(t, rec, &history)
	assert.Len(t, history.Sessions, 1)

	rec = doRequest(t, router, http.MethodPost, "/v1/reconciliations/"+sessionID+"/cancel", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestReconciliationUnknownProduct(t *testing.T) {
	router := newTestRouter(t)
	rec := doRequest(t, router, http.MethodPost, "/v1/reconciliations", `{"product_id": "ghost"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionAndStockScopedToRestaurant(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/v1/reconciliations", `{"product_id": "p1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var started struct {
		Session *inventory.Session `json:"session"`
	}
	decodeBody(t, rec, &started)
	sessionID := started.Session.ID

	// Another restaurant cannot see or drive the session.
	rec = doRequestAs(t, router, "r2", http.MethodGet, "/v1/reconciliations/"+sessionID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doRequestAs(t, router, "r2", http.MethodPost, "/v1/reconciliations/"+sessionID+"/count", `{"quantity": 4}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doRequestAs(t, router, "r2", http.MethodPost, "/v1/reconciliations/"+sessionID+"/confirm", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doRequestAs(t, router, "r2", http.MethodPost, "/v1/reconciliations/"+sessionID+"/recount", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doRequestAs(t, router, "r2", http.MethodPost, "/v1/reconciliations/"+sessionID+"/cancel", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Same for stock and history on another restaurant's product.
	rec = doRequestAs(t, router, "r2", http.MethodGet, "/v1/stock/p1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doRequestAs(t, router, "r2", http.MethodGet, "/v1/reconciliations/history?product_id=p1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// The owner's session is untouched by the rejected calls.
	rec = doRequest(t, router, http.MethodGet, "/v1/reconciliations/"+sessionID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Session *inventory.Session `json:"session"`
	}
	decodeBody(t, rec, &got)
	assert.Equal(t, inventory.StateCountingInProgress, got.Session.State)
	assert.Nil(t, got.Session.CountedQty)

	rec = doRequest(t, router, http.MethodPost, "/v1/reconciliations/"+sessionID+"/count", `{"quantity": 4}`)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestGetUnknownSession(t *testing.T) {
	router := newTestRouter(t)
	rec := doRequest(t, router, http.MethodGet, "/v1/reconciliations/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryRequiresProductID(t *testing.T) {
	router := newTestRouter(t)
	rec := doRequest(t, router, http.MethodGet, "/v1/reconciliations/history", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing_product_id")
}

func TestCorrelationIDPropagated(t *testing.T) {
	router := newTestRouter(t)
	rec := doRequest(t, router, http.MethodGet, "/v1/accounts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}
