package api

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/toyiyo/nimble-pnl-sub016/internal/inventory"
	"github.com/toyiyo/nimble-pnl-sub016/internal/ledger"
	"github.com/toyiyo/nimble-pnl-sub016/internal/revenue"
	"github.com/toyiyo/nimble-pnl-sub016/internal/security"
	"github.com/toyiyo/nimble-pnl-sub016/internal/statement"
	"github.com/toyiyo/nimble-pnl-sub016/pkg/audit"
)

// Auditor appends request records to the tamper-evident audit chain.
type Auditor interface {
	Append(payload string) *audit.LogEntry
}

// Dependencies wires the router to the domain services.
type Dependencies struct {
	Logger *slog.Logger

	Ledger     *ledger.Service
	Compiler   *statement.Compiler
	Recognizer *revenue.Recognizer
	Stock      *inventory.StockLedger
	Sessions   *inventory.Manager
	Catalog    inventory.Catalog

	Auditor      Auditor
	RateLimiter  *security.RedisTokenBucket
	IPAllowlist  []*net.IPNet
	MaxBodyBytes int64
}

// NewRouter builds the HTTP surface for the ledger core.
func NewRouter(deps Dependencies) (http.Handler, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	postEntryV, err := security.NewJSONSchemaValidator(postEntrySchema)
	if err != nil {
		return nil, err
	}
	posTransactionV, err := security.NewJSONSchemaValidator(posTransactionSchema)
	if err != nil {
		return nil, err
	}
	startCountV, err := security.NewJSONSchemaValidator(startCountSchema)
	if err != nil {
		return nil, err
	}
	submitCountV, err := security.NewJSONSchemaValidator(submitCountSchema)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(security.CorrelationID)
	r.Use(RequestLogger(deps.Logger))
	r.Use(security.BodySizeLimit(deps.MaxBodyBytes))
	r.Use(security.IPAllowlist(deps.IPAllowlist))
	if deps.RateLimiter != nil {
		r.Use(security.RateLimitMiddleware(deps.RateLimiter, rateLimitKeyByIP))
	}
	if deps.Auditor != nil {
		r.Use(AuditMiddleware(deps.Auditor))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(RequireRestaurant)

		r.Get("/accounts", handleListAccounts(deps))
		r.Get("/statement", handleCompileStatement(deps))
		r.Get("/ledger/check", handleCheckBalance(deps))
		r.With(postEntryV.Middleware).Post("/journal-entries", handlePostEntry(deps))
		r.Post("/journal-entries/{entryID}/reverse", handleReverseEntry(deps))
		r.With(posTransactionV.Middleware).Post("/pos/transactions", handleIngestPOS(deps))

		r.Get("/stock/{productID}", handleCurrentStock(deps))

		r.With(startCountV.Middleware).Post("/reconciliations", handleStartCount(deps))
		r.Get("/reconciliations/history", handleSessionHistory(deps))
		r.Get("/reconciliations/{sessionID}", handleGetSession(deps))
		r.With(submitCountV.Middleware).Post("/reconciliations/{sessionID}/count", handleSubmitCount(deps))
		r.Post("/reconciliations/{sessionID}/recount", handleRecount(deps))
		r.Post("/reconciliations/{sessionID}/confirm", handleConfirm(deps))
		r.Post("/reconciliations/{sessionID}/cancel", handleCancel(deps))
	})

	return r, nil
}

func rateLimitKeyByIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
