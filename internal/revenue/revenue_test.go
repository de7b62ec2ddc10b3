package revenue

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toyiyo/nimble-pnl-sub016/internal/ledger"
)

func newRecognizer(t *testing.T) (*Recognizer, *ledger.Service, context.Context) {
	t.Helper()
	svc := ledger.NewService(ledger.NewMemoryStore(), nil)
	ctx := context.Background()
	require.NoError(t, svc.EnsureChart(ctx, "r1"))
	return NewRecognizer(svc, nil), svc, ctx
}

func TestIngestPostsBalancedEntry(t *testing.T) {
	rec, svc, ctx := newRecognizer(t)
	at := time.Date(2026, 3, 10, 19, 30, 0, 0, time.UTC)

	entryID, err := rec.Ingest(ctx, POSTransaction{
		ID:           "tx-100",
		RestaurantID: "r1",
		Gross:        decimal.NewFromInt(100),
		Tax:          decimal.NewFromInt(8),
		Tip:          decimal.NewFromInt(15),
		OccurredAt:   at,
	})
	require.NoError(t, err)

	entry, err := svc.Store().GetEntry(ctx, "r1", entryID)
	require.NoError(t, err)
	assert.True(t, entry.Balanced())
	assert.Equal(t, ledger.SourcePOSSale, entry.Source)
	assert.Equal(t, "tx-100", entry.SourceID)
	assert.Equal(t, at, entry.OccurredAt)
	require.Len(t, entry.Lines, 4)

	// Cash is debited for the full tender.
	assert.Equal(t, ledger.Debit, entry.Lines[0].Side)
	assert.True(t, entry.Lines[0].Amount.Equal(decimal.NewFromInt(123)), "got %s", entry.Lines[0].Amount)

	cash, err := svc.AccountBalance(ctx, "r1", ledger.CodeCash, ledger.Period{})
	require.NoError(t, err)
	assert.True(t, cash.Equal(decimal.NewFromInt(123)))

	gross, err := svc.AccountBalance(ctx, "r1", ledger.CodeGrossRevenue, ledger.Period{})
	require.NoError(t, err)
	assert.True(t, gross.Equal(decimal.NewFromInt(100)))

	tax, err := svc.AccountBalance(ctx, "r1", ledger.CodeSalesTaxPayable, ledger.Period{})
	require.NoError(t, err)
	assert.True(t, tax.Equal(decimal.NewFromInt(8)))

	tips, err := svc.AccountBalance(ctx, "r1", ledger.CodeTipsPayable, ledger.Period{})
	require.NoError(t, err)
	assert.True(t, tips.Equal(decimal.NewFromInt(15)))
}

func TestIngestOmitsZeroTaxAndTipLines(t *testing.T) {
	rec, svc, ctx := newRecognizer(t)

	entryID, err := rec.Ingest(ctx, POSTransaction{
		ID:           "tx-101",
		RestaurantID: "r1",
		Gross:        decimal.NewFromInt(50),
	})
	require.NoError(t, err)

	entry, err := svc.Store().GetEntry(ctx, "r1", entryID)
	require.NoError(t, err)
	assert.Len(t, entry.Lines, 2)
}

func TestIngestIdempotent(t *testing.T) {
	rec, svc, ctx := newRecognizer(t)

	tx := POSTransaction{
		ID:           "tx-102",
		RestaurantID: "r1",
		Gross:        decimal.NewFromInt(75),
		Tax:          decimal.NewFromInt(6),
	}

	firstID, err := rec.Ingest(ctx, tx)
	require.NoError(t, err)

	// At-least-once delivery replays the same transaction; the
	// replay must not post a second entry.
	secondID, err := rec.Ingest(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, firstID, secondID)

	lines, err := svc.Query(ctx, "r1", ledger.LineFilter{Sources: []ledger.SourceType{ledger.SourcePOSSale}})
	require.NoError(t, err)
	assert.Len(t, lines, 3)

	gross, err := svc.AccountBalance(ctx, "r1", ledger.CodeGrossRevenue, ledger.Period{})
	require.NoError(t, err)
	assert.True(t, gross.Equal(decimal.NewFromInt(75)), "replay must not double revenue, got %s", gross)
}

func TestIngestValidation(t *testing.T) {
	rec, _, ctx := newRecognizer(t)

	_, err := rec.Ingest(ctx, POSTransaction{RestaurantID: "r1", Gross: decimal.NewFromInt(10)})
	assert.Error(t, err, "missing id")

	_, err = rec.Ingest(ctx, POSTransaction{ID: "tx-1", Gross: decimal.NewFromInt(10)})
	assert.Error(t, err, "missing restaurant")

	_, err = rec.Ingest(ctx, POSTransaction{ID: "tx-1", RestaurantID: "r1"})
	assert.Error(t, err, "zero gross")

	_, err = rec.Ingest(ctx, POSTransaction{ID: "tx-1", RestaurantID: "r1", Gross: decimal.NewFromInt(10), Tax: decimal.NewFromInt(-1)})
	assert.Error(t, err, "negative tax")
}

func TestIngestUnprovisionedRestaurant(t *testing.T) {
	rec, _, ctx := newRecognizer(t)

	_, err := rec.Ingest(ctx, POSTransaction{
		ID:           "tx-1",
		RestaurantID: "r-unknown",
		Gross:        decimal.NewFromInt(10),
	})
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}
