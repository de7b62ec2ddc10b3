package statement

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toyiyo/nimble-pnl-sub016/internal/ledger"
	"github.com/toyiyo/nimble-pnl-sub016/internal/revenue"
)

func newFixture(t *testing.T) (*Compiler, *ledger.Service, context.Context) {
	t.Helper()
	svc := ledger.NewService(ledger.NewMemoryStore(), nil)
	ctx := context.Background()
	require.NoError(t, svc.EnsureChart(ctx, "r1"))
	return NewCompiler(svc), svc, ctx
}

func ingest(t *testing.T, svc *ledger.Service, ctx context.Context, id string, gross, tax, tip int64, at time.Time) {
	t.Helper()
	rec := revenue.NewRecognizer(svc, nil)
	_, err := rec.Ingest(ctx, revenue.POSTransaction{
		ID:           id,
		RestaurantID: "r1",
		Gross:        decimal.NewFromInt(gross),
		Tax:          decimal.NewFromInt(tax),
		Tip:          decimal.NewFromInt(tip),
		OccurredAt:   at,
	})
	require.NoError(t, err)
}

func post(t *testing.T, svc *ledger.Service, ctx context.Context, at time.Time, debitCode, creditCode string, amount int64) {
	t.Helper()
	debit, err := svc.Store().GetAccount(ctx, "r1", debitCode)
	require.NoError(t, err)
	credit, err := svc.Store().GetAccount(ctx, "r1", creditCode)
	require.NoError(t, err)
	_, err = svc.Post(ctx, &ledger.JournalEntry{
		RestaurantID: "r1",
		OccurredAt:   at,
		Lines: []ledger.Line{
			{AccountID: debit.ID, Side: ledger.Debit, Amount: decimal.NewFromInt(amount)},
			{AccountID: credit.ID, Side: ledger.Credit, Amount: decimal.NewFromInt(amount)},
		},
	})
	require.NoError(t, err)
}

func TestCompileEmptyLedger(t *testing.T) {
	compiler, _, ctx := newFixture(t)

	st, err := compiler.Compile(ctx, "r1", ledger.Period{})
	require.NoError(t, err)
	assert.True(t, st.Revenue.NetSales.IsZero())
	assert.True(t, st.TotalCOGS.IsZero())
	assert.True(t, st.NetIncome.IsZero())
}

func TestCompileRequiresRestaurant(t *testing.T) {
	compiler, _, ctx := newFixture(t)
	_, err := compiler.Compile(ctx, "", ledger.Period{})
	assert.Error(t, err)
}

func TestCompileNetSales(t *testing.T) {
	compiler, svc, ctx := newFixture(t)
	at := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)

	// Gross 1500 with 60 tax and 40 tips collected on top.
	ingest(t, svc, ctx, "tx-1", 1000, 40, 25, at)
	ingest(t, svc, ctx, "tx-2", 500, 20, 15, at)

	st, err := compiler.Compile(ctx, "r1", ledger.Period{})
	require.NoError(t, err)
	assert.True(t, st.Revenue.GrossRevenue.Equal(decimal.NewFromInt(1500)), "got %s", st.Revenue.GrossRevenue)
	assert.True(t, st.Revenue.SalesTaxPayable.Equal(decimal.NewFromInt(60)), "got %s", st.Revenue.SalesTaxPayable)
	assert.True(t, st.Revenue.TipsPayable.Equal(decimal.NewFromInt(40)), "got %s", st.Revenue.TipsPayable)
	assert.True(t, st.Revenue.NetSales.Equal(decimal.NewFromInt(1400)), "got %s", st.Revenue.NetSales)
	assert.True(t, st.NetIncome.Equal(decimal.NewFromInt(1400)))
}

func TestCompileNetIncome(t *testing.T) {
	compiler, svc, ctx := newFixture(t)
	at := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)

	ingest(t, svc, ctx, "tx-1", 1400, 0, 0, at)
	post(t, svc, ctx, at, ledger.CodeCOGS, ledger.CodeInventoryAsset, 500)
	post(t, svc, ctx, at, ledger.CodeOperatingExpenses, ledger.CodeCash, 400)

	st, err := compiler.Compile(ctx, "r1", ledger.Period{})
	require.NoError(t, err)
	assert.True(t, st.Revenue.NetSales.Equal(decimal.NewFromInt(1400)))
	assert.True(t, st.TotalCOGS.Equal(decimal.NewFromInt(500)), "got %s", st.TotalCOGS)
	assert.True(t, st.TotalExpenses.Equal(decimal.NewFromInt(400)), "got %s", st.TotalExpenses)
	assert.True(t, st.NetIncome.Equal(decimal.NewFromInt(500)), "got %s", st.NetIncome)
}

func TestCompileContraRevenueReducesOtherRevenue(t *testing.T) {
	compiler, svc, ctx := newFixture(t)
	at := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)

	ingest(t, svc, ctx, "tx-1", 1000, 0, 0, at)
	// A comp reduces revenue without touching gross sales.
	post(t, svc, ctx, at, ledger.CodeCompsDiscounts, ledger.CodeCash, 100)

	st, err := compiler.Compile(ctx, "r1", ledger.Period{})
	require.NoError(t, err)
	assert.True(t, st.Revenue.GrossRevenue.Equal(decimal.NewFromInt(1000)))
	assert.True(t, st.Revenue.OtherRevenue.Equal(decimal.NewFromInt(-100)), "got %s", st.Revenue.OtherRevenue)
	assert.True(t, st.Revenue.NetSales.Equal(decimal.NewFromInt(900)), "got %s", st.Revenue.NetSales)
}

func TestCompileTaxRemittanceDoesNotDistortStatement(t *testing.T) {
	compiler, svc, ctx := newFixture(t)
	at := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)

	ingest(t, svc, ctx, "tx-1", 1000, 80, 0, at)
	// Remitting the collected tax debits the liability but is not
	// POS activity, so the statement's tax figure must not change.
	post(t, svc, ctx, at.Add(time.Hour), ledger.CodeSalesTaxPayable, ledger.CodeCash, 80)

	st, err := compiler.Compile(ctx, "r1", ledger.Period{})
	require.NoError(t, err)
	assert.True(t, st.Revenue.SalesTaxPayable.Equal(decimal.NewFromInt(80)), "got %s", st.Revenue.SalesTaxPayable)
	assert.True(t, st.Revenue.NetSales.Equal(decimal.NewFromInt(920)))
}

func TestCompilePeriodScoping(t *testing.T) {
	compiler, svc, ctx := newFixture(t)

	march := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	april := time.Date(2026, 4, 15, 12, 0, 0, 0, time.UTC)
	ingest(t, svc, ctx, "tx-mar", 300, 0, 0, march)
	ingest(t, svc, ctx, "tx-apr", 700, 0, 0, april)

	period := ledger.Period{
		Start: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}
	st, err := compiler.Compile(ctx, "r1", period)
	require.NoError(t, err)
	assert.True(t, st.Revenue.GrossRevenue.Equal(decimal.NewFromInt(300)), "got %s", st.Revenue.GrossRevenue)

	all, err := compiler.Compile(ctx, "r1", ledger.Period{})
	require.NoError(t, err)
	assert.True(t, all.Revenue.GrossRevenue.Equal(decimal.NewFromInt(1000)))
}

func TestCompileIsReadOnly(t *testing.T) {
	compiler, svc, ctx := newFixture(t)
	at := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	ingest(t, svc, ctx, "tx-1", 250, 10, 5, at)

	before, err := svc.Query(ctx, "r1", ledger.LineFilter{})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := compiler.Compile(ctx, "r1", ledger.Period{})
		require.NoError(t, err)
	}

	after, err := svc.Query(ctx, "r1", ledger.LineFilter{})
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after))
}
