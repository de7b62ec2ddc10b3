// Package statement compiles period-scoped income statements from the
// ledger. It is purely read-side: compilation never mutates state and
// may run concurrently with posts.
package statement

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/toyiyo/nimble-pnl-sub016/internal/ledger"
)

// RevenueSection breaks revenue down the way the statement presents
// it. NetSales = GrossRevenue + OtherRevenue − SalesTaxPayable −
// TipsPayable.
type RevenueSection struct {
	GrossRevenue    decimal.Decimal `json:"gross_revenue"`
	SalesTaxPayable decimal.Decimal `json:"sales_tax_payable"`
	TipsPayable     decimal.Decimal `json:"tips_payable"`
	// OtherRevenue nets any revenue or contra-revenue accounts beyond
	// Gross Revenue, signed by normal balance side.
	OtherRevenue decimal.Decimal `json:"other_revenue"`
	NetSales     decimal.Decimal `json:"net_sales"`
}

// IncomeStatement is a derived read view, recomputed on every request
// and never cached across postings.
type IncomeStatement struct {
	RestaurantID  string          `json:"restaurant_id"`
	Period        ledger.Period   `json:"period"`
	Revenue       RevenueSection  `json:"revenue"`
	TotalCOGS     decimal.Decimal `json:"total_cogs"`
	TotalExpenses decimal.Decimal `json:"total_expenses"`
	NetIncome     decimal.Decimal `json:"net_income"`
}

// Compiler aggregates ledger lines into income statements.
type Compiler struct {
	ledger *ledger.Service
}

// NewCompiler creates a statement compiler over a ledger service.
func NewCompiler(ls *ledger.Service) *Compiler {
	return &Compiler{ledger: ls}
}

// Compile builds the income statement for a restaurant over a period.
// The result is consistent with the ledger at the instant of the
// query; ctx cancellation aborts long aggregations.
func (c *Compiler) Compile(ctx context.Context, restaurantID string, period ledger.Period) (*IncomeStatement, error) {
	if restaurantID == "" {
		return nil, fmt.Errorf("restaurant id is required")
	}

	st := &IncomeStatement{RestaurantID: restaurantID, Period: period}

	revLines, err := c.ledger.Query(ctx, restaurantID, ledger.LineFilter{
		AccountTypes: []ledger.AccountType{ledger.TypeRevenue, ledger.TypeContraRevenue},
		Period:       period,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load revenue lines: %w", err)
	}
	for _, l := range revLines {
		signed := l.Signed()
		if l.AccountType == ledger.TypeContraRevenue {
			// Contra-revenue is debit-normal; a positive signed value
			// reduces revenue.
			signed = signed.Neg()
		}
		if l.AccountCode == ledger.CodeGrossRevenue {
			st.Revenue.GrossRevenue = st.Revenue.GrossRevenue.Add(signed)
		} else {
			st.Revenue.OtherRevenue = st.Revenue.OtherRevenue.Add(signed)
		}
	}

	st.Revenue.SalesTaxPayable, err = c.posLiability(ctx, restaurantID, ledger.CodeSalesTaxPayable, period)
	if err != nil {
		return nil, err
	}
	st.Revenue.TipsPayable, err = c.posLiability(ctx, restaurantID, ledger.CodeTipsPayable, period)
	if err != nil {
		return nil, err
	}

	st.Revenue.NetSales = st.Revenue.GrossRevenue.
		Add(st.Revenue.OtherRevenue).
		Sub(st.Revenue.SalesTaxPayable).
		Sub(st.Revenue.TipsPayable)

	st.TotalCOGS, err = c.classTotal(ctx, restaurantID, ledger.TypeCOGS, period)
	if err != nil {
		return nil, err
	}
	st.TotalExpenses, err = c.classTotal(ctx, restaurantID, ledger.TypeExpense, period)
	if err != nil {
		return nil, err
	}

	st.NetIncome = st.Revenue.NetSales.Sub(st.TotalCOGS).Sub(st.TotalExpenses)
	return st, nil
}

// posLiability sums the period credit activity on a POS pass-through
// liability account (sales tax, tips collected on behalf of staff).
func (c *Compiler) posLiability(ctx context.Context, restaurantID, code string, period ledger.Period) (decimal.Decimal, error) {
	lines, err := c.ledger.Query(ctx, restaurantID, ledger.LineFilter{
		AccountCodes: []string{code},
		Sources:      []ledger.SourceType{ledger.SourcePOSSale},
		Period:       period,
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load %s lines: %w", code, err)
	}
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Signed())
	}
	return total, nil
}

// classTotal sums all lines of one account class signed by normal
// balance side.
func (c *Compiler) classTotal(ctx context.Context, restaurantID string, typ ledger.AccountType, period ledger.Period) (decimal.Decimal, error) {
	lines, err := c.ledger.Query(ctx, restaurantID, ledger.LineFilter{
		AccountTypes: []ledger.AccountType{typ},
		Period:       period,
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load %s lines: %w", typ, err)
	}
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Signed())
	}
	return total, nil
}
