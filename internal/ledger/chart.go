package ledger

import (
	"context"
	"errors"
	"fmt"
)

// Well-known account codes every restaurant is provisioned with.
const (
	CodeCash                = "1000"
	CodeInventoryAsset      = "1200"
	CodeSalesTaxPayable     = "2100"
	CodeTipsPayable         = "2200"
	CodeGrossRevenue        = "4000"
	CodeCompsDiscounts      = "4900"
	CodeCOGS                = "5000"
	CodeInventoryAdjustment = "5200"
	CodeOperatingExpenses   = "6000"
)

type chartAccount struct {
	code string
	name string
	typ  AccountType
}

var standardChart = []chartAccount{
	{CodeCash, "Cash", TypeAsset},
	{CodeInventoryAsset, "Inventory Asset", TypeAsset},
	{CodeSalesTaxPayable, "Sales Tax Payable", TypeLiability},
	{CodeTipsPayable, "Tips Payable", TypeLiability},
	{CodeGrossRevenue, "Gross Revenue", TypeRevenue},
	{CodeCompsDiscounts, "Comps & Discounts", TypeContraRevenue},
	{CodeCOGS, "Cost of Goods Sold", TypeCOGS},
	{CodeInventoryAdjustment, "Inventory Adjustment", TypeCOGS},
	{CodeOperatingExpenses, "Operating Expenses", TypeExpense},
}

// EnsureChart creates the standard chart of accounts for a restaurant.
// Accounts that already exist are left untouched, so the call is safe
// to repeat on every startup.
func (s *Service) EnsureChart(ctx context.Context, restaurantID string) error {
	for _, ca := range standardChart {
		_, err := s.store.GetAccount(ctx, restaurantID, ca.code)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrAccountNotFound) {
			return fmt.Errorf("failed to check account %s: %w", ca.code, err)
		}
		if _, err := s.CreateAccount(ctx, &Account{
			RestaurantID: restaurantID,
			Code:         ca.code,
			Name:         ca.name,
			Type:         ca.typ,
		}); err != nil {
			return fmt.Errorf("failed to provision account %s: %w", ca.code, err)
		}
	}
	return nil
}
