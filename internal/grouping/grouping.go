// Package grouping derives the per-customer view of the purchase list:
// which purchases belong to whom, how many there are and how much is
// still owed.
package grouping

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tiendaluna/cobranzas/internal/model"
)

type Grouping struct {
	zaplog *zap.Logger
}

func New(zaplog *zap.Logger) *Grouping {
	return &Grouping{zaplog: zaplog}
}

// Grouped is the result of one grouping pass. It is rebuilt from
// scratch on every purchase-list change, never patched per element.
type Grouped struct {
	groups map[int64]*model.CustomerWithPurchases
	order  []int64
}

// GroupByCustomer groups purchases by their embedded customer.
// Purchases without a usable customer reference cannot be attributed
// to any card: they are logged and skipped, and must not create a
// group of their own. Purchase order within a group follows input
// order. The group keeps the latest customer snapshot seen, so a
// phone number updated between fetches wins over the first one.
func (g *Grouping) GroupByCustomer(purchases []model.Purchase) *Grouped {
	grouped := &Grouped{groups: make(map[int64]*model.CustomerWithPurchases)}

	for _, purchase := range purchases {
		if !purchase.HasValidCustomer() {
			g.zaplog.Warn("purchase without valid customer, skipping",
				zap.Int64("purchase", purchase.ID))
			continue
		}

		id := purchase.Customer.ID
		group, ok := grouped.groups[id]
		if !ok {
			group = &model.CustomerWithPurchases{Customer: *purchase.Customer}
			grouped.groups[id] = group
			grouped.order = append(grouped.order, id)
		} else {
			group.Customer = *purchase.Customer
		}
		group.Purchases = append(group.Purchases, purchase)
	}

	return grouped
}

// Customers returns the groups in order of first appearance.
func (gr *Grouped) Customers() []model.CustomerWithPurchases {
	out := make([]model.CustomerWithPurchases, 0, len(gr.order))
	for _, id := range gr.order {
		out = append(out, *gr.groups[id])
	}
	return out
}

func (gr *Grouped) Group(customerID int64) (model.CustomerWithPurchases, bool) {
	group, ok := gr.groups[customerID]
	if !ok {
		return model.CustomerWithPurchases{}, false
	}
	return *group, true
}

// TotalDebt sums the debt of the customer's pending purchases. Status
// is authoritative over the debt field: a purchase marked pagado
// contributes zero even if it still carries a stale non-zero debt.
func (gr *Grouped) TotalDebt(customerID int64) decimal.Decimal {
	total := decimal.Zero
	group, ok := gr.groups[customerID]
	if !ok {
		return total
	}
	for _, purchase := range group.Purchases {
		if purchase.Status == model.PurchaseStatusPending {
			total = total.Add(purchase.Debt)
		}
	}
	return total
}

// PurchaseCount counts the customer's purchases regardless of status.
func (gr *Grouped) PurchaseCount(customerID int64) int {
	group, ok := gr.groups[customerID]
	if !ok {
		return 0
	}
	return len(group.Purchases)
}
