// Package filter narrows the purchase list for display. Every filter
// pass is a pure function of the current list and filter values, so
// the filtered view can never drift from the underlying data after a
// mutation.
package filter

import (
	"strings"

	"github.com/tiendaluna/cobranzas/internal/model"
)

// Apply returns the purchases matching all active filters (logical
// AND). An empty filter field matches everything. Purchases without a
// named customer are excluded regardless of the other filters.
func Apply(purchases []model.Purchase, f model.Filters) []model.Purchase {
	term := strings.ToLower(f.SearchTerm)

	out := make([]model.Purchase, 0, len(purchases))
	for _, purchase := range purchases {
		if !purchase.HasValidCustomer() || purchase.Customer.Name == "" {
			continue
		}
		if !strings.Contains(strings.ToLower(purchase.Customer.Name), term) {
			continue
		}
		if f.PurchaseName != "" && purchase.Name != f.PurchaseName {
			continue
		}
		if f.Status != "" && purchase.Status != f.Status {
			continue
		}
		if f.OrderDate != "" && purchase.OrderDate != f.OrderDate {
			continue
		}
		out = append(out, purchase)
	}
	return out
}

// DistinctNames lists the purchase names present in the list, without
// duplicates, in first-seen order. Backs the name selector.
func DistinctNames(purchases []model.Purchase) []string {
	return distinct(purchases, func(p model.Purchase) string { return p.Name })
}

// DistinctStatuses lists the statuses present in the list, without
// duplicates, in first-seen order. Backs the status selector.
func DistinctStatuses(purchases []model.Purchase) []string {
	return distinct(purchases, func(p model.Purchase) string { return p.Status })
}

func distinct(purchases []model.Purchase, field func(model.Purchase) string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, purchase := range purchases {
		v := field(purchase)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
