package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/tiendaluna/cobranzas/internal/model"
)

// Invoice is the printable-invoice view model: everything already
// computed and formatted, so the presentation layer only lays it out.
// Rendering (PDF or otherwise) is not this service's concern.
type Invoice struct {
	PurchaseID    int64          `json:"purchaseId"`
	PurchaseName  string         `json:"purchaseName"`
	Status        string         `json:"status"`
	IssuedDate    string         `json:"issuedDate"`
	DueDate       string         `json:"dueDate"`
	Customer      model.Customer `json:"customer"`
	CustomerSince string         `json:"customerSince"`
	Lines         []InvoiceLine  `json:"lines"`

	Total          decimal.Decimal `json:"total"`
	TotalFormatted string          `json:"totalFormatted"`
	Paid           decimal.Decimal `json:"paid"`
	PaidFormatted  string          `json:"paidFormatted"`
	Due            decimal.Decimal `json:"due"`
	DueFormatted   string          `json:"dueFormatted"`

	Payments []InvoicePayment `json:"payments"`
}

type InvoiceLine struct {
	Name               string          `json:"name"`
	Quantity           int             `json:"quantity"`
	UnitPrice          decimal.Decimal `json:"unitPrice"`
	UnitPriceFormatted string          `json:"unitPriceFormatted"`
	Total              decimal.Decimal `json:"total"`
	TotalFormatted     string          `json:"totalFormatted"`
}

type InvoicePayment struct {
	Date            string `json:"date"`
	AmountFormatted string `json:"amountFormatted"`
}

// Invoice assembles the invoice for one purchase from the cached
// state. Paid is the sum of recorded abonos; Due is the backend's
// debt figure, never Total minus Paid computed here.
func (s *service) Invoice(ctx context.Context, purchaseID int64) (Invoice, error) {
	if purchaseID == 0 {
		return Invoice{}, ErrInsufficientData
	}

	purchases, err := s.ensureFresh(ctx)
	if err != nil {
		return Invoice{}, err
	}

	var purchase *model.Purchase
	for i := range purchases {
		if purchases[i].ID == purchaseID {
			purchase = &purchases[i]
			break
		}
	}
	if purchase == nil {
		return Invoice{}, ErrNotFound
	}

	invoice := Invoice{
		PurchaseID:     purchase.ID,
		PurchaseName:   purchase.Name,
		Status:         purchase.Status,
		IssuedDate:     s.fmt.DateString(purchase.OrderDate),
		DueDate:        s.fmt.DateString(purchase.PayDay),
		Total:          purchase.Price,
		TotalFormatted: s.fmt.Currency(purchase.Price),
		Due:            purchase.Debt,
		DueFormatted:   s.fmt.Currency(purchase.Debt),
		Lines:          make([]InvoiceLine, 0, len(purchase.Products)),
		Payments:       make([]InvoicePayment, 0, len(purchase.Payments)),
	}
	if purchase.Customer != nil {
		invoice.Customer = *purchase.Customer
		invoice.CustomerSince = s.fmt.Date(purchase.Customer.CreatedAt)
	}

	for _, product := range purchase.Products {
		lineTotal := product.Price.Mul(decimal.NewFromInt(int64(product.Quantity)))
		invoice.Lines = append(invoice.Lines, InvoiceLine{
			Name:               product.Name,
			Quantity:           product.Quantity,
			UnitPrice:          product.Price,
			UnitPriceFormatted: s.fmt.Currency(product.Price),
			Total:              lineTotal,
			TotalFormatted:     s.fmt.Currency(lineTotal),
		})
	}

	paid := decimal.Zero
	for _, payment := range purchase.Payments {
		paid = paid.Add(payment.Amount)
		invoice.Payments = append(invoice.Payments, InvoicePayment{
			Date:            s.fmt.DateString(payment.Date),
			AmountFormatted: s.fmt.Currency(payment.Amount),
		})
	}
	invoice.Paid = paid
	invoice.PaidFormatted = s.fmt.Currency(paid)

	return invoice, nil
}
