package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Clientes

type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"createdAt"`
}

// Compras y sus productos

type Product struct {
	ID         int64           `json:"id"`
	PurchaseID int64           `json:"purchaseId"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	CreatedAt  time.Time       `json:"createdAt"`
}

type Purchase struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Status     string          `json:"status"`
	Debt       decimal.Decimal `json:"debt"`
	OrderDate  string          `json:"orderdate"`
	PayDay     string          `json:"payday"`
	CreatedAt  time.Time       `json:"createdAt"`
	CustomerID int64           `json:"customerId"`
	Customer   *Customer       `json:"customer"`
	Products   []Product       `json:"products"`
	// Payments is filled by client-side enrichment; the list endpoint
	// does not include it.
	Payments []Payment `json:"payments,omitempty"`
}

const (
	PurchaseStatusPaid    = "pagado"
	PurchaseStatusPending = "pendiente"
)

// Abonos

type Payment struct {
	ID         int64           `json:"id"`
	PurchaseID int64           `json:"purchaseId"`
	Amount     decimal.Decimal `json:"amount"`
	Date       string          `json:"date"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// CustomerPayments is the backend's pre-grouped reporting shape.
type CustomerPayments struct {
	Customer Customer  `json:"customer"`
	Payments []Payment `json:"payments"`
}

// CustomerWithPurchases is a derived grouping, rebuilt wholesale on
// every purchase-list change and never persisted.
type CustomerWithPurchases struct {
	Customer  Customer   `json:"customer"`
	Purchases []Purchase `json:"purchases"`
}

// Filters over the purchase list. An empty field matches everything.
type Filters struct {
	SearchTerm   string
	PurchaseName string
	Status       string
	OrderDate    string
}

// HasValidCustomer reports whether the purchase can be attributed to a
// customer. Records failing this are a data-quality defect: they are
// skipped by grouping and filtering, never a crash.
func (p Purchase) HasValidCustomer() bool {
	return p.Customer != nil && p.Customer.ID != 0
}
