// Package service owns the client-side purchase cache and keeps it
// consistent with the backend after every mutation. The backend is
// the sole authority for debt and status arithmetic: a mutation whose
// side effects are not fully contained in its own response forces a
// refetch instead of a local patch.
package service

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tiendaluna/cobranzas/internal/filter"
	"github.com/tiendaluna/cobranzas/internal/format"
	"github.com/tiendaluna/cobranzas/internal/grouping"
	"github.com/tiendaluna/cobranzas/internal/model"
	"github.com/tiendaluna/cobranzas/internal/service/backendclient"
	"github.com/tiendaluna/cobranzas/internal/service/config"
)

type Service interface {
	Refresh(ctx context.Context) error
	Purchases(ctx context.Context, filters model.Filters) ([]model.Purchase, error)
	Grouped(ctx context.Context, filters model.Filters) ([]CustomerGroup, error)
	FilterOptions(ctx context.Context) (FilterOptions, error)
	Invoice(ctx context.Context, purchaseID int64) (Invoice, error)

	Customers(ctx context.Context) ([]model.Customer, error)
	Customer(ctx context.Context, id int64) (model.Customer, error)
	CreateCustomer(ctx context.Context, in CreateCustomerInput) (model.Customer, error)

	CreatePurchase(ctx context.Context, in CreatePurchaseInput) (model.Purchase, error)
	UpdatePurchase(ctx context.Context, id int64, in UpdatePurchaseInput) (model.Purchase, error)
	DeletePurchase(ctx context.Context, id int64) error

	CreatePayment(ctx context.Context, in CreatePaymentInput) (model.Payment, error)
	UpdatePayment(ctx context.Context, id int64, in UpdatePaymentInput) (model.Payment, error)
	DeletePayment(ctx context.Context, id int64) error
	PayAll(ctx context.Context, customerID int64) error
	GroupedPayments(ctx context.Context) ([]model.CustomerPayments, error)
}

var (
	ErrInsufficientData   = errors.New("insufficient data")
	ErrNotFound           = errors.New("not found")
	ErrPaymentExceedsDebt = errors.New("payment exceeds outstanding debt")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrInconsistentUpdate = errors.New("purchase update left backend state partially applied")
)

// Inputs accepted from the presentation layer. Validation tags are
// enforced by the handler before any backend call.

type ProductInput struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name" validate:"required"`
	Quantity int     `json:"quantity" validate:"gt=0"`
	Price    float64 `json:"price" validate:"gte=0"`
}

type NewCustomerInput struct {
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone"`
}

type CreatePurchaseInput struct {
	CustomerID  int64             `json:"customerId" validate:"required_without=NewCustomer"`
	NewCustomer *NewCustomerInput `json:"newCustomer,omitempty"`
	Name        string            `json:"name" validate:"required"`
	PayDay      string            `json:"payday"`
	OrderDate   string            `json:"orderdate"`
	Products    []ProductInput    `json:"products" validate:"min=1,dive"`
}

type UpdatePurchaseInput struct {
	CustomerID        int64          `json:"customerId" validate:"required"`
	Status            string         `json:"status" validate:"oneof=pagado pendiente"`
	Name              string         `json:"name" validate:"required"`
	PayDay            string         `json:"payday"`
	OrderDate         string         `json:"orderdate"`
	Products          []ProductInput `json:"products" validate:"dive"`
	RemovedProductIDs []int64        `json:"removedProductIds"`
}

type CreatePaymentInput struct {
	PurchaseID int64   `json:"purchaseId" validate:"required"`
	Amount     float64 `json:"amount" validate:"gt=0"`
	Date       string  `json:"date"`
}

type UpdatePaymentInput struct {
	PurchaseID int64   `json:"purchaseId" validate:"required"`
	Amount     float64 `json:"amount" validate:"gt=0"`
	Date       string  `json:"date"`
}

type CreateCustomerInput struct {
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone"`
}

// Derived views handed to the presentation layer.

type CustomerGroup struct {
	Customer           model.Customer   `json:"customer"`
	Purchases          []model.Purchase `json:"purchases"`
	PurchaseCount      int              `json:"purchaseCount"`
	TotalDebt          decimal.Decimal  `json:"totalDebt"`
	TotalDebtFormatted string           `json:"totalDebtFormatted"`
}

type FilterOptions struct {
	PurchaseNames []string `json:"purchaseNames"`
	Statuses      []string `json:"statuses"`
}

type service struct {
	cfg      config.Config
	client   backendclient.Client
	grouping *grouping.Grouping
	fmt      *format.Formatter
	zaplog   *zap.Logger

	mu        sync.Mutex
	purchases []model.Purchase
	loaded    bool
	// dirty marks the cache indeterminate after a partially failed
	// mutation; the next read refetches wholesale.
	dirty bool
}

func NewService(cfg config.Config, client backendclient.Client, zaplog *zap.Logger) (Service, error) {
	formatter, err := format.New(cfg.Locale)
	if err != nil {
		return nil, err
	}

	return &service{
		cfg:      cfg,
		client:   client,
		grouping: grouping.New(zaplog),
		fmt:      formatter,
		zaplog:   zaplog,
	}, nil
}

// Refresh refetches the purchase list wholesale and enriches every
// attributable purchase with its payment history. It replaces the
// full-page reload the old UI leaned on.
func (s *service) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refetchLocked(ctx)
}

func (s *service) refetchLocked(ctx context.Context) error {
	purchases, err := s.client.Purchases(ctx)
	if err != nil {
		return wrapBackendErr(err)
	}

	for i := range purchases {
		if !purchases[i].HasValidCustomer() {
			// kept in the cache so views can log and skip it
			s.zaplog.Warn("purchase without valid customer in list response",
				zap.Int64("purchase", purchases[i].ID))
			continue
		}
		payments, err := s.client.PurchasePayments(ctx, purchases[i].ID)
		if err != nil {
			// an unreadable payment history is not fatal to the list
			s.zaplog.Warn("could not enrich purchase with payments",
				zap.Int64("purchase", purchases[i].ID),
				zap.Error(err))
			continue
		}
		purchases[i].Payments = payments
	}

	s.purchases = purchases
	s.loaded = true
	s.dirty = false
	return nil
}

// ensureFresh refetches when the cache was never loaded or a partial
// failure left it indeterminate, then returns a snapshot.
func (s *service) ensureFresh(ctx context.Context) ([]model.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded || s.dirty {
		if err := s.refetchLocked(ctx); err != nil {
			return nil, err
		}
	}

	snapshot := make([]model.Purchase, len(s.purchases))
	copy(snapshot, s.purchases)
	return snapshot, nil
}

func (s *service) markDirtyLocked() {
	s.dirty = true
}

func (s *service) Purchases(ctx context.Context, filters model.Filters) ([]model.Purchase, error) {
	purchases, err := s.ensureFresh(ctx)
	if err != nil {
		return nil, err
	}
	return filter.Apply(purchases, filters), nil
}

func (s *service) Grouped(ctx context.Context, filters model.Filters) ([]CustomerGroup, error) {
	purchases, err := s.ensureFresh(ctx)
	if err != nil {
		return nil, err
	}

	grouped := s.grouping.GroupByCustomer(filter.Apply(purchases, filters))

	groups := make([]CustomerGroup, 0)
	for _, group := range grouped.Customers() {
		debt := grouped.TotalDebt(group.Customer.ID)
		groups = append(groups, CustomerGroup{
			Customer:           group.Customer,
			Purchases:          group.Purchases,
			PurchaseCount:      grouped.PurchaseCount(group.Customer.ID),
			TotalDebt:          debt,
			TotalDebtFormatted: s.fmt.Currency(debt),
		})
	}
	return groups, nil
}

func (s *service) FilterOptions(ctx context.Context) (FilterOptions, error) {
	purchases, err := s.ensureFresh(ctx)
	if err != nil {
		return FilterOptions{}, err
	}
	return FilterOptions{
		PurchaseNames: filter.DistinctNames(purchases),
		Statuses:      filter.DistinctStatuses(purchases),
	}, nil
}

func (s *service) Customers(ctx context.Context) ([]model.Customer, error) {
	customers, err := s.client.Customers(ctx)
	if err != nil {
		return nil, wrapBackendErr(err)
	}
	return customers, nil
}

func (s *service) Customer(ctx context.Context, id int64) (model.Customer, error) {
	if id == 0 {
		return model.Customer{}, ErrInsufficientData
	}
	customer, err := s.client.Customer(ctx, id)
	if err != nil {
		return model.Customer{}, wrapBackendErr(err)
	}
	return customer, nil
}

func (s *service) CreateCustomer(ctx context.Context, in CreateCustomerInput) (model.Customer, error) {
	if in.Name == "" {
		return model.Customer{}, ErrInsufficientData
	}
	customer, err := s.client.CreateCustomer(ctx, backendclient.CreateCustomerRequest{
		Name:  in.Name,
		Phone: in.Phone,
	})
	if err != nil {
		return model.Customer{}, wrapBackendErr(err)
	}
	return customer, nil
}

// CreatePurchase posts the purchase (optionally creating its customer
// in the same call) and appends the returned entity to the cache. The
// response carries the complete new resource and other purchases are
// unaffected, so no refetch is needed.
func (s *service) CreatePurchase(ctx context.Context, in CreatePurchaseInput) (model.Purchase, error) {
	if in.Name == "" || len(in.Products) == 0 {
		return model.Purchase{}, ErrInsufficientData
	}
	if in.CustomerID == 0 && in.NewCustomer == nil {
		return model.Purchase{}, ErrInsufficientData
	}

	var purchase model.Purchase
	var err error
	if in.NewCustomer != nil {
		purchase, err = s.client.CreatePurchaseNewCustomer(ctx, backendclient.CreatePurchaseNewCustomerRequest{
			Name:         in.NewCustomer.Name,
			Phone:        in.NewCustomer.Phone,
			PurchaseName: in.Name,
			PayDay:       in.PayDay,
			OrderDate:    in.OrderDate,
			Products:     productRequests(in.Products),
		})
	} else {
		purchase, err = s.client.CreatePurchase(ctx, backendclient.CreatePurchaseRequest{
			CustomerID: in.CustomerID,
			Name:       in.Name,
			PayDay:     in.PayDay,
			OrderDate:  in.OrderDate,
			Products:   productRequests(in.Products),
		})
	}
	if err != nil {
		return model.Purchase{}, wrapBackendErr(err)
	}

	s.mu.Lock()
	if s.loaded {
		s.purchases = append(s.purchases, purchase)
	}
	s.mu.Unlock()

	return purchase, nil
}

// UpdatePurchase deletes removed product lines first, then puts the
// purchase. Any partial failure leaves the backend state unknown, so
// the cache is marked dirty and the next read refetches instead of
// trusting a local patch.
func (s *service) UpdatePurchase(ctx context.Context, id int64, in UpdatePurchaseInput) (model.Purchase, error) {
	if id == 0 {
		return model.Purchase{}, ErrInsufficientData
	}

	for _, productID := range in.RemovedProductIDs {
		if err := s.client.DeleteProduct(ctx, productID); err != nil {
			s.mu.Lock()
			s.markDirtyLocked()
			s.mu.Unlock()
			return model.Purchase{}, errors.Join(ErrInconsistentUpdate, wrapBackendErr(err))
		}
	}

	purchase, err := s.client.UpdatePurchase(ctx, id, backendclient.UpdatePurchaseRequest{
		CustomerID:   in.CustomerID,
		Status:       in.Status,
		PurchaseName: in.Name,
		PayDay:       in.PayDay,
		OrderDate:    in.OrderDate,
		Products:     productRequests(in.Products),
	})
	if err != nil {
		s.mu.Lock()
		if len(in.RemovedProductIDs) > 0 {
			// product deletes already landed
			s.markDirtyLocked()
		}
		s.mu.Unlock()
		return model.Purchase{}, wrapBackendErr(err)
	}

	s.mu.Lock()
	for i := range s.purchases {
		if s.purchases[i].ID == id {
			if purchase.Payments == nil {
				purchase.Payments = s.purchases[i].Payments
			}
			s.purchases[i] = purchase
			break
		}
	}
	s.mu.Unlock()

	return purchase, nil
}

func (s *service) DeletePurchase(ctx context.Context, id int64) error {
	if id == 0 {
		return ErrInsufficientData
	}
	if err := s.client.DeletePurchase(ctx, id); err != nil {
		return wrapBackendErr(err)
	}

	s.mu.Lock()
	kept := s.purchases[:0]
	for _, purchase := range s.purchases {
		if purchase.ID != id {
			kept = append(kept, purchase)
		}
	}
	s.purchases = kept
	s.mu.Unlock()

	return nil
}

// CreatePayment posts the abono and refetches. The purchase's debt
// and status change server-side as a side effect this call does not
// return; decrementing debt locally would duplicate the backend's
// arithmetic and drift from it, so the cache is never patched here.
func (s *service) CreatePayment(ctx context.Context, in CreatePaymentInput) (model.Payment, error) {
	if in.PurchaseID == 0 || in.Amount <= 0 {
		return model.Payment{}, ErrInsufficientData
	}
	payment, err := s.client.CreatePayment(ctx, backendclient.CreatePaymentRequest{
		PurchaseID: in.PurchaseID,
		Amount:     in.Amount,
		Date:       in.Date,
	})
	if err != nil {
		return model.Payment{}, wrapBackendErr(err)
	}

	s.refetchAfterMutation(ctx)
	return payment, nil
}

func (s *service) UpdatePayment(ctx context.Context, id int64, in UpdatePaymentInput) (model.Payment, error) {
	if id == 0 || in.PurchaseID == 0 || in.Amount <= 0 {
		return model.Payment{}, ErrInsufficientData
	}
	payment, err := s.client.UpdatePayment(ctx, id, backendclient.UpdatePaymentRequest{
		PurchaseID: in.PurchaseID,
		Amount:     in.Amount,
		Date:       in.Date,
	})
	if err != nil {
		return model.Payment{}, wrapBackendErr(err)
	}

	s.refetchAfterMutation(ctx)
	return payment, nil
}

func (s *service) DeletePayment(ctx context.Context, id int64) error {
	if id == 0 {
		return ErrInsufficientData
	}
	if err := s.client.DeletePayment(ctx, id); err != nil {
		return wrapBackendErr(err)
	}

	s.refetchAfterMutation(ctx)
	return nil
}

// PayAll settles every pending purchase of one customer in a single
// backend transaction. The effect touches an unbounded set of
// purchases, so only a wholesale refetch is safe.
func (s *service) PayAll(ctx context.Context, customerID int64) error {
	if customerID == 0 {
		return ErrInsufficientData
	}
	if err := s.client.PayAll(ctx, customerID); err != nil {
		return wrapBackendErr(err)
	}

	s.refetchAfterMutation(ctx)
	return nil
}

func (s *service) GroupedPayments(ctx context.Context) ([]model.CustomerPayments, error) {
	grouped, err := s.client.GroupedPayments(ctx)
	if err != nil {
		return nil, wrapBackendErr(err)
	}
	return grouped, nil
}

// refetchAfterMutation refreshes the cache after a mutation whose
// side effects are only observable through a new fetch. If the
// refetch itself fails the mutation still happened; the cache is
// marked dirty so the next read retries.
func (s *service) refetchAfterMutation(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refetchLocked(ctx); err != nil {
		s.zaplog.Warn("refetch after mutation failed, cache marked stale", zap.Error(err))
		s.markDirtyLocked()
	}
}

func productRequests(products []ProductInput) []backendclient.ProductRequest {
	out := make([]backendclient.ProductRequest, 0, len(products))
	for _, p := range products {
		out = append(out, backendclient.ProductRequest{
			Name:     p.Name,
			Quantity: p.Quantity,
			Price:    p.Price,
		})
	}
	return out
}

func wrapBackendErr(err error) error {
	switch {
	case errors.Is(err, backendclient.ErrPaymentExceedsDebt):
		return errors.Join(ErrPaymentExceedsDebt, err)
	case errors.Is(err, backendclient.ErrNotFound):
		return errors.Join(ErrNotFound, err)
	default:
		return errors.Join(ErrBackendUnavailable, err)
	}
}
