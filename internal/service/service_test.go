package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tiendaluna/cobranzas/internal/model"
	"github.com/tiendaluna/cobranzas/internal/service/backendclient"
	"github.com/tiendaluna/cobranzas/internal/service/config"
)

// fakeBackend owns debt/status arithmetic the way the real backend
// does: payments decrement debt server-side and the list endpoint is
// the only way to observe it.
type fakeBackend struct {
	mu       sync.Mutex
	server   *httptest.Server
	ordering []int64
	compras  map[int64]*model.Purchase
	abonos   map[int64][]model.Payment

	nextID int64

	comprasGets int
	abonoPosts  int

	failProductDelete bool
}

func newFakeBackend() *fakeBackend {
	fb := &fakeBackend{
		compras: make(map[int64]*model.Purchase),
		abonos:  make(map[int64][]model.Payment),
		nextID:  100,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /compras", fb.getCompras)
	mux.HandleFunc("POST /compras", fb.postCompra)
	mux.HandleFunc("PUT /compras/{id}", fb.putCompra)
	mux.HandleFunc("DELETE /compras/{id}", fb.deleteCompra)
	mux.HandleFunc("DELETE /compras/producto/{id}", fb.deleteProducto)
	mux.HandleFunc("GET /abonos/abonocompra/{id}", fb.getAbonos)
	mux.HandleFunc("POST /abonos", fb.postAbono)
	mux.HandleFunc("GET /abonos/abonoTotal/{id}", fb.abonoTotal)

	fb.server = httptest.NewServer(mux)
	return fb
}

func (fb *fakeBackend) addPurchase(id int64, customer *model.Customer, name string, debt int64) {
	fb.compras[id] = &model.Purchase{
		ID:       id,
		Name:     name,
		Status:   model.PurchaseStatusPending,
		Price:    decimal.NewFromInt(debt),
		Debt:     decimal.NewFromInt(debt),
		Customer: customer,
		Products: []model.Product{{ID: id * 10, PurchaseID: id, Name: name, Quantity: 1, Price: decimal.NewFromInt(debt)}},
	}
	fb.ordering = append(fb.ordering, id)
}

func (fb *fakeBackend) getCompras(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.comprasGets++

	list := make([]model.Purchase, 0, len(fb.ordering))
	for _, id := range fb.ordering {
		list = append(list, *fb.compras[id])
	}
	writeJSON(w, list)
}

func (fb *fakeBackend) postCompra(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	var req struct {
		CustomerID int64  `json:"customer_id"`
		Name       string `json:"name"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	fb.nextID++
	purchase := &model.Purchase{
		ID:       fb.nextID,
		Name:     req.Name,
		Status:   model.PurchaseStatusPending,
		Customer: &model.Customer{ID: req.CustomerID, Name: "Cliente"},
	}
	fb.compras[purchase.ID] = purchase
	fb.ordering = append(fb.ordering, purchase.ID)
	writeJSON(w, purchase)
}

func (fb *fakeBackend) putCompra(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	purchase, ok := fb.compras[id]
	if !ok {
		http.NotFound(w, r)
		return
	}

	var req struct {
		Status       string `json:"status"`
		PurchaseName string `json:"purchaseName"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	if req.Status != "" {
		purchase.Status = req.Status
	}
	if req.PurchaseName != "" {
		purchase.Name = req.PurchaseName
	}
	writeJSON(w, purchase)
}

func (fb *fakeBackend) deleteCompra(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	delete(fb.compras, id)
	kept := fb.ordering[:0]
	for _, oid := range fb.ordering {
		if oid != id {
			kept = append(kept, oid)
		}
	}
	fb.ordering = kept
	w.WriteHeader(http.StatusOK)
}

func (fb *fakeBackend) deleteProducto(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if fb.failProductDelete {
		http.Error(w, `{"message": "producto bloqueado"}`, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (fb *fakeBackend) getAbonos(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	payments := fb.abonos[id]
	if payments == nil {
		payments = []model.Payment{}
	}
	writeJSON(w, payments)
}

func (fb *fakeBackend) postAbono(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.abonoPosts++

	var req struct {
		PurchaseID int64   `json:"purchase_id"`
		Amount     float64 `json:"amount"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	purchase, ok := fb.compras[req.PurchaseID]
	if !ok {
		http.NotFound(w, r)
		return
	}

	amount := decimal.NewFromFloat(req.Amount)
	if amount.GreaterThan(purchase.Debt) {
		http.Error(w, `{"message": "el abono excede la deuda"}`, http.StatusConflict)
		return
	}

	// the authoritative arithmetic lives here, not in the client
	purchase.Debt = purchase.Debt.Sub(amount)
	if purchase.Debt.IsZero() {
		purchase.Status = model.PurchaseStatusPaid
	}

	fb.nextID++
	payment := model.Payment{ID: fb.nextID, PurchaseID: req.PurchaseID, Amount: amount}
	fb.abonos[req.PurchaseID] = append(fb.abonos[req.PurchaseID], payment)
	writeJSON(w, payment)
}

func (fb *fakeBackend) abonoTotal(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	customerID, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	for _, purchase := range fb.compras {
		if purchase.Customer != nil && purchase.Customer.ID == customerID {
			purchase.Debt = decimal.Zero
			purchase.Status = model.PurchaseStatusPaid
		}
	}
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func newTestService(t *testing.T, fb *fakeBackend) Service {
	t.Helper()
	t.Cleanup(fb.server.Close)

	cfg := config.Config{
		BackendAddr:      fb.server.URL,
		ExcessStatusCode: http.StatusConflict,
		Locale:           "es-CO",
	}
	client := backendclient.New(cfg.BackendAddr, cfg.ExcessStatusCode)

	svc, err := NewService(cfg, client, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func (fb *fakeBackend) stats() (comprasGets, abonoPosts int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.comprasGets, fb.abonoPosts
}

func TestRefreshEnrichesPurchasesWithPayments(t *testing.T) {
	fb := newFakeBackend()
	ana := &model.Customer{ID: 1, Name: "Ana"}
	fb.addPurchase(10, ana, "Camisa", 10000)
	fb.abonos[10] = []model.Payment{{ID: 900, PurchaseID: 10, Amount: decimal.NewFromInt(2000)}}

	svc := newTestService(t, fb)
	ctx := context.Background()

	purchases, err := svc.Purchases(ctx, model.Filters{})
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	require.Len(t, purchases[0].Payments, 1)
	require.True(t, purchases[0].Payments[0].Amount.Equal(decimal.NewFromInt(2000)))
}

func TestCreatePaymentReflectsServerDebt(t *testing.T) {
	fb := newFakeBackend()
	ana := &model.Customer{ID: 1, Name: "Ana"}
	fb.addPurchase(10, ana, "Camisa", 10000)

	svc := newTestService(t, fb)
	ctx := context.Background()

	_, err := svc.Purchases(ctx, model.Filters{})
	require.NoError(t, err)
	gets, _ := fb.stats()

	_, err = svc.CreatePayment(ctx, CreatePaymentInput{PurchaseID: 10, Amount: 4000})
	require.NoError(t, err)

	// the debt came from a refetch, not from local subtraction
	getsAfter, _ := fb.stats()
	require.Greater(t, getsAfter, gets)

	purchases, err := svc.Purchases(ctx, model.Filters{})
	require.NoError(t, err)
	require.True(t, purchases[0].Debt.Equal(decimal.NewFromInt(6000)),
		"cached debt must be the backend's figure, got %s", purchases[0].Debt)
	require.Equal(t, model.PurchaseStatusPending, purchases[0].Status)
}

func TestCreatePaymentSettlingPurchase(t *testing.T) {
	fb := newFakeBackend()
	ana := &model.Customer{ID: 1, Name: "Ana"}
	fb.addPurchase(10, ana, "Camisa", 10000)

	svc := newTestService(t, fb)
	ctx := context.Background()

	_, err := svc.CreatePayment(ctx, CreatePaymentInput{PurchaseID: 10, Amount: 10000})
	require.NoError(t, err)

	purchases, err := svc.Purchases(ctx, model.Filters{})
	require.NoError(t, err)
	require.Equal(t, model.PurchaseStatusPaid, purchases[0].Status)
	require.True(t, purchases[0].Debt.IsZero())
}

func TestCreatePaymentExceedsDebt(t *testing.T) {
	fb := newFakeBackend()
	ana := &model.Customer{ID: 1, Name: "Ana"}
	fb.addPurchase(10, ana, "Camisa", 10000)

	svc := newTestService(t, fb)
	ctx := context.Background()

	_, err := svc.CreatePayment(ctx, CreatePaymentInput{PurchaseID: 10, Amount: 99999})
	require.ErrorIs(t, err, ErrPaymentExceedsDebt)

	// the rejection left the cache untouched
	purchases, err := svc.Purchases(ctx, model.Filters{})
	require.NoError(t, err)
	require.True(t, purchases[0].Debt.Equal(decimal.NewFromInt(10000)))
}

func TestUpdatePurchasePartialFailureForcesRefetch(t *testing.T) {
	fb := newFakeBackend()
	ana := &model.Customer{ID: 1, Name: "Ana"}
	fb.addPurchase(10, ana, "Camisa", 10000)

	svc := newTestService(t, fb)
	ctx := context.Background()

	_, err := svc.Purchases(ctx, model.Filters{})
	require.NoError(t, err)

	fb.mu.Lock()
	fb.failProductDelete = true
	fb.mu.Unlock()

	_, err = svc.UpdatePurchase(ctx, 10, UpdatePurchaseInput{
		CustomerID:        1,
		Status:            model.PurchaseStatusPending,
		Name:              "Camisa",
		RemovedProductIDs: []int64{100},
	})
	require.ErrorIs(t, err, ErrInconsistentUpdate)

	// the cache is indeterminate: the next read must refetch
	gets, _ := fb.stats()
	_, err = svc.Purchases(ctx, model.Filters{})
	require.NoError(t, err)
	getsAfter, _ := fb.stats()
	require.Greater(t, getsAfter, gets)
}

func TestUpdatePurchasePatchesCacheInPlace(t *testing.T) {
	fb := newFakeBackend()
	ana := &model.Customer{ID: 1, Name: "Ana"}
	fb.addPurchase(10, ana, "Camisa", 10000)

	svc := newTestService(t, fb)
	ctx := context.Background()

	_, err := svc.Purchases(ctx, model.Filters{})
	require.NoError(t, err)
	gets, _ := fb.stats()

	updated, err := svc.UpdatePurchase(ctx, 10, UpdatePurchaseInput{
		CustomerID: 1,
		Status:     model.PurchaseStatusPending,
		Name:       "Camisa de lino",
	})
	require.NoError(t, err)
	require.Equal(t, "Camisa de lino", updated.Name)

	// the response carried the whole entity, so no refetch
	purchases, err := svc.Purchases(ctx, model.Filters{})
	require.NoError(t, err)
	require.Equal(t, "Camisa de lino", purchases[0].Name)
	getsAfter, _ := fb.stats()
	require.Equal(t, gets, getsAfter)
}

func TestCreatePurchaseAppendsWithoutRefetch(t *testing.T) {
	fb := newFakeBackend()
	ana := &model.Customer{ID: 1, Name: "Ana"}
	fb.addPurchase(10, ana, "Camisa", 10000)

	svc := newTestService(t, fb)
	ctx := context.Background()

	_, err := svc.Purchases(ctx, model.Filters{})
	require.NoError(t, err)
	gets, _ := fb.stats()

	created, err := svc.CreatePurchase(ctx, CreatePurchaseInput{
		CustomerID: 1,
		Name:       "Pantalon",
		Products:   []ProductInput{{Name: "Pantalon", Quantity: 1, Price: 30000}},
	})
	require.NoError(t, err)

	purchases, err := svc.Purchases(ctx, model.Filters{})
	require.NoError(t, err)
	require.Equal(t, []string{"Camisa", "Pantalon"}, purchaseNames(purchases))
	require.Equal(t, created.ID, purchases[1].ID)

	getsAfter, _ := fb.stats()
	require.Equal(t, gets, getsAfter)
}

func TestDeletePurchaseRemovesFromCache(t *testing.T) {
	fb := newFakeBackend()
	ana := &model.Customer{ID: 1, Name: "Ana"}
	fb.addPurchase(10, ana, "Camisa", 10000)
	fb.addPurchase(11, ana, "Pantalon", 5000)

	svc := newTestService(t, fb)
	ctx := context.Background()

	_, err := svc.Purchases(ctx, model.Filters{})
	require.NoError(t, err)

	require.NoError(t, svc.DeletePurchase(ctx, 10))

	purchases, err := svc.Purchases(ctx, model.Filters{})
	require.NoError(t, err)
	require.Equal(t, []string{"Pantalon"}, purchaseNames(purchases))
}

func TestPayAllSettlesCustomer(t *testing.T) {
	fb := newFakeBackend()
	ana := &model.Customer{ID: 1, Name: "Ana"}
	luis := &model.Customer{ID: 2, Name: "Luis"}
	fb.addPurchase(10, ana, "Camisa", 10000)
	fb.addPurchase(11, ana, "Pantalon", 5000)
	fb.addPurchase(12, luis, "Camisa", 7000)

	svc := newTestService(t, fb)
	ctx := context.Background()

	require.NoError(t, svc.PayAll(ctx, 1))

	groups, err := svc.Grouped(ctx, model.Filters{})
	require.NoError(t, err)
	require.Len(t, groups, 2)
	require.True(t, groups[0].TotalDebt.IsZero())
	require.Equal(t, 2, groups[0].PurchaseCount)
	require.True(t, groups[1].TotalDebt.Equal(decimal.NewFromInt(7000)))
}

func TestGroupedFormatsDebt(t *testing.T) {
	fb := newFakeBackend()
	ana := &model.Customer{ID: 1, Name: "Ana"}
	fb.addPurchase(10, ana, "Camisa", 1234567)

	svc := newTestService(t, fb)

	groups, err := svc.Grouped(context.Background(), model.Filters{})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Equal(t, "$ 1.234.567", groups[0].TotalDebtFormatted)
}

func TestDoubleSubmitIssuesTwoRequests(t *testing.T) {
	fb := newFakeBackend()
	ana := &model.Customer{ID: 1, Name: "Ana"}
	fb.addPurchase(10, ana, "Camisa", 10000)

	svc := newTestService(t, fb)
	ctx := context.Background()

	// mutations are fire-and-settle with no dedup: a double click
	// really does pay twice; the documented behavior, not a fix
	_, err := svc.CreatePayment(ctx, CreatePaymentInput{PurchaseID: 10, Amount: 1000})
	require.NoError(t, err)
	_, err = svc.CreatePayment(ctx, CreatePaymentInput{PurchaseID: 10, Amount: 1000})
	require.NoError(t, err)

	_, posts := fb.stats()
	require.Equal(t, 2, posts)

	purchases, err := svc.Purchases(ctx, model.Filters{})
	require.NoError(t, err)
	require.True(t, purchases[0].Debt.Equal(decimal.NewFromInt(8000)))
}

func TestInvoiceAssembly(t *testing.T) {
	fb := newFakeBackend()
	ana := &model.Customer{ID: 1, Name: "Ana", Phone: "300"}
	fb.addPurchase(10, ana, "Camisa", 50000)
	fb.abonos[10] = []model.Payment{
		{ID: 900, PurchaseID: 10, Amount: decimal.NewFromInt(20000), Date: "2026-02-01"},
	}

	svc := newTestService(t, fb)

	invoice, err := svc.Invoice(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, "Camisa", invoice.PurchaseName)
	require.Equal(t, "Ana", invoice.Customer.Name)
	require.Len(t, invoice.Lines, 1)
	require.Equal(t, "$ 50.000", invoice.Lines[0].TotalFormatted)
	require.Equal(t, "$ 50.000", invoice.TotalFormatted)
	require.Equal(t, "$ 20.000", invoice.PaidFormatted)
	require.Equal(t, "$ 50.000", invoice.DueFormatted)
	require.Len(t, invoice.Payments, 1)
	require.Equal(t, "01/02/2026", invoice.Payments[0].Date)
}

func TestInvoiceUnknownPurchase(t *testing.T) {
	fb := newFakeBackend()
	svc := newTestService(t, fb)

	_, err := svc.Invoice(context.Background(), 404)
	require.ErrorIs(t, err, ErrNotFound)
}

func purchaseNames(purchases []model.Purchase) []string {
	names := make([]string, 0, len(purchases))
	for _, p := range purchases {
		names = append(names, p.Name)
	}
	return names
}
