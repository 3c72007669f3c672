package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/tiendaluna/cobranzas/internal/handler/config"
	"github.com/tiendaluna/cobranzas/internal/logger"
	"github.com/tiendaluna/cobranzas/internal/model"
	"github.com/tiendaluna/cobranzas/internal/service"
)

func Serve(cfg config.Config, service service.Service, zaplog *zap.Logger) error {
	h := newHandler(service, zaplog)
	router := h.newRouter()

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: router,
	}

	return srv.ListenAndServe()
}

type handler struct {
	service  service.Service
	validate *validator.Validate
	zaplog   *zap.Logger
}

func newHandler(service service.Service, zaplog *zap.Logger) *handler {
	return &handler{
		service:  service,
		validate: validator.New(),
		zaplog:   zaplog,
	}
}

func (h *handler) newRouter() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/purchases", logger.RequestLogMdlw(h.GetPurchases, h.zaplog))
	mux.HandleFunc("GET /api/purchases/grouped", logger.RequestLogMdlw(h.GetGrouped, h.zaplog))
	mux.HandleFunc("GET /api/purchases/filteroptions", logger.RequestLogMdlw(h.GetFilterOptions, h.zaplog))
	mux.HandleFunc("POST /api/purchases", logger.RequestLogMdlw(h.PostPurchase, h.zaplog))
	mux.HandleFunc("PUT /api/purchases/{id}", logger.RequestLogMdlw(h.PutPurchase, h.zaplog))
	mux.HandleFunc("DELETE /api/purchases/{id}", logger.RequestLogMdlw(h.DeletePurchase, h.zaplog))
	mux.HandleFunc("GET /api/purchases/{id}/invoice", logger.RequestLogMdlw(h.GetInvoice, h.zaplog))

	mux.HandleFunc("POST /api/payments", logger.RequestLogMdlw(h.PostPayment, h.zaplog))
	mux.HandleFunc("PUT /api/payments/{id}", logger.RequestLogMdlw(h.PutPayment, h.zaplog))
	mux.HandleFunc("DELETE /api/payments/{id}", logger.RequestLogMdlw(h.DeletePayment, h.zaplog))
	mux.HandleFunc("POST /api/payments/payall/{customerId}", logger.RequestLogMdlw(h.PostPayAll, h.zaplog))
	mux.HandleFunc("GET /api/payments/grouped", logger.RequestLogMdlw(h.GetGroupedPayments, h.zaplog))

	mux.HandleFunc("GET /api/customers", logger.RequestLogMdlw(h.GetCustomers, h.zaplog))
	mux.HandleFunc("POST /api/customers", logger.RequestLogMdlw(h.PostCustomer, h.zaplog))
	mux.HandleFunc("GET /api/customers/{id}", logger.RequestLogMdlw(h.GetCustomer, h.zaplog))

	mux.HandleFunc("POST /api/refresh", logger.RequestLogMdlw(h.PostRefresh, h.zaplog))

	return mux
}

func filtersFromQuery(r *http.Request) model.Filters {
	q := r.URL.Query()
	return model.Filters{
		SearchTerm:   q.Get("search"),
		PurchaseName: q.Get("name"),
		Status:       q.Get("status"),
		OrderDate:    q.Get("orderdate"),
	}
}

func (h *handler) GetPurchases(w http.ResponseWriter, r *http.Request) {
	purchases, err := h.service.Purchases(r.Context(), filtersFromQuery(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, purchases)
}

func (h *handler) GetGrouped(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.Grouped(r.Context(), filtersFromQuery(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, groups)
}

func (h *handler) GetFilterOptions(w http.ResponseWriter, r *http.Request) {
	options, err := h.service.FilterOptions(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, options)
}

func (h *handler) PostPurchase(w http.ResponseWriter, r *http.Request) {
	var in service.CreatePurchaseInput
	if !h.readJSON(w, r, &in) {
		return
	}
	purchase, err := h.service.CreatePurchase(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, purchase)
}

func (h *handler) PutPurchase(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in service.UpdatePurchaseInput
	if !h.readJSON(w, r, &in) {
		return
	}
	purchase, err := h.service.UpdatePurchase(r.Context(), id, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, purchase)
}

func (h *handler) DeletePurchase(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeletePurchase(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	invoice, err := h.service.Invoice(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, invoice)
}

func (h *handler) PostPayment(w http.ResponseWriter, r *http.Request) {
	var in service.CreatePaymentInput
	if !h.readJSON(w, r, &in) {
		return
	}
	payment, err := h.service.CreatePayment(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, payment)
}

func (h *handler) PutPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in service.UpdatePaymentInput
	if !h.readJSON(w, r, &in) {
		return
	}
	payment, err := h.service.UpdatePayment(r.Context(), id, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, payment)
}

func (h *handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeletePayment(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) PostPayAll(w http.ResponseWriter, r *http.Request) {
	customerID, ok := pathID(w, r, "customerId")
	if !ok {
		return
	}
	if err := h.service.PayAll(r.Context(), customerID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) GetGroupedPayments(w http.ResponseWriter, r *http.Request) {
	grouped, err := h.service.GroupedPayments(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, grouped)
}

func (h *handler) GetCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.service.Customers(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, customers)
}

func (h *handler) PostCustomer(w http.ResponseWriter, r *http.Request) {
	var in service.CreateCustomerInput
	if !h.readJSON(w, r, &in) {
		return
	}
	customer, err := h.service.CreateCustomer(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, customer)
}

func (h *handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	customer, err := h.service.Customer(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, customer)
}

func (h *handler) PostRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Refresh(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// readJSON decodes and validates a request body. A false return means
// the response is already written.
func (h *handler) readJSON(w http.ResponseWriter, r *http.Request, in any) bool {
	if err := json.NewDecoder(r.Body).Decode(in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id == 0 {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *handler) writeJSON(w http.ResponseWriter, code int, payload any) {
	responseJSON, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(responseJSON)
}

func (h *handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInsufficientData):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrPaymentExceedsDebt):
		// distinct, user-actionable: the abono is larger than what is
		// still owed on the purchase
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, service.ErrInconsistentUpdate):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, service.ErrBackendUnavailable):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
