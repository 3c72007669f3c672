// Package backendclient talks to the external cobranzas backend. The
// backend owns all balance arithmetic, validation and persistence;
// this client only issues one request per call, checks the status and
// hands the decoded entity (or an error) to the caller. No retries,
// no caching, no batching.
package backendclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-resty/resty/v2"

	"github.com/tiendaluna/cobranzas/internal/model"
)

var (
	ErrNotFound = errors.New("resource not found")
	// ErrPaymentExceedsDebt is the backend's over-payment rejection.
	// Which status code signals it is a deployment contract, so it is
	// configurable rather than hardcoded.
	ErrPaymentExceedsDebt = errors.New("payment exceeds outstanding debt")
)

type Client interface {
	Customers(ctx context.Context) ([]model.Customer, error)
	Customer(ctx context.Context, id int64) (model.Customer, error)
	CreateCustomer(ctx context.Context, req CreateCustomerRequest) (model.Customer, error)

	Purchases(ctx context.Context) ([]model.Purchase, error)
	CreatePurchase(ctx context.Context, req CreatePurchaseRequest) (model.Purchase, error)
	CreatePurchaseNewCustomer(ctx context.Context, req CreatePurchaseNewCustomerRequest) (model.Purchase, error)
	UpdatePurchase(ctx context.Context, id int64, req UpdatePurchaseRequest) (model.Purchase, error)
	DeletePurchase(ctx context.Context, id int64) error
	DeleteProduct(ctx context.Context, productID int64) error

	PurchasePayments(ctx context.Context, purchaseID int64) ([]model.Payment, error)
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (model.Payment, error)
	UpdatePayment(ctx context.Context, id int64, req UpdatePaymentRequest) (model.Payment, error)
	DeletePayment(ctx context.Context, id int64) error
	PayAll(ctx context.Context, customerID int64) error
	GroupedPayments(ctx context.Context) ([]model.CustomerPayments, error)
}

// Request payloads follow the backend's wire contract. The update
// endpoint historically uses different key names than create
// (purchaseName/payDay/orderDay), so both shapes are kept verbatim.

type CreateCustomerRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type ProductRequest struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

type CreatePurchaseRequest struct {
	CustomerID int64            `json:"customer_id"`
	Name       string           `json:"name"`
	PayDay     string           `json:"payday"`
	OrderDate  string           `json:"orderdate"`
	Products   []ProductRequest `json:"productos"`
}

type CreatePurchaseNewCustomerRequest struct {
	Name         string           `json:"name"`
	Phone        string           `json:"phone"`
	PurchaseName string           `json:"nameCompra"`
	PayDay       string           `json:"payday"`
	OrderDate    string           `json:"orderdate"`
	Products     []ProductRequest `json:"productos"`
}

type UpdatePurchaseRequest struct {
	CustomerID   int64            `json:"customer_id"`
	Status       string           `json:"status"`
	PurchaseName string           `json:"purchaseName"`
	PayDay       string           `json:"payDay"`
	OrderDate    string           `json:"orderDay"`
	Products     []ProductRequest `json:"productos"`
}

type CreatePaymentRequest struct {
	PurchaseID int64   `json:"purchase_id"`
	Amount     float64 `json:"amount"`
	Date       string  `json:"date,omitempty"`
}

type UpdatePaymentRequest struct {
	PurchaseID int64   `json:"purchaseId"`
	Amount     float64 `json:"amount"`
	Date       string  `json:"date,omitempty"`
}

type client struct {
	rest         *resty.Client
	excessStatus int
}

func New(baseURL string, excessStatus int) Client {
	return &client{
		rest:         resty.New().SetBaseURL(baseURL),
		excessStatus: excessStatus,
	}
}

func (c *client) Customers(ctx context.Context) ([]model.Customer, error) {
	var customers []model.Customer
	err := c.get(ctx, "/clientes", &customers, "getting customers")
	return customers, err
}

func (c *client) Customer(ctx context.Context, id int64) (model.Customer, error) {
	var customer model.Customer
	err := c.get(ctx, "/clientes/"+itoa(id), &customer, "getting customer")
	return customer, err
}

func (c *client) CreateCustomer(ctx context.Context, req CreateCustomerRequest) (model.Customer, error) {
	var customer model.Customer
	err := c.send(ctx, http.MethodPost, "/clientes", req, &customer, "creating customer")
	return customer, err
}

func (c *client) Purchases(ctx context.Context) ([]model.Purchase, error) {
	var purchases []model.Purchase
	err := c.get(ctx, "/compras", &purchases, "getting purchases")
	return purchases, err
}

func (c *client) CreatePurchase(ctx context.Context, req CreatePurchaseRequest) (model.Purchase, error) {
	var purchase model.Purchase
	err := c.send(ctx, http.MethodPost, "/compras", req, &purchase, "creating purchase")
	return purchase, err
}

func (c *client) CreatePurchaseNewCustomer(ctx context.Context, req CreatePurchaseNewCustomerRequest) (model.Purchase, error) {
	var purchase model.Purchase
	err := c.send(ctx, http.MethodPost, "/compras/compraNCliente", req, &purchase, "creating purchase with new customer")
	return purchase, err
}

func (c *client) UpdatePurchase(ctx context.Context, id int64, req UpdatePurchaseRequest) (model.Purchase, error) {
	var purchase model.Purchase
	err := c.send(ctx, http.MethodPut, "/compras/"+itoa(id), req, &purchase, "updating purchase")
	return purchase, err
}

func (c *client) DeletePurchase(ctx context.Context, id int64) error {
	return c.send(ctx, http.MethodDelete, "/compras/"+itoa(id), nil, nil, "deleting purchase")
}

func (c *client) DeleteProduct(ctx context.Context, productID int64) error {
	return c.send(ctx, http.MethodDelete, "/compras/producto/"+itoa(productID), nil, nil, "deleting product")
}

func (c *client) PurchasePayments(ctx context.Context, purchaseID int64) ([]model.Payment, error) {
	var payments []model.Payment
	err := c.get(ctx, "/abonos/abonocompra/"+itoa(purchaseID), &payments, "getting payments")
	return payments, err
}

func (c *client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (model.Payment, error) {
	var payment model.Payment
	err := c.send(ctx, http.MethodPost, "/abonos", req, &payment, "creating payment")
	return payment, err
}

func (c *client) UpdatePayment(ctx context.Context, id int64, req UpdatePaymentRequest) (model.Payment, error) {
	var payment model.Payment
	err := c.send(ctx, http.MethodPut, "/abonos/"+itoa(id), req, &payment, "updating payment")
	return payment, err
}

func (c *client) DeletePayment(ctx context.Context, id int64) error {
	return c.send(ctx, http.MethodDelete, "/abonos/"+itoa(id), nil, nil, "deleting payment")
}

func (c *client) PayAll(ctx context.Context, customerID int64) error {
	return c.get(ctx, "/abonos/abonoTotal/"+itoa(customerID), nil, "settling all purchases")
}

func (c *client) GroupedPayments(ctx context.Context) ([]model.CustomerPayments, error) {
	var grouped []model.CustomerPayments
	err := c.get(ctx, "/abonos/abonosagrupados", &grouped, "getting grouped payments")
	return grouped, err
}

func (c *client) get(ctx context.Context, path string, out any, action string) error {
	return c.send(ctx, http.MethodGet, path, nil, out, action)
}

func (c *client) send(ctx context.Context, method, path string, body, out any, action string) error {
	req := c.rest.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if err := c.checkStatus(resp, action); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", action, err)
	}
	return nil
}

func (c *client) checkStatus(resp *resty.Response, action string) error {
	code := resp.StatusCode()
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == c.excessStatus:
		return fmt.Errorf("%s: %w", action, ErrPaymentExceedsDebt)
	case code == http.StatusNotFound:
		return fmt.Errorf("%s: %w", action, ErrNotFound)
	default:
		if msg := serverMessage(resp.Body()); msg != "" {
			return fmt.Errorf("%s: backend status %d: %s", action, code, msg)
		}
		return fmt.Errorf("%s: backend status %d", action, code)
	}
}

// serverMessage pulls the message field out of an error body, if the
// backend sent one.
func serverMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
