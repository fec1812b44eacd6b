// internal/handler/deposit_handler.go
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"deposit-service/internal/domain"
	"deposit-service/internal/paycode"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type OrderService interface {
	CreateOrder(ctx context.Context, userID string, baseAmount decimal.Decimal) (*domain.DepositOrder, error)
	GetOrder(ctx context.Context, orderID string) (*domain.DepositOrder, error)
	ListOrders(ctx context.Context, filter domain.ListFilter) ([]*domain.DepositOrder, error)
	CancelOrder(ctx context.Context, orderID, userID string) (domain.CancelOutcome, error)
}

type VerifyService interface {
	VerifyOrder(ctx context.Context, orderID string) (domain.VerifyResult, error)
}

type BalanceReader interface {
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
}

type DepositHandler struct {
	orders   OrderService
	verifier VerifyService
	balances BalanceReader
	renderer *paycode.Renderer
	logger   *zap.Logger
}

func NewDepositHandler(
	orders OrderService,
	verifier VerifyService,
	balances BalanceReader,
	renderer *paycode.Renderer,
	logger *zap.Logger,
) *DepositHandler {
	return &DepositHandler{
		orders:   orders,
		verifier: verifier,
		balances: balances,
		renderer: renderer,
		logger:   logger,
	}
}

type createOrderRequest struct {
	UserID string          `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
}

type cancelOrderRequest struct {
	UserID string `json:"user_id"`
}

type orderResponse struct {
	OrderID        string     `json:"order_id"`
	UserID         string     `json:"user_id"`
	Network        string     `json:"network"`
	Token          string     `json:"token"`
	ReceiveAddress string     `json:"receive_address"`
	BaseAmount     string     `json:"base_amount"`
	Discriminator  int        `json:"discriminator"`
	ExpectedAmount string     `json:"expected_amount"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpireAt       time.Time  `json:"expire_at"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
	TxID           *string    `json:"tx_id,omitempty"`
	FromAddress    *string    `json:"from_address,omitempty"`
}

func toOrderResponse(o *domain.DepositOrder) orderResponse {
	return orderResponse{
		OrderID:        o.OrderID,
		UserID:         o.UserID,
		Network:        o.Network,
		Token:          o.Token,
		ReceiveAddress: o.ReceiveAddress,
		BaseAmount:     o.BaseAmount.StringFixed(2),
		Discriminator:  o.Discriminator,
		ExpectedAmount: o.ExpectedAmount.StringFixed(4),
		Status:         string(o.Status),
		CreatedAt:      o.CreatedAt,
		ExpireAt:       o.ExpireAt,
		PaidAt:         o.PaidAt,
		TxID:           o.TxID,
		FromAddress:    o.FromAddress,
	}
}

// CreateOrder handles POST /deposits
func (h *DepositHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), req.UserID, req.Amount)
	if err != nil {
		h.handleDomainError(w, "failed to create deposit order", err)
		return
	}

	h.sendSuccess(w, http.StatusCreated, "deposit order created", map[string]interface{}{
		"order":        toOrderResponse(order),
		"payment_code": h.renderer.Render(order),
	})
}

// GetOrder handles GET /deposits/{order_id}
func (h *DepositHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "order_id"))
	if err != nil {
		h.handleDomainError(w, "failed to get deposit order", err)
		return
	}
	h.sendSuccess(w, http.StatusOK, "deposit order retrieved", toOrderResponse(order))
}

// ListOrders handles GET /deposits?user_id=&limit=&include_canceled=
func (h *DepositHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	includeCanceled, _ := strconv.ParseBool(q.Get("include_canceled"))

	orders, err := h.orders.ListOrders(r.Context(), domain.ListFilter{
		UserID:          q.Get("user_id"),
		Limit:           limit,
		IncludeCanceled: includeCanceled,
	})
	if err != nil {
		h.handleDomainError(w, "failed to list deposit orders", err)
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	h.sendSuccess(w, http.StatusOK, "deposit orders retrieved", out)
}

// VerifyOrder handles POST /deposits/{order_id}/verify
func (h *DepositHandler) VerifyOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "order_id")

	res, err := h.verifier.VerifyOrder(r.Context(), orderID)
	if err != nil {
		h.handleDomainError(w, "failed to verify deposit order", err)
		return
	}

	h.logger.Info("deposit verify requested",
		zap.String("order_id", orderID),
		zap.String("result", string(res.Outcome)))

	h.sendSuccess(w, http.StatusOK, verifyMessage(res.Outcome), res)
}

// CancelOrder handles POST /deposits/{order_id}/cancel
func (h *DepositHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelOrderRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.sendError(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
	}

	out, err := h.orders.CancelOrder(r.Context(), chi.URLParam(r, "order_id"), req.UserID)
	if err != nil {
		h.handleDomainError(w, "failed to cancel deposit order", err)
		return
	}

	msg := "deposit order canceled"
	if out == domain.CancelNotPending {
		msg = "deposit order is no longer pending"
	}
	h.sendSuccess(w, http.StatusOK, msg, map[string]string{"result": string(out)})
}

// QRCode handles GET /deposits/{order_id}/qrcode.png
func (h *DepositHandler) QRCode(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "order_id"))
	if err != nil {
		h.handleDomainError(w, "failed to get deposit order", err)
		return
	}

	code := h.renderer.Render(order)
	if code.Fallback {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(code.Caption))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(code.PNG)
}

// GetBalance handles GET /balances/{user_id}
func (h *DepositHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	balance, err := h.balances.GetBalance(r.Context(), userID)
	if err != nil {
		h.handleDomainError(w, "failed to get balance", err)
		return
	}
	h.sendSuccess(w, http.StatusOK, "balance retrieved", map[string]string{
		"user_id": userID,
		"balance": balance.StringFixed(2),
	})
}

func verifyMessage(o domain.VerifyOutcome) string {
	switch o {
	case domain.VerifySettled:
		return "payment found, balance credited"
	case domain.VerifyAlreadySettled:
		return "order already paid"
	case domain.VerifyAlreadyExpired:
		return "order expired, please create a new one"
	case domain.VerifyNotPending:
		return "order is no longer pending"
	default:
		return "payment not found yet, please try again shortly"
	}
}

func (h *DepositHandler) handleDomainError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrBelowMinimum),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidUserID):
		h.sendError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, domain.ErrOrderNotFound):
		h.sendError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, domain.ErrAllocationExhausted):
		h.sendError(w, http.StatusServiceUnavailable, "system busy, please retry", nil)
	case errors.Is(err, domain.ErrAddressNotConfigured):
		h.logger.Error(op, zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, "deposits are temporarily unavailable", nil)
	default:
		h.logger.Error(op, zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, op, err)
	}
}

func (h *DepositHandler) sendSuccess(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": message,
		"data":    data,
	})
}

func (h *DepositHandler) sendError(w http.ResponseWriter, statusCode int, message string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := map[string]interface{}{
		"success": false,
		"message": message,
	}

	if err != nil {
		response["error"] = err.Error()
	}

	json.NewEncoder(w).Encode(response)
}
