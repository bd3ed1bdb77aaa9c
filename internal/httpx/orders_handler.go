package httpx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lokapasar/marketplace/internal/orders"
)

// OrderService is the slice of the order core the HTTP layer talks to.
type OrderService interface {
	Place(ctx context.Context, buyerID string, req orders.PlaceOrderRequest) (*orders.PlaceOrderResult, error)
	List(ctx context.Context, actor orders.Actor) ([]*orders.Order, error)
	Get(ctx context.Context, actor orders.Actor, id string) (*orders.Order, error)
	Status(ctx context.Context, actor orders.Actor, id string) (orders.Status, orders.PaymentStatus, error)
	UpdateStatus(ctx context.Context, actor orders.Actor, id string, target orders.Status) (*orders.Order, error)
	UpdatePaymentStatus(ctx context.Context, actor orders.Actor, id string, target orders.PaymentStatus) (*orders.Order, error)
	HandleGatewayCallback(ctx context.Context, cb orders.GatewayCallback) (*orders.Order, error)
}

type OrdersHandler struct {
	Svc OrderService
	Log *zap.Logger
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/orders", h.createOrder)
		r.Get("/orders", h.listOrders)
		r.Get("/orders/{id}", h.getOrder)
		r.Get("/orders/{id}/status", h.getOrderStatus)
		r.Patch("/orders/{id}", h.updateStatus)
		r.Patch("/orders/{id}/payment-status", h.updatePaymentStatus)
		r.Post("/gateway/callback", h.gatewayCallback)
	})
}

// Actor identity is the authorization layer's output, forwarded as headers.
func actorFrom(r *http.Request) (orders.Actor, bool) {
	a := orders.Actor{
		ID:   r.Header.Get("X-Actor-Id"),
		Role: orders.Role(r.Header.Get("X-Actor-Role")),
	}
	return a, a.ID != "" && a.Role.Valid()
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Kind    orders.Kind `json:"kind"`
	Message string      `json:"message"`
}

var kindStatus = map[orders.Kind]int{
	orders.KindValidation:        http.StatusBadRequest,
	orders.KindNotFound:          http.StatusNotFound,
	orders.KindInsufficientStock: http.StatusBadRequest,
	orders.KindConflict:          http.StatusConflict,
	orders.KindGateway:           http.StatusBadGateway,
	orders.KindInternal:          http.StatusInternalServerError,
}

func (h *OrdersHandler) writeError(w http.ResponseWriter, err error) {
	kind := orders.KindOf(err)
	code, ok := kindStatus[kind]
	if !ok {
		code = http.StatusInternalServerError
	}
	if code == http.StatusInternalServerError {
		h.Log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, code, map[string]errorBody{"error": {Kind: kind, Message: err.Error()}})
}

type orderResponse struct {
	ID              string               `json:"id"`
	BuyerID         string               `json:"user_id"`
	SellerID        string               `json:"seller_id"`
	Products        []orders.Line        `json:"products"`
	DeliveryAddress orders.Address       `json:"delivery_address"`
	TotalPrice      int64                `json:"total_price"`
	PaymentMethod   orders.PaymentMethod `json:"payment_method"`
	PaymentStatus   orders.PaymentStatus `json:"payment_status"`
	Status          orders.Status        `json:"status"`
	TransactionID   string               `json:"transaction_id,omitempty"`
	PaymentToken    string               `json:"payment_token,omitempty"`
	RedirectURL     string               `json:"redirect_url,omitempty"`
	PaymentExpiry   *time.Time           `json:"payment_expiry,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

func toOrderResponse(o *orders.Order) orderResponse {
	return orderResponse{
		ID:              o.ID,
		BuyerID:         o.BuyerID,
		SellerID:        o.SellerID,
		Products:        o.Lines,
		DeliveryAddress: o.DeliveryAddress,
		TotalPrice:      o.TotalPrice,
		PaymentMethod:   o.PaymentMethod,
		PaymentStatus:   o.PaymentStatus,
		Status:          o.Status,
		TransactionID:   o.TransactionID,
		PaymentToken:    o.PaymentToken,
		RedirectURL:     o.RedirectURL,
		PaymentExpiry:   o.PaymentExpiry,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]errorBody{"error": {Kind: orders.KindValidation, Message: "missing actor identity"}})
		return
	}
	if actor.Role != orders.RoleBuyer {
		writeJSON(w, http.StatusBadRequest, map[string]errorBody{"error": {Kind: orders.KindValidation, Message: "only buyers may place orders"}})
		return
	}

	var req orders.PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]errorBody{"error": {Kind: orders.KindValidation, Message: "invalid json"}})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := h.Svc.Place(ctx, actor.ID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]errorBody{"error": {Kind: orders.KindValidation, Message: "missing actor identity"}})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	out, err := h.Svc.List(ctx, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := make([]orderResponse, 0, len(out))
	for _, o := range out {
		resp = append(resp, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]errorBody{"error": {Kind: orders.KindValidation, Message: "missing actor identity"}})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Svc.Get(ctx, actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]errorBody{"error": {Kind: orders.KindValidation, Message: "missing actor identity"}})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	st, ps, err := h.Svc.Status(ctx, actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": st, "payment_status": ps})
}

type statusUpdateReq struct {
	Status string `json:"status"`
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]errorBody{"error": {Kind: orders.KindValidation, Message: "missing actor identity"}})
		return
	}

	var req statusUpdateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]errorBody{"error": {Kind: orders.KindValidation, Message: "invalid json"}})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Svc.UpdateStatus(ctx, actor, chi.URLParam(r, "id"), orders.Status(req.Status))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *OrdersHandler) updatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]errorBody{"error": {Kind: orders.KindValidation, Message: "missing actor identity"}})
		return
	}

	var req statusUpdateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]errorBody{"error": {Kind: orders.KindValidation, Message: "invalid json"}})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Svc.UpdatePaymentStatus(ctx, actor, chi.URLParam(r, "id"), orders.PaymentStatus(req.Status))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *OrdersHandler) gatewayCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]errorBody{"error": {Kind: orders.KindValidation, Message: "unreadable body"}})
		return
	}
	var cb orders.GatewayCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]errorBody{"error": {Kind: orders.KindValidation, Message: "invalid json"}})
		return
	}
	cb.Raw = body

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Svc.HandleGatewayCallback(ctx, cb); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "payment status updated"})
}
