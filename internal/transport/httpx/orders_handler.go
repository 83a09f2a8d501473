package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/cache"
	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/service/checkout"
)

const defaultOrdersLimit = 20

// OrdersHandler обслуживает чекаут и чтение заказов.
type OrdersHandler struct {
	orchestrator *checkout.Orchestrator
	statusCache  *cache.OrderStatusCache
	logger       *log.Entry
}

// NewOrdersHandler создаёт HTTP-обработчик заказов. statusCache может быть nil.
func NewOrdersHandler(orchestrator *checkout.Orchestrator, statusCache *cache.OrderStatusCache, logger *log.Entry) *OrdersHandler {
	if logger == nil {
		logger = log.WithField("component", "orders-handler")
	}
	return &OrdersHandler{
		orchestrator: orchestrator,
		statusCache:  statusCache,
		logger:       logger,
	}
}

// Register вешает маршруты заказов на роутер.
func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getOrderStatus)
	r.Get("/orders/{id}/timeline", h.getTimeline)
}

type createOrderRequest struct {
	ShippingAddressID string `json:"shipping_address_id"`
	BillingAddressID  string `json:"billing_address_id"`
	PaymentMethod     string `json:"payment_method"`
}

type orderItemResponse struct {
	ID         string `json:"id"`
	VariantID  string `json:"product_variant_id"`
	Qty        int64  `json:"quantity"`
	PriceMinor int64  `json:"price_minor"`
}

type orderResponse struct {
	ID                string              `json:"id"`
	OrderNumber       string              `json:"order_number"`
	CustomerID        string              `json:"customer_id"`
	ShippingAddressID string              `json:"shipping_address_id"`
	BillingAddressID  string              `json:"billing_address_id"`
	PaymentStatus     string              `json:"payment_status"`
	OrderStatus       string              `json:"order_status"`
	InventoryState    string              `json:"inventory_state"`
	Currency          string              `json:"currency"`
	GrandTotalMinor   int64               `json:"grand_total_minor"`
	Items             []orderItemResponse `json:"items"`
	CreatedAt         time.Time           `json:"created_at"`
}

type orderStatusResponse struct {
	OrderID        string `json:"order_id"`
	OrderNumber    string `json:"order_number"`
	PaymentStatus  string `json:"payment_status"`
	OrderStatus    string `json:"order_status"`
	InventoryState string `json:"inventory_state"`
}

type timelineEventResponse struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	customer := customerID(r)
	if customer == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "customer id is required"})
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid json"})
		return
	}

	order, err := h.orchestrator.Checkout(r.Context(), checkout.Request{
		CustomerID:        customer,
		ShippingAddressID: req.ShippingAddressID,
		BillingAddressID:  req.BillingAddressID,
		PaymentMethod:     req.PaymentMethod,
	})
	if err != nil {
		if !domain.IsBusinessRejection(err) {
			h.logger.WithError(err).WithField("customer_id", customer).Error("checkout failed")
		}
		writeError(w, err)
		return
	}

	h.cacheStatus(r, order)
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	customer := customerID(r)
	if customer == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "customer id is required"})
		return
	}

	limit := defaultOrdersLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid limit"})
			return
		}
		limit = parsed
	}

	orders, err := h.orchestrator.Orders(customer, limit)
	if err != nil {
		h.logger.WithError(err).WithField("customer_id", customer).Error("failed to list orders")
		writeError(w, err)
		return
	}

	response := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		response = append(response, toOrderResponse(order))
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadOwnOrder(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// getOrderStatus отдаёт лёгкий статус заказа с read-through кешем в Redis.
func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	customer := customerID(r)
	if customer == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "customer id is required"})
		return
	}

	orderID := chi.URLParam(r, "id")
	if cached, ok := h.statusCache.Get(r.Context(), orderID); ok {
		writeRaw(w, http.StatusOK, cached)
		return
	}

	order, ok := h.loadOwnOrder(w, r)
	if !ok {
		return
	}

	body, err := json.Marshal(toStatusResponse(order))
	if err != nil {
		writeError(w, err)
		return
	}
	h.statusCache.Set(r.Context(), order.ID, body)
	writeRaw(w, http.StatusOK, body)
}

func (h *OrdersHandler) getTimeline(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadOwnOrder(w, r)
	if !ok {
		return
	}

	events, err := h.orchestrator.Timeline(order.ID)
	if err != nil {
		h.logger.WithError(err).WithField("order_id", order.ID).Error("failed to load timeline")
		writeError(w, err)
		return
	}

	response := make([]timelineEventResponse, 0, len(events))
	for _, event := range events {
		response = append(response, timelineEventResponse{
			Type:     event.Type,
			Reason:   event.Reason,
			Occurred: event.Occurred,
		})
	}
	writeJSON(w, http.StatusOK, response)
}

// loadOwnOrder загружает заказ и проверяет, что он принадлежит клиенту
// из запроса. Чужой заказ неотличим от несуществующего.
func (h *OrdersHandler) loadOwnOrder(w http.ResponseWriter, r *http.Request) (domain.Order, bool) {
	customer := customerID(r)
	if customer == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "customer id is required"})
		return domain.Order{}, false
	}

	order, err := h.orchestrator.Order(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return domain.Order{}, false
	}
	if order.CustomerID != customer {
		writeError(w, domain.ErrOrderNotFound)
		return domain.Order{}, false
	}

	return order, true
}

func (h *OrdersHandler) cacheStatus(r *http.Request, order domain.Order) {
	body, err := json.Marshal(toStatusResponse(order))
	if err != nil {
		return
	}
	h.statusCache.Set(r.Context(), order.ID, body)
}

func toOrderResponse(order domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ID:         item.ID,
			VariantID:  item.VariantID,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
		})
	}
	return orderResponse{
		ID:                order.ID,
		OrderNumber:       order.OrderNumber,
		CustomerID:        order.CustomerID,
		ShippingAddressID: order.ShippingAddressID,
		BillingAddressID:  order.BillingAddressID,
		PaymentStatus:     string(order.PaymentStatus),
		OrderStatus:       string(order.OrderStatus),
		InventoryState:    string(order.InventoryState),
		Currency:          order.Currency,
		GrandTotalMinor:   order.GrandTotalMinor,
		Items:             items,
		CreatedAt:         order.CreatedAt,
	}
}

func toStatusResponse(order domain.Order) orderStatusResponse {
	return orderStatusResponse{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PaymentStatus:  string(order.PaymentStatus),
		OrderStatus:    string(order.OrderStatus),
		InventoryState: string(order.InventoryState),
	}
}
