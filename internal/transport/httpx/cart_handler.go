package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/service/reservation"
)

// CartHandler обслуживает операции с корзиной. Каждая мутация корзины
// синхронно резервирует или освобождает единицы на складе.
type CartHandler struct {
	engine *reservation.Engine
	logger *log.Entry
}

// NewCartHandler создаёт HTTP-обработчик корзины.
func NewCartHandler(engine *reservation.Engine, logger *log.Entry) *CartHandler {
	if logger == nil {
		logger = log.WithField("component", "cart-handler")
	}
	return &CartHandler{engine: engine, logger: logger}
}

// Register вешает маршруты корзины на роутер.
func (h *CartHandler) Register(r *chi.Mux) {
	r.Get("/cart", h.getCart)
	r.Post("/cart/items", h.addItem)
	r.Patch("/cart/items/{itemID}", h.updateItem)
	r.Delete("/cart/items/{itemID}", h.removeItem)
}

type addItemRequest struct {
	VariantID string `json:"product_variant_id"`
	Qty       int64  `json:"quantity"`
}

type updateItemRequest struct {
	Qty int64 `json:"quantity"`
}

type cartItemResponse struct {
	ID         string `json:"id"`
	VariantID  string `json:"product_variant_id"`
	Qty        int64  `json:"quantity"`
	PriceMinor int64  `json:"price_minor"`
}

type cartResponse struct {
	CustomerID string             `json:"customer_id"`
	Currency   string             `json:"currency"`
	Items      []cartItemResponse `json:"items"`
	TotalMinor int64              `json:"total_minor"`
}

func (h *CartHandler) getCart(w http.ResponseWriter, r *http.Request) {
	customer := customerID(r)
	if customer == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "customer id is required"})
		return
	}

	cart, err := h.engine.Cart(customer)
	if err != nil {
		h.logger.WithError(err).WithField("customer_id", customer).Error("failed to load cart")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toCartResponse(cart))
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	customer := customerID(r)
	if customer == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "customer id is required"})
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid json"})
		return
	}

	cart, err := h.engine.AddItem(r.Context(), customer, req.VariantID, req.Qty)
	if err != nil {
		if !domain.IsBusinessRejection(err) {
			h.logger.WithError(err).WithFields(log.Fields{
				"customer_id": customer,
				"variant_id":  req.VariantID,
			}).Error("failed to add cart item")
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toCartResponse(cart))
}

func (h *CartHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	customer := customerID(r)
	if customer == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "customer id is required"})
		return
	}

	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid json"})
		return
	}

	cart, err := h.engine.UpdateItem(r.Context(), customer, chi.URLParam(r, "itemID"), req.Qty)
	if err != nil {
		if !domain.IsBusinessRejection(err) {
			h.logger.WithError(err).WithField("customer_id", customer).Error("failed to update cart item")
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toCartResponse(cart))
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	customer := customerID(r)
	if customer == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "customer id is required"})
		return
	}

	cart, err := h.engine.RemoveItem(r.Context(), customer, chi.URLParam(r, "itemID"))
	if err != nil {
		if !domain.IsBusinessRejection(err) {
			h.logger.WithError(err).WithField("customer_id", customer).Error("failed to remove cart item")
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toCartResponse(cart))
}

func toCartResponse(cart domain.Cart) cartResponse {
	items := make([]cartItemResponse, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, cartItemResponse{
			ID:         item.ID,
			VariantID:  item.VariantID,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
		})
	}
	return cartResponse{
		CustomerID: cart.CustomerID,
		Currency:   cart.Currency,
		Items:      items,
		TotalMinor: cart.TotalMinor(),
	}
}
