package httpx

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/cache"
	"github.com/vladislavdragonenkov/checkout/internal/service/webhook"
)

// maxWebhookBodySize ограничивает размер тела webhook-доставки.
const maxWebhookBodySize = 1 << 20

// WebhookHandler принимает доставки платёжного провайдера.
// Подпись проверяется по сырым байтам тела до любого парсинга.
type WebhookHandler struct {
	gate        *webhook.Gate
	statusCache *cache.OrderStatusCache
	logger      *log.Entry
}

// NewWebhookHandler создаёт HTTP-обработчик платёжных webhook.
func NewWebhookHandler(gate *webhook.Gate, statusCache *cache.OrderStatusCache, logger *log.Entry) *WebhookHandler {
	if logger == nil {
		logger = log.WithField("component", "webhook-handler")
	}
	return &WebhookHandler{gate: gate, statusCache: statusCache, logger: logger}
}

// Register вешает маршрут приёма webhook на роутер.
func (h *WebhookHandler) Register(r *chi.Mux) {
	r.Post("/webhooks/{provider}", h.handleDelivery)
}

func (h *WebhookHandler) handleDelivery(w http.ResponseWriter, r *http.Request) {
	if provider := chi.URLParam(r, "provider"); provider != h.gate.Provider() {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "unknown provider"})
		return
	}

	rawBody, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodySize))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"message": "body too large"})
		return
	}

	outcome := h.gate.Handle(r.Context(), rawBody, r.Header.Get(headerWebhookSignature))

	// После успешной финализации закешированный статус устарел.
	if outcome.HTTPStatus == http.StatusOK && !outcome.Replayed {
		var applied struct {
			OrderID string `json:"order_id"`
		}
		if err := json.Unmarshal(outcome.Body, &applied); err == nil && applied.OrderID != "" {
			h.statusCache.Invalidate(r.Context(), applied.OrderID)
		}
	}

	writeRaw(w, outcome.HTTPStatus, outcome.Body)
}
