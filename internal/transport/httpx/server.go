package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	// headerCustomerID несёт идентификатор клиента; аутентификация
	// выполняется выше по стеку, сервис доверяет заголовку.
	headerCustomerID = "X-Customer-Id"
	// headerWebhookSignature несёт hex HMAC-SHA256 подпись сырого тела.
	headerWebhookSignature = "X-Webhook-Signature"

	requestTimeout = 15 * time.Second
)

// NewRouter создаёт chi-роутер с базовыми middleware.
func NewRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	return r
}

// customerID извлекает идентификатор клиента из запроса.
func customerID(r *http.Request) string {
	return r.Header.Get(headerCustomerID)
}
