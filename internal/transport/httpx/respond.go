package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusForError(err), map[string]string{"message": err.Error()})
}

// statusForError переводит доменные ошибки в HTTP-статусы.
// Бизнес-отказы отдаются как 400, системные сбои как 5xx.
// Сообщения бизнес-отказов безопасны для показа пользователю.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrCartItemNotFound),
		errors.Is(err, domain.ErrVariantNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrInvalidAddress),
		errors.Is(err, domain.ErrQtyInvalid),
		errors.Is(err, domain.ErrItemQtyInvalid),
		errors.Is(err, domain.ErrCustomerRequired),
		errors.Is(err, domain.ErrAddressRequired),
		errors.Is(err, domain.ErrOrderIDRequired),
		errors.Is(err, domain.ErrVariantIDRequired):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRetryExhausted):
		// Исчерпанный бюджет повторов — системный сбой, даже если последней
		// ошибкой был конфликт версий.
		return http.StatusInternalServerError
	case errors.Is(err, domain.ErrOrderFinalized):
		return http.StatusConflict
	case domain.IsVersionConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
