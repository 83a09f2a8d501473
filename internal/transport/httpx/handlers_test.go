package httpx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/service/address"
	"github.com/vladislavdragonenkov/checkout/internal/service/catalog"
	"github.com/vladislavdragonenkov/checkout/internal/service/checkout"
	"github.com/vladislavdragonenkov/checkout/internal/service/inventory"
	"github.com/vladislavdragonenkov/checkout/internal/service/reservation"
	"github.com/vladislavdragonenkov/checkout/internal/service/webhook"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
)

const (
	testCustomer = "customer-1"
	testSecret   = "test-webhook-secret"
)

type apiFixture struct {
	router    *chi.Mux
	inventory domain.InventoryRepository
	orders    domain.OrderRepository
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	logger := log.New()
	logger.SetLevel(log.ErrorLevel)
	entry := logger.WithField("component", "httpx-test")

	inventoryRepo := memory.NewInventoryRepository()
	cartRepo := memory.NewCartRepository()
	orderRepo := memory.NewOrderRepository()
	webhookRepo := memory.NewWebhookEventRepository()
	outboxRepo := memory.NewOutboxRepository()
	timelineRepo := memory.NewTimelineRepository()

	catalogSvc := catalog.NewMockService()
	catalogSvc.SetPrice("variant-1", "USD", 2500)

	addressSvc := address.NewMockService()
	addressSvc.Register(testCustomer, "addr-ship-1")
	addressSvc.Register(testCustomer, "addr-bill-1")

	if err := inventoryRepo.Put(domain.InventoryRecord{VariantID: "variant-1", StockQty: 10}); err != nil {
		t.Fatalf("seed inventory: %v", err)
	}

	engine := reservation.NewEngineWithoutMetrics(inventoryRepo, cartRepo, catalogSvc, entry)
	orchestrator := checkout.NewOrchestratorWithoutMetrics(cartRepo, orderRepo, addressSvc, outboxRepo, timelineRepo, entry)
	finalizer := inventory.NewFinalizerWithoutMetrics(orderRepo, inventoryRepo, outboxRepo, timelineRepo, entry)
	gate := webhook.NewGateWithoutMetrics(webhookRepo, finalizer, []byte(testSecret), "stripe", entry)

	router := NewRouter()
	NewCartHandler(engine, entry).Register(router)
	NewOrdersHandler(orchestrator, nil, entry).Register(router)
	NewWebhookHandler(gate, nil, entry).Register(router)

	return &apiFixture{
		router:    router,
		inventory: inventoryRepo,
		orders:    orderRepo,
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(headerCustomerID, testCustomer)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) deliverWebhook(t *testing.T, eventID, eventType, orderID string) *httptest.ResponseRecorder {
	t.Helper()

	body := []byte(fmt.Sprintf(`{"id":%q,"type":%q,"order_id":%q}`, eventID, eventType, orderID))
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set(headerWebhookSignature, webhook.Sign([]byte(testSecret), body))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestCartHandler_AddAndGet(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/cart/items", addItemRequest{VariantID: "variant-1", Qty: 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("add item status %d: %s", rec.Code, rec.Body.String())
	}

	cart := decodeJSON[cartResponse](t, rec)
	if len(cart.Items) != 1 || cart.Items[0].Qty != 2 {
		t.Fatalf("unexpected cart: %+v", cart)
	}
	if cart.TotalMinor != 5000 {
		t.Fatalf("expected total 5000, got %d", cart.TotalMinor)
	}

	record, err := f.inventory.Get("variant-1")
	if err != nil {
		t.Fatalf("get inventory: %v", err)
	}
	if record.ReservedQty != 2 {
		t.Fatalf("expected 2 reserved units, got %d", record.ReservedQty)
	}

	rec = f.do(t, http.MethodGet, "/cart", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get cart status %d", rec.Code)
	}
}

// Проволочный формат корзины: поля называются product_variant_id и quantity
// и в запросе, и в ответе.
func TestCartHandler_WireFieldNames(t *testing.T) {
	f := newAPIFixture(t)

	body := []byte(`{"product_variant_id":"variant-1","quantity":3}`)
	req := httptest.NewRequest(http.MethodPost, "/cart/items", bytes.NewReader(body))
	req.Header.Set(headerCustomerID, testCustomer)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("add item status %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	items, ok := resp["items"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("unexpected items: %v", resp["items"])
	}
	item, _ := items[0].(map[string]any)
	if item["product_variant_id"] != "variant-1" {
		t.Fatalf("expected product_variant_id field, got %v", item)
	}
	if qty, _ := item["quantity"].(float64); qty != 3 {
		t.Fatalf("expected quantity field with value 3, got %v", item)
	}

	record, err := f.inventory.Get("variant-1")
	if err != nil {
		t.Fatalf("get inventory: %v", err)
	}
	if record.ReservedQty != 3 {
		t.Fatalf("expected 3 reserved units, got %d", record.ReservedQty)
	}
}

func TestCartHandler_InsufficientStockRejected(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/cart/items", addItemRequest{VariantID: "variant-1", Qty: 11})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversell, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeJSON[map[string]string](t, rec)
	if body["message"] != "insufficient stock" {
		t.Fatalf("unexpected rejection body: %q", rec.Body.String())
	}

	record, err := f.inventory.Get("variant-1")
	if err != nil {
		t.Fatalf("get inventory: %v", err)
	}
	if record.ReservedQty != 0 {
		t.Fatalf("rejected add must not leave reservations, got %d", record.ReservedQty)
	}
}

func TestCartHandler_UpdateAndRemove(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/cart/items", addItemRequest{VariantID: "variant-1", Qty: 2})
	cart := decodeJSON[cartResponse](t, rec)
	itemID := cart.Items[0].ID

	rec = f.do(t, http.MethodPatch, "/cart/items/"+itemID, updateItemRequest{Qty: 5})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status %d: %s", rec.Code, rec.Body.String())
	}
	cart = decodeJSON[cartResponse](t, rec)
	if cart.Items[0].Qty != 5 {
		t.Fatalf("expected qty 5, got %d", cart.Items[0].Qty)
	}

	rec = f.do(t, http.MethodDelete, "/cart/items/"+itemID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove status %d", rec.Code)
	}
	cart = decodeJSON[cartResponse](t, rec)
	if len(cart.Items) != 0 {
		t.Fatalf("expected empty cart, got %+v", cart.Items)
	}

	record, err := f.inventory.Get("variant-1")
	if err != nil {
		t.Fatalf("get inventory: %v", err)
	}
	if record.ReservedQty != 0 {
		t.Fatalf("expected all reservations released, got %d", record.ReservedQty)
	}

	rec = f.do(t, http.MethodDelete, "/cart/items/"+itemID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing item, got %d", rec.Code)
	}
}

func TestCartHandler_RequiresCustomer(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without customer header, got %d", rec.Code)
	}
}

func checkoutOrder(t *testing.T, f *apiFixture) orderResponse {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/cart/items", addItemRequest{VariantID: "variant-1", Qty: 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("add item status %d: %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodPost, "/orders", createOrderRequest{
		ShippingAddressID: "addr-ship-1",
		BillingAddressID:  "addr-bill-1",
		PaymentMethod:     "card",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkout status %d: %s", rec.Code, rec.Body.String())
	}

	return decodeJSON[orderResponse](t, rec)
}

func TestOrdersHandler_CheckoutFlow(t *testing.T) {
	f := newAPIFixture(t)

	order := checkoutOrder(t, f)
	if order.OrderNumber != "ORD-000001" {
		t.Fatalf("unexpected order number: %s", order.OrderNumber)
	}
	if order.PaymentStatus != "pending" || order.InventoryState != "held" {
		t.Fatalf("unexpected statuses: %s / %s", order.PaymentStatus, order.InventoryState)
	}
	if order.GrandTotalMinor != 5000 {
		t.Fatalf("unexpected total: %d", order.GrandTotalMinor)
	}
	if order.ShippingAddressID != "addr-ship-1" || order.BillingAddressID != "addr-bill-1" {
		t.Fatalf("order body must carry both address ids: %+v", order)
	}

	// Корзина очищена, резерв перешёл к заказу.
	rec := f.do(t, http.MethodGet, "/cart", nil)
	cart := decodeJSON[cartResponse](t, rec)
	if len(cart.Items) != 0 {
		t.Fatalf("expected cart cleared after checkout, got %+v", cart.Items)
	}

	rec = f.do(t, http.MethodGet, "/orders/"+order.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get order status %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/orders", nil)
	orders := decodeJSON[[]orderResponse](t, rec)
	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}

	rec = f.do(t, http.MethodGet, "/orders/"+order.ID+"/timeline", nil)
	events := decodeJSON[[]timelineEventResponse](t, rec)
	if len(events) != 1 || events[0].Type != domain.TimelineOrderCreated {
		t.Fatalf("unexpected timeline: %+v", events)
	}
}

func TestOrdersHandler_EmptyCartRejected(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/orders", createOrderRequest{
		ShippingAddressID: "addr-ship-1",
		BillingAddressID:  "addr-bill-1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty cart, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestOrdersHandler_ForeignOrderHidden(t *testing.T) {
	f := newAPIFixture(t)
	order := checkoutOrder(t, f)

	req := httptest.NewRequest(http.MethodGet, "/orders/"+order.ID, nil)
	req.Header.Set(headerCustomerID, "customer-2")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign order, got %d", rec.Code)
	}
}

func TestOrdersHandler_StatusEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	order := checkoutOrder(t, f)

	rec := f.do(t, http.MethodGet, "/orders/"+order.ID+"/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status endpoint code %d: %s", rec.Code, rec.Body.String())
	}
	status := decodeJSON[orderStatusResponse](t, rec)
	if status.PaymentStatus != "pending" || status.OrderID != order.ID {
		t.Fatalf("unexpected status body: %+v", status)
	}
}

func TestWebhookHandler_PaymentSucceededCommits(t *testing.T) {
	f := newAPIFixture(t)
	order := checkoutOrder(t, f)

	rec := f.deliverWebhook(t, "evt-1", "payment.succeeded", order.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook status %d: %s", rec.Code, rec.Body.String())
	}

	record, err := f.inventory.Get("variant-1")
	if err != nil {
		t.Fatalf("get inventory: %v", err)
	}
	if record.StockQty != 8 || record.ReservedQty != 0 {
		t.Fatalf("expected committed stock 8/0, got %d/%d", record.StockQty, record.ReservedQty)
	}

	loaded, err := f.orders.Get(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if loaded.PaymentStatus != domain.PaymentStatusPaid || loaded.InventoryState != domain.InventoryStateCommitted {
		t.Fatalf("unexpected order state: %s / %s", loaded.PaymentStatus, loaded.InventoryState)
	}
}

func TestWebhookHandler_ReplayedDeliveryIsIdempotent(t *testing.T) {
	f := newAPIFixture(t)
	order := checkoutOrder(t, f)

	first := f.deliverWebhook(t, "evt-1", "payment.succeeded", order.ID)
	second := f.deliverWebhook(t, "evt-1", "payment.succeeded", order.ID)
	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("expected both deliveries to return 200, got %d / %d", first.Code, second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("replay must return cached body: %q vs %q", first.Body.String(), second.Body.String())
	}

	record, err := f.inventory.Get("variant-1")
	if err != nil {
		t.Fatalf("get inventory: %v", err)
	}
	if record.StockQty != 8 {
		t.Fatalf("stock must be decremented exactly once, got %d", record.StockQty)
	}
}

func TestWebhookHandler_InvalidSignatureRejected(t *testing.T) {
	f := newAPIFixture(t)
	order := checkoutOrder(t, f)

	body := []byte(fmt.Sprintf(`{"id":"evt-1","type":"payment.succeeded","order_id":%q}`, order.ID))
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set(headerWebhookSignature, "deadbeef")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid signature, got %d", rec.Code)
	}

	loaded, err := f.orders.Get(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if loaded.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("order must stay pending after rejected delivery, got %s", loaded.PaymentStatus)
	}
}

func TestWebhookHandler_UnknownProviderHidden(t *testing.T) {
	f := newAPIFixture(t)
	order := checkoutOrder(t, f)

	body := []byte(fmt.Sprintf(`{"id":"evt-1","type":"payment.succeeded","order_id":%q}`, order.ID))
	req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", bytes.NewReader(body))
	req.Header.Set(headerWebhookSignature, webhook.Sign([]byte(testSecret), body))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown provider, got %d", rec.Code)
	}
}

func TestWebhookHandler_PaymentFailedReleases(t *testing.T) {
	f := newAPIFixture(t)
	order := checkoutOrder(t, f)

	rec := f.deliverWebhook(t, "evt-2", "payment.failed", order.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook status %d: %s", rec.Code, rec.Body.String())
	}

	record, err := f.inventory.Get("variant-1")
	if err != nil {
		t.Fatalf("get inventory: %v", err)
	}
	if record.StockQty != 10 || record.ReservedQty != 0 {
		t.Fatalf("expected released stock 10/0, got %d/%d", record.StockQty, record.ReservedQty)
	}
}
