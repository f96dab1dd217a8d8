package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/egannguyen/go-bookstore/internal/auth"
	"github.com/egannguyen/go-bookstore/internal/entity"
	"github.com/egannguyen/go-bookstore/internal/idempotency"
	"github.com/egannguyen/go-bookstore/internal/metrics"
	"github.com/egannguyen/go-bookstore/internal/repository/memory"
	"github.com/egannguyen/go-bookstore/internal/service"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store   *memory.Store
	metrics *metrics.Metrics
	handler http.Handler
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	s := memory.New()
	s.PutGenre(entity.Genre{ID: 1, Name: "Fiction"})
	s.PutUser(entity.User{ID: 7, FirstName: "Rana", LastName: "K", Email: "rana@example.com", Role: entity.RoleClient})
	s.PutUser(entity.User{ID: 8, FirstName: "Omar", Email: "omar@example.com", PhoneNumber: "555-0101", Role: entity.RoleClient})
	s.PutBook(entity.SaleBook{ID: 3, Title: "Dune", GenreID: 1, Price: decimal.RequireFromString("10.00"), Quantity: 5})
	s.PutBook(entity.SaleBook{ID: 4, Title: "Emma", GenreID: 1, Price: decimal.RequireFromString("4.25"), Quantity: 2})
	s.PutTradeBook(entity.TradeBook{ID: 20, OwnerID: 8, Title: "Ulysses"})

	if opts.Metrics == nil {
		opts.Metrics = metrics.Discard()
	}
	svc := Services{
		Checkout:  service.NewCheckoutService(s.Users(), s.Books(), s.Orders()),
		Orders:    service.NewOrderService(s.Orders()),
		Catalog:   service.NewCatalogService(s.Books()),
		Users:     service.NewUserService(s.Users()),
		Trades:    service.NewTradeService(s.Users(), s.Trades()),
		Analytics: service.NewAnalyticsService(s.Analytics()),
	}
	return &fixture{store: s, metrics: opts.Metrics, handler: NewHandler(svc, opts).Routes()}
}

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
	Details map[string]any  `json:"details"`
}

func (f *fixture) do(t *testing.T, method, path, body string, headers ...string) (*httptest.ResponseRecorder, response) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	var resp response
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w, resp
}

func TestCheckoutEndpoint(t *testing.T) {
	f := newFixture(t, Options{})

	w, resp := f.do(t, http.MethodPost, "/api/v1/orders/checkout/7", `{"order_info":[{"book_id":3,"quantity":2}]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, resp.Success)

	var order orderResponse
	require.NoError(t, json.Unmarshal(resp.Data, &order))
	assert.Equal(t, "20.00", order.Total)
	assert.Equal(t, entity.OrderPending, order.Status)
	assert.Equal(t, entity.ShipmentDelivery, order.ShipmentMethod)
	assert.Equal(t, 2, order.TotalQuantity)
	require.Len(t, order.Lines, 1)
	assert.Equal(t, "Dune", order.Lines[0].Title)
	assert.Equal(t, 3, f.store.Stock(3))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Checkouts.WithLabelValues("placed")))
}

func TestCheckoutEndpointErrors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
		itemID float64
	}{
		{"duplicate line", "/api/v1/orders/checkout/7", `{"order_info":[{"book_id":3,"quantity":2},{"book_id":3,"quantity":1}]}`, http.StatusBadRequest, "DUPLICATE_ITEM", 3},
		{"short stock", "/api/v1/orders/checkout/7", `{"order_info":[{"book_id":4,"quantity":3}]}`, http.StatusBadRequest, "INSUFFICIENT_STOCK", 4},
		{"unknown book", "/api/v1/orders/checkout/7", `{"order_info":[{"book_id":99,"quantity":1}]}`, http.StatusNotFound, "NOT_FOUND", 99},
		{"unknown buyer", "/api/v1/orders/checkout/404", `{"order_info":[]}`, http.StatusNotFound, "NOT_FOUND", 0},
		{"unknown buyer with malformed body", "/api/v1/orders/checkout/404", `{"order_info":`, http.StatusNotFound, "NOT_FOUND", 0},
		{"unknown buyer with oversized shipment method", "/api/v1/orders/checkout/404", `{"order_info":[],"shipment_method":"` + strings.Repeat("x", 60) + `"}`, http.StatusNotFound, "NOT_FOUND", 0},
		{"empty lines", "/api/v1/orders/checkout/7", `{"order_info":[]}`, http.StatusBadRequest, "INVALID_INPUT", 0},
		{"malformed body", "/api/v1/orders/checkout/7", `{"order_info":`, http.StatusBadRequest, "INVALID_INPUT", 0},
		{"bad user id", "/api/v1/orders/checkout/abc", `{}`, http.StatusBadRequest, "INVALID_INPUT", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{})
			w, resp := f.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.code, resp.Error)
			if tt.itemID != 0 {
				assert.Equal(t, tt.itemID, resp.Details["item_id"])
			}
			assert.Equal(t, 5, f.store.Stock(3))
			assert.Equal(t, 2, f.store.Stock(4))
			assert.Zero(t, f.store.OrderCount())
		})
	}
}

func TestCheckoutIdempotencyReplay(t *testing.T) {
	f := newFixture(t, Options{Idempotency: idempotency.NewMemoryStore(time.Minute)})
	body := `{"order_info":[{"book_id":3,"quantity":1}],"shipment_method":"pickup"}`

	first, _ := f.do(t, http.MethodPost, "/api/v1/orders/checkout/7", body, idempotency.Header, "abc-123")
	require.Equal(t, http.StatusCreated, first.Code)

	second, _ := f.do(t, http.MethodPost, "/api/v1/orders/checkout/7", body, idempotency.Header, "abc-123")
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	assert.Equal(t, 4, f.store.Stock(3))
	assert.Equal(t, 1, f.store.OrderCount())
}

func TestOrderAdministration(t *testing.T) {
	f := newFixture(t, Options{})
	w, _ := f.do(t, http.MethodPost, "/api/v1/orders/checkout/7", `{"order_info":[{"book_id":4,"quantity":1}]}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w, resp := f.do(t, http.MethodGet, "/api/v1/orders", "")
	require.Equal(t, http.StatusOK, w.Code)
	var orders []orderResponse
	require.NoError(t, json.Unmarshal(resp.Data, &orders))
	require.Len(t, orders, 1)
	require.NotNil(t, orders[0].Buyer)
	assert.Equal(t, "Rana K", orders[0].Buyer.Name)
	path := "/api/v1/orders/" + itoa(orders[0].ID)

	w, _ = f.do(t, http.MethodPut, path+"/deliver", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w, resp = f.do(t, http.MethodPut, path+"/deliver", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_TRANSITION", resp.Error)

	w, _ = f.do(t, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w, resp = f.do(t, http.MethodGet, path, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", resp.Error)
}

func TestBookEndpoints(t *testing.T) {
	f := newFixture(t, Options{})

	w, resp := f.do(t, http.MethodPatch, "/api/v1/books/3", `{"discount":"10","quantity":8}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var book bookResponse
	require.NoError(t, json.Unmarshal(resp.Data, &book))
	assert.Equal(t, 8, book.Quantity)
	assert.Equal(t, "10.00", book.Price)
	require.NotNil(t, book.DiscountedPrice)
	assert.Equal(t, "9.00", *book.DiscountedPrice)

	w, resp = f.do(t, http.MethodPatch, "/api/v1/books/3", `{"sale_book_id":9}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INPUT", resp.Error)

	w, resp = f.do(t, http.MethodPatch, "/api/v1/books/3", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INPUT", resp.Error)

	w, resp = f.do(t, http.MethodPatch, "/api/v1/books/3", `{"title":"`+strings.Repeat("x", 300)+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error)
	assert.Contains(t, resp.Details["fields"], "title")

	w, resp = f.do(t, http.MethodGet, "/api/v1/books/latest", "")
	require.Equal(t, http.StatusOK, w.Code)
	var latest []bookResponse
	require.NoError(t, json.Unmarshal(resp.Data, &latest))
	assert.Len(t, latest, 2)

	w, _ = f.do(t, http.MethodGet, "/api/v1/books/77", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTradeEndpoints(t *testing.T) {
	f := newFixture(t, Options{})

	w, resp := f.do(t, http.MethodPost, "/api/v1/trade-requests", `{"trade_book_id":20,"user_id":7,"book_name":"Emma","location":"Beirut"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var tr entity.TradeRequest
	require.NoError(t, json.Unmarshal(resp.Data, &tr))
	assert.Equal(t, entity.TradePending, tr.Status)

	w, resp = f.do(t, http.MethodPost, "/api/v1/trade-requests", `{"trade_book_id":20,"user_id":7}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error)

	w, resp = f.do(t, http.MethodGet, "/api/v1/users/7/trade-requests", "")
	require.Equal(t, http.StatusOK, w.Code)
	var mine []entity.TradeRequest
	require.NoError(t, json.Unmarshal(resp.Data, &mine))
	assert.Len(t, mine, 1)

	path := "/api/v1/trade-requests/" + itoa(tr.ID)
	w, _ = f.do(t, http.MethodPut, path+"/accept", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w, resp = f.do(t, http.MethodPut, path+"/decline", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_TRANSITION", resp.Error)
}

func TestAuthorization(t *testing.T) {
	m, err := auth.NewManager("test-secret", "bookstore", time.Hour)
	require.NoError(t, err)
	f := newFixture(t, Options{Auth: m})

	bearer := func(id int64, role entity.Role) string {
		tok, err := m.Generate(id, role)
		require.NoError(t, err)
		return "Bearer " + tok
	}
	client := bearer(7, entity.RoleClient)
	owner := bearer(8, entity.RoleClient)
	admin := bearer(1, entity.RoleAdmin)
	checkout := `{"order_info":[{"book_id":3,"quantity":1}]}`
	trade := `{"trade_book_id":20,"user_id":7,"book_name":"Emma"}`

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		token  string
		status int
	}{
		{"public catalog", http.MethodGet, "/api/v1/books", "", "", http.StatusOK},
		{"missing token", http.MethodGet, "/api/v1/users/7", "", "", http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/api/v1/users/7", "", "Bearer nope", http.StatusUnauthorized},
		{"own profile", http.MethodGet, "/api/v1/users/7", "", client, http.StatusOK},
		{"other profile", http.MethodGet, "/api/v1/users/8", "", client, http.StatusForbidden},
		{"admin reads any profile", http.MethodGet, "/api/v1/users/8", "", admin, http.StatusOK},
		{"client lists orders", http.MethodGet, "/api/v1/orders", "", client, http.StatusForbidden},
		{"admin lists orders", http.MethodGet, "/api/v1/orders", "", admin, http.StatusOK},
		{"checkout for someone else", http.MethodPost, "/api/v1/orders/checkout/8", checkout, client, http.StatusForbidden},
		{"checkout for self", http.MethodPost, "/api/v1/orders/checkout/7", checkout, client, http.StatusCreated},
		{"client changes own role", http.MethodPatch, "/api/v1/users/7", `{"role":"admin"}`, client, http.StatusForbidden},
		{"client changes own city", http.MethodPatch, "/api/v1/users/7", `{"city":"Tripoli"}`, client, http.StatusOK},
		{"client analytics", http.MethodGet, "/api/v1/analytics", "", client, http.StatusForbidden},
		{"client requests trade", http.MethodPost, "/api/v1/trade-requests", trade, client, http.StatusCreated},
		{"requester accepts own request", http.MethodPut, "/api/v1/trade-requests/1/accept", "", client, http.StatusForbidden},
		{"requester declines own request", http.MethodPut, "/api/v1/trade-requests/1/decline", "", client, http.StatusForbidden},
		{"owner accepts", http.MethodPut, "/api/v1/trade-requests/1/accept", "", owner, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var headers []string
			if tt.token != "" {
				headers = []string{"Authorization", tt.token}
			}
			w, _ := f.do(t, tt.method, tt.path, tt.body, headers...)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestAnalyticsEndpoint(t *testing.T) {
	f := newFixture(t, Options{})
	w, _ := f.do(t, http.MethodPost, "/api/v1/orders/checkout/7", `{"order_info":[{"book_id":4,"quantity":2}]}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w, resp := f.do(t, http.MethodGet, "/api/v1/analytics", "")
	require.Equal(t, http.StatusOK, w.Code)
	var sum summaryResponse
	require.NoError(t, json.Unmarshal(resp.Data, &sum))
	assert.Equal(t, 1, sum.TotalOrders)
	assert.Equal(t, "8.50", sum.TotalSales)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, Options{Health: func(context.Context) error { return nil }})
	w, _ := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	f = newFixture(t, Options{Health: func(context.Context) error { return errors.New("db down") }})
	w, _ = f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRequestMetricsUseRoutePattern(t *testing.T) {
	f := newFixture(t, Options{})
	f.do(t, http.MethodGet, "/api/v1/books/3", "")
	f.do(t, http.MethodGet, "/api/v1/books/4", "")
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Requests.WithLabelValues("/api/v1/books/{bookId}", "200")))
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t, Options{})
	w, resp := f.do(t, http.MethodGet, "/api/v1/nothing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", resp.Error)
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
