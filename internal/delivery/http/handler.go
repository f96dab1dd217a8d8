package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/egannguyen/go-bookstore/internal/apperr"
	"github.com/egannguyen/go-bookstore/internal/auth"
	"github.com/egannguyen/go-bookstore/internal/entity"
	"github.com/egannguyen/go-bookstore/internal/idempotency"
	"github.com/egannguyen/go-bookstore/internal/metrics"
	"github.com/egannguyen/go-bookstore/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

// Services are the use cases exposed over HTTP.
type Services struct {
	Checkout  *service.CheckoutService
	Orders    *service.OrderService
	Catalog   *service.CatalogService
	Users     *service.UserService
	Trades    *service.TradeService
	Analytics *service.AnalyticsService
}

// Options configure the cross-cutting behaviour of the router. A nil Auth
// leaves every route open. A nil Idempotency disables replay protection on
// checkout. RateLimitRequests of zero disables rate limiting.
type Options struct {
	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	Auth              *auth.Manager
	Idempotency       idempotency.Store
	Metrics           *metrics.Metrics
	Health            func(ctx context.Context) error
}

// Handler handles HTTP requests for the bookstore.
type Handler struct {
	svc  Services
	opts Options
}

func NewHandler(svc Services, opts Options) *Handler {
	if opts.Metrics == nil {
		opts.Metrics = metrics.Discard()
	}
	return &Handler{svc: svc, opts: opts}
}

// Routes builds the chi router with all middleware applied.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.observe)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", idempotency.Header},
		ExposedHeaders:   []string{"X-Request-ID", "Idempotent-Replayed"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if h.opts.RateLimitRequests > 0 {
		r.Use(httprate.LimitByIP(h.opts.RateLimitRequests, h.opts.RateLimitWindow))
	}

	r.Get("/health", h.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/books", h.listBooks)
		r.Get("/books/latest", h.latestBooks)
		r.Get("/books/{bookId}", h.getBook)

		r.Group(func(r chi.Router) {
			r.Use(h.authenticate())

			r.With(h.idempotent()).Post("/orders/checkout/{userId}", h.checkout)
			r.Get("/orders/{orderId}", h.getOrder)

			r.Get("/users/{userId}", h.getUser)
			r.Patch("/users/{userId}", h.patchUser)
			r.Get("/users/{userId}/trade-requests", h.listRequesterTrades)

			r.Post("/trade-requests", h.requestTrade)
			r.Get("/trade-requests/{id}", h.getTrade)
			r.Put("/trade-requests/{id}/accept", h.acceptTrade)
			r.Put("/trade-requests/{id}/decline", h.declineTrade)
			r.Get("/trade-books/{id}/requests", h.listBookTrades)

			r.Group(func(r chi.Router) {
				r.Use(h.requireRole(entity.RoleAdmin))
				r.Get("/orders", h.listOrders)
				r.Put("/orders/{orderId}/deliver", h.deliverOrder)
				r.Delete("/orders/{orderId}", h.deleteOrder)
				r.Patch("/books/{bookId}", h.patchBook)
				r.Get("/analytics", h.analytics)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, apperr.New(apperr.NotFound, "route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorEnvelope{Error: apperr.InvalidInput, Message: "method not allowed"})
	})
	return r
}

func passthrough(next http.Handler) http.Handler { return next }

func (h *Handler) authenticate() func(http.Handler) http.Handler {
	if h.opts.Auth == nil {
		return passthrough
	}
	return auth.Authenticate(h.opts.Auth, writeError)
}

func (h *Handler) requireRole(roles ...entity.Role) func(http.Handler) http.Handler {
	if h.opts.Auth == nil {
		return passthrough
	}
	return auth.RequireRole(writeError, roles...)
}

func (h *Handler) idempotent() func(http.Handler) http.Handler {
	if h.opts.Idempotency == nil {
		return passthrough
	}
	return idempotency.Middleware(h.opts.Idempotency)
}

// observe logs each request and records it against its route pattern.
func (h *Handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		h.opts.Metrics.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		h.opts.Metrics.LatencyMS.WithLabelValues(route).Observe(float64(elapsed.Milliseconds()))

		slog.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"route", route,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", elapsed.Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.opts.Health != nil {
		if err := h.opts.Health(r.Context()); err != nil {
			slog.Error("Health check failed", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// forbidUnlessSelf rejects clients acting for another user.
func forbidUnlessSelf(r *http.Request, userID int64) error {
	if !auth.CanActAs(r.Context(), userID) {
		return apperr.New(apperr.Forbidden, "cannot act for another user")
	}
	return nil
}

func isAdmin(r *http.Request) bool {
	claims, ok := auth.FromContext(r.Context())
	return !ok || claims.Role == entity.RoleAdmin
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	order, err := h.placeOrder(w, r)
	if err != nil {
		h.opts.Metrics.Checkouts.WithLabelValues(string(apperr.KindOf(err))).Inc()
		writeError(w, r, err)
		return
	}
	h.opts.Metrics.Checkouts.WithLabelValues("placed").Inc()
	writeData(w, http.StatusCreated, "Order placed", newOrderResponse(order))
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) (*entity.Order, error) {
	buyerID, err := pathID(r, "userId")
	if err != nil {
		return nil, err
	}
	if err := forbidUnlessSelf(r, buyerID); err != nil {
		return nil, err
	}
	// An unknown buyer is reported before anything about the body.
	if _, err := h.svc.Users.Get(r.Context(), buyerID); err != nil {
		return nil, err
	}
	var req checkoutRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		return nil, err
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	return h.svc.Checkout.Checkout(r.Context(), req.toService(buyerID))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	orders, err := h.svc.Orders.GetRecentOrders(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]orderResponse, len(orders))
	for i := range orders {
		out[i] = newOrderResponse(&orders[i])
	}
	writeData(w, http.StatusOK, "", out)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "orderId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	order, err := h.svc.Orders.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := forbidUnlessSelf(r, order.BuyerID); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", newOrderResponse(order))
}

func (h *Handler) deliverOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "orderId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	order, err := h.svc.Orders.MarkDelivered(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Order marked as delivered", newOrderResponse(order))
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "orderId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.Orders.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Order deleted", nil)
}

func (h *Handler) listBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.svc.Catalog.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", newBookResponses(books))
}

func (h *Handler) latestBooks(w http.ResponseWriter, r *http.Request) {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	books, err := h.svc.Catalog.Latest(r.Context(), n)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", newBookResponses(books))
}

func (h *Handler) getBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "bookId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	book, err := h.svc.Catalog.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", newBookResponse(*book))
}

func (h *Handler) patchBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "bookId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req bookPatchRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validateStruct(req); err != nil {
		writeError(w, r, err)
		return
	}
	book, err := h.svc.Catalog.Update(r.Context(), id, req.toPatch())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Book updated", newBookResponse(*book))
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := forbidUnlessSelf(r, id); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.svc.Users.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", u)
}

func (h *Handler) patchUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := forbidUnlessSelf(r, id); err != nil {
		writeError(w, r, err)
		return
	}
	var req userPatchRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validateStruct(req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Role != nil && !isAdmin(r) {
		writeError(w, r, apperr.New(apperr.Forbidden, "only admins can change roles"))
		return
	}
	u, err := h.svc.Users.Update(r.Context(), id, req.toPatch())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "User updated", u)
}

func (h *Handler) requestTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequestBody
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validateStruct(req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := forbidUnlessSelf(r, req.UserID); err != nil {
		writeError(w, r, err)
		return
	}
	tr, err := h.svc.Trades.Request(r.Context(), req.toService())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "Trade request sent", tr)
}

func (h *Handler) getTrade(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	tr, err := h.svc.Trades.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", tr)
}

func (h *Handler) acceptTrade(w http.ResponseWriter, r *http.Request) {
	h.resolveTrade(w, r, h.svc.Trades.Accept, "Trade request accepted")
}

func (h *Handler) declineTrade(w http.ResponseWriter, r *http.Request) {
	h.resolveTrade(w, r, h.svc.Trades.Decline, "Trade request declined")
}

func (h *Handler) resolveTrade(
	w http.ResponseWriter,
	r *http.Request,
	resolve func(context.Context, int64) (*entity.TradeRequest, error),
	message string,
) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	current, err := h.svc.Trades.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// Only the listing owner or an admin resolves a request.
	if !auth.CanActAs(r.Context(), current.OwnerID) {
		writeError(w, r, apperr.New(apperr.Forbidden, "only the listing owner can resolve this trade request"))
		return
	}
	tr, err := resolve(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, message, tr)
}

func (h *Handler) listBookTrades(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	reqs, err := h.svc.Trades.ListByTradeBook(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", nonNil(reqs))
}

func (h *Handler) listRequesterTrades(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := forbidUnlessSelf(r, id); err != nil {
		writeError(w, r, err)
		return
	}
	reqs, err := h.svc.Trades.ListByRequester(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", nonNil(reqs))
}

func (h *Handler) analytics(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Analytics.Summary(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", newSummaryResponse(sum))
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
