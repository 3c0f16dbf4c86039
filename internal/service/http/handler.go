// Package httpsvc публикует операции заказов через REST API.
package httpsvc

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/epiccart/internal/auth"
	"github.com/vladislavdragonenkov/epiccart/internal/domain"
	"github.com/vladislavdragonenkov/epiccart/internal/metrics"
	"github.com/vladislavdragonenkov/epiccart/internal/service/orders"
)

// OrderService описывает операции заказов, которые нужны REST-слою.
type OrderService interface {
	Create(ctx context.Context, in orders.CreateOrderInput) (domain.Order, error)
	Get(ctx context.Context, orderID string) (domain.Order, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.Order, error)
	List(ctx context.Context, limit int) ([]domain.Order, error)
	Pay(ctx context.Context, orderID string, result domain.PaymentResult) (domain.Order, error)
	Deliver(ctx context.Context, orderID string) (domain.Order, error)
	Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error)
	CountOrders(ctx context.Context) (int64, error)
	TotalSales(ctx context.Context) (decimal.Decimal, error)
	SalesByDate(ctx context.Context) ([]domain.DailySales, error)
}

// Handler собирает маршруты API заказов.
type Handler struct {
	orders         OrderService
	tokens         *auth.TokenManager
	idempotency    domain.IdempotencyRepository
	metrics        *metrics.HTTPMetrics
	logger         *log.Entry
	paypalClientID string
	allowedOrigins map[string]struct{}
	now            func() time.Time
}

// Option настраивает Handler.
type Option func(*Handler)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithIdempotency включает обработку заголовка Idempotency-Key.
func WithIdempotency(repo domain.IdempotencyRepository) Option {
	return func(h *Handler) { h.idempotency = repo }
}

// WithMetrics включает метрики запросов.
func WithMetrics(m *metrics.HTTPMetrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithPayPalClientID задаёт значение для /api/config/paypal.
func WithPayPalClientID(clientID string) Option {
	return func(h *Handler) { h.paypalClientID = clientID }
}

// WithAllowedOrigins задаёт список origin для CORS. "*" разрешает любой.
func WithAllowedOrigins(origins ...string) Option {
	return func(h *Handler) {
		for _, origin := range origins {
			if origin != "" {
				h.allowedOrigins[origin] = struct{}{}
			}
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler создаёт REST-обработчик.
func NewHandler(svc OrderService, tokens *auth.TokenManager, opts ...Option) *Handler {
	h := &Handler{
		orders:         svc,
		tokens:         tokens,
		logger:         log.WithField("component", "http"),
		allowedOrigins: map[string]struct{}{},
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router возвращает chi-роутер со всеми маршрутами /api.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.observe)
	r.Use(middleware.Recoverer)
	r.Use(h.cors)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, r, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	authenticate := auth.Authenticate(h.tokens, writeFailure)
	adminOnly := auth.RequireAdmin(writeFailure)

	r.Route("/api", func(r chi.Router) {
		r.Get("/config/paypal", h.paypalConfig)

		r.Route("/orders", func(r chi.Router) {
			r.Get("/total-orders", h.countOrders)
			r.Get("/total-sales", h.totalSales)
			r.Get("/total-sales-by-date", h.salesByDate)

			r.Group(func(r chi.Router) {
				r.Use(authenticate)

				r.With(h.idempotent).Post("/", h.createOrder)
				r.Get("/mine", h.listMine)
				r.Get("/{id}", h.getOrder)
				r.Get("/{id}/timeline", h.timeline)
				r.With(h.idempotent).Put("/{id}/pay", h.payOrder)

				r.With(adminOnly).Get("/", h.listOrders)
				r.With(adminOnly).Put("/{id}/deliver", h.deliverOrder)
			})
		})
	})

	return r
}
