package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/rl1809/dapr-shop/internal/adapter/httpmw"
	"github.com/rl1809/dapr-shop/internal/core/service"
)

// Services are the components served over HTTP. Nil components get no routes.
type Services struct {
	Inventory     *service.InventoryService
	Orders        *service.OrderService
	Notifications *service.NotificationService
}

type Options struct {
	ServiceName string
	PubSubName  string

	// ValidateIDs requires UUID-shaped path ids on inventory and order routes
	ValidateIDs bool
}

type HTTPHandler struct {
	inventory     *service.InventoryService
	orders        *service.OrderService
	notifications *service.NotificationService
	logger        *zap.Logger
	validate      *validator.Validate
	opts          Options
	now           func() time.Time
}

func NewHTTPHandler(svcs Services, logger *zap.Logger, opts Options) *HTTPHandler {
	if opts.PubSubName == "" {
		opts.PubSubName = "pubsub"
	}
	return &HTTPHandler{
		inventory:     svcs.Inventory,
		orders:        svcs.Orders,
		notifications: svcs.Notifications,
		logger:        logger,
		validate:      newValidator(),
		opts:          opts,
		now:           time.Now,
	}
}

func (h *HTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(httpmw.RequestID)
	r.Use(httpmw.AccessLog(h.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		if h.inventory != nil {
			r.Get("/inventory", h.ListProducts)
			r.Post("/inventory", h.CreateProduct)
			r.Get("/inventory/alerts/low-stock", h.LowStockProducts)
			r.Get("/inventory/{id}", h.GetProduct)
			r.Put("/inventory/{id}", h.UpdateProduct)
			r.Put("/inventory/{id}/quantity", h.UpdateQuantity)
		}
		if h.orders != nil {
			r.Get("/orders", h.ListOrders)
			r.Post("/orders", h.CreateOrder)
			r.Get("/orders/{id}", h.GetOrder)
			r.Put("/orders/{id}/status", h.UpdateOrderStatus)
		}
		if h.notifications != nil {
			r.Post("/notifications", h.SendNotification)
			r.Get("/notifications/history", h.NotificationHistory)
			r.Get("/notifications/{id}", h.GetNotification)
		}
		r.NotFound(h.apiNotFound)
	})

	if h.notifications != nil {
		r.Route("/dapr", func(r chi.Router) {
			r.Get("/subscribe", h.Subscriptions)
			r.Post("/events/{topic}", h.PushEvent)
			r.Get("/service/health", h.HealthCheck)
		})
	}

	return r
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"service":   h.opts.ServiceName,
		"status":    "healthy",
		"timestamp": h.now().UTC(),
	})
}

func (h *HTTPHandler) apiNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, Response{Success: false, Error: "API endpoint not found"})
}
