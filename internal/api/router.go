package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/medikart/order-lifecycle/internal/order"
	"github.com/medikart/order-lifecycle/internal/prescription"
)

type RouterConfig struct {
	Orders        *order.Service
	Prescriptions *prescription.Service
	PgPool        *pgxpool.Pool
	Redis         *redis.Client
	Env           string
	Version       string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", createCartHandler(cfg.Orders))
		r.Get("/", listOrdersHandler(cfg.Orders))
		r.Get("/{id}", getOrderHandler(cfg.Orders))
		r.Post("/{id}/items", addItemHandler(cfg.Orders))
		r.Put("/{id}/items/{itemID}", updateItemHandler(cfg.Orders))
		r.Post("/{id}/checkout", checkoutHandler(cfg.Orders))
		r.Post("/{id}/approve", approveOrderHandler(cfg.Orders))
		r.Post("/{id}/reject", rejectOrderHandler(cfg.Orders))
		r.Post("/{id}/confirm", confirmOrderHandler(cfg.Orders))
		r.Post("/{id}/cancel", cancelOrderHandler(cfg.Orders))
		r.Post("/{id}/ready", advanceOrderHandler(func(req *http.Request, id uuid.UUID) (*order.Order, error) {
			return cfg.Orders.MarkReadyForDelivery(req.Context(), id)
		}))
		r.Post("/{id}/dispatch", advanceOrderHandler(func(req *http.Request, id uuid.UUID) (*order.Order, error) {
			return cfg.Orders.MarkOutForDelivery(req.Context(), id)
		}))
		r.Post("/{id}/delivered", advanceOrderHandler(func(req *http.Request, id uuid.UUID) (*order.Order, error) {
			return cfg.Orders.MarkDelivered(req.Context(), id)
		}))
	})

	r.Route("/prescriptions", func(r chi.Router) {
		r.Post("/", createPrescriptionHandler(cfg.Prescriptions))
		r.Get("/{id}", getPrescriptionHandler(cfg.Prescriptions))
		r.Post("/{id}/review", startReviewHandler(cfg.Prescriptions))
		r.Post("/{id}/verify", verifyPrescriptionHandler(cfg.Prescriptions))
		r.Post("/{id}/reject", rejectPrescriptionHandler(cfg.Prescriptions))
		r.Post("/{id}/forward", forwardPrescriptionHandler(cfg.Prescriptions))
		r.Post("/{id}/refill", refillPrescriptionHandler(cfg.Prescriptions))
	})

	return r
}
