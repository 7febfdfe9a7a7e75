package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/expo-checkout/internal/observability"
)

func SetupRouter(h *Handlers, logger observability.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(MetricsMiddleware)
	r.Use(TracingMiddleware)
	r.Use(IdentityMiddleware)

	r.Get("/v1/tickets", h.ListTickets)
	r.Get("/v1/booths", h.ListBooths)

	r.Group(func(r chi.Router) {
		r.Use(NoStoreMiddleware)

		r.Get("/v1/cart", h.ViewCart)
		r.Post("/v1/cart/items", h.AddToCart)
		r.Post("/v1/cart/items/{index}/{op}", h.UpdateCartQuantity)
		r.Delete("/v1/cart/items/{index}", h.RemoveFromCart)
		r.Delete("/v1/cart", h.EmptyCart)

		r.Get("/v1/checkout", h.BeginCheckout)
		r.Post("/v1/checkout", h.SubmitCheckout)
	})

	r.Post("/v1/booths/{id}/reservation", h.ReserveBooth)
	r.Delete("/v1/booths/{id}/reservation", h.CancelBoothReservation)

	r.Post("/v1/events/{id}/registration", h.RegisterForEvent)
	r.Delete("/v1/events/{id}/registration", h.CancelEventRegistration)

	r.Get("/v1/me/purchases", h.MyPurchases)
	r.Get("/v1/me/transactions", h.MyTransactions)
	r.Get("/v1/me/registrations", h.MyRegistrations)

	r.Get("/v1/admin/sales", h.SalesStats)
	r.Get("/v1/admin/transactions/suspicious", h.SuspiciousTransactions)
	r.Get("/v1/admin/transactions/daily", h.DailyTransactionStats)
	r.Get("/v1/admin/events/{id}/participants", h.EventParticipants)
	r.Delete("/v1/admin/events/{id}/registrations/{userID}", h.HardDeleteRegistration)

	r.Post("/v1/login", h.Login)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
