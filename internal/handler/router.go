package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/openmall/discount-service/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса скидок.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Route("/vouchers", func(r chi.Router) {
			r.Post("/", h.CreateVoucher)
			r.Get("/", h.ListVouchers)

			r.With(custommiddleware.Identity).Get("/available", h.ListAvailableVouchers)

			r.Get("/{id}", h.GetVoucher)
			r.Put("/{id}", h.UpdateVoucher)
			r.Delete("/{id}", h.DeleteVoucher)
		})

		r.Route("/discounts", func(r chi.Router) {
			r.Use(custommiddleware.Identity)

			r.Post("/store", h.ApplyStoreVoucher)
			r.Post("/platform", h.ApplyPlatformVoucher)
		})

		r.Route("/usages", func(r chi.Router) {
			r.With(custommiddleware.Identity).Post("/", h.CommitUsage)

			r.Post("/restore/{orderID}", h.RestoreUsage)
			r.Get("/{orderID}", h.GetUsages)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Put("/{orderID}/status", h.UpdateOrderStatus)
			r.Post("/{orderID}/refund", h.ComputeReturnRefund)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
