package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/tablemaster-pos/engine/internal/handler"
	"github.com/tablemaster-pos/engine/internal/ws"
)

// New assembles the HTTP surface.
func New(h *handler.Handler, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.ListOrders)
		r.Post("/", h.PlaceOrder)
		r.Get("/{id}", h.GetOrder)
		r.Put("/{id}", h.UpdateOrder)
		r.Post("/{id}/status", h.UpdateOrderStatus)
		r.Post("/{id}/print-invoice", h.PrintInvoice)
	})

	r.Post("/printers/{id}/test-print", h.TestPrint)
	r.Post("/kot/flush", h.FlushKOT)

	r.Get("/ws/{channel}", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, w, r)
	})

	return r
}
