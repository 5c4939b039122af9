package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"storefront/pkg/httpx/reply"
	"storefront/pkg/middlewarex"
)

func (s Server) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/with-sold-count", handler(s.getProductsWithSoldCount))
			r.Get("/top-selling", handler(s.getTopSelling))
			r.Get("/sold-count-stats", handler(s.getSoldCountStats))
			r.Get("/cache-stats", handler(s.getCacheStats))
			r.Post("/refresh-sold-count", handler(s.postRefreshSoldCount))
			r.Post("/warm-cache", handler(s.postWarmCache))
			r.Get("/{id}", handler(s.getProduct))
			r.Get("/{id}/sold-count", handler(s.getProductSoldCount))
			r.Post("/{id}/invalidate-cache", handler(s.postInvalidateCache))
		})

		// authorized zone
		r.Route("/cart", func(r chi.Router) {
			r.Use(middlewarex.Auth(s.sessions), middlewarex.CSRF)

			r.Get("/", handler(s.getCart))
			r.Delete("/", handler(s.deleteCart))
			r.Get("/count", handler(s.getCartCount))
			r.Post("/add", handler(s.postCartAdd))
			r.Post("/sync", handler(s.postCartSync))
			r.Post("/quote", handler(s.postCartQuote))
			r.Put("/{variantId}", handler(s.putCartItem))
			r.Delete("/{variantId}", handler(s.deleteCartItem))
		})
	})
}

func handler(f func(http.ResponseWriter, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := f(w, r); err != nil {
			reply.Error(r.Context(), w, err)
		}
	}
}
