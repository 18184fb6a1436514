package order

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/threadline/shop-backend/internal/modules/auth"
)

// Handler exposes order HTTP endpoints. All routes require authentication;
// status updates are admin-only.
type Handler struct {
	service    Service
	middleware *auth.Middleware
}

func NewHandler(service Service, middleware *auth.Middleware) *Handler {
	return &Handler{service: service, middleware: middleware}
}

func (h *Handler) RegisterRoutes(router *chi.Mux) {
	router.Route("/orders", func(r chi.Router) {
		r.Use(h.middleware.Authenticate)
		r.Post("/", h.createOrder)                                // POST   /orders
		r.Get("/", h.listOrders)                                  // GET    /orders
		r.Get("/{id}", h.getOrder)                                // GET    /orders/{id}
		r.With(auth.RequireAdmin).Patch("/{id}", h.updateStatus)  // PATCH  /orders/{id}
		r.Delete("/{id}", h.cancelOrder)                          // DELETE /orders/{id}
	})
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	o, err := h.service.CreateOrder(r.Context(), identity.UserID.String(), req)
	if err != nil {
		respond(w, createOrderStatus(err), map[string]string{"error": err.Error()})
		return
	}
	respond(w, http.StatusCreated, o)
}

func createOrderStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, ErrOperationAborted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	orders, err := h.service.ListOrders(r.Context(), identity.UserID.String(), identity.IsAdmin())
	if err != nil {
		respond(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if orders == nil {
		orders = []*Order{}
	}
	respond(w, http.StatusOK, orders)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	o, err := h.service.GetOrder(r.Context(), chi.URLParam(r, "id"), identity.UserID.String(), identity.IsAdmin())
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, ErrOrderNotFound) {
			code = http.StatusNotFound
		}
		respond(w, code, map[string]string{"error": err.Error()})
		return
	}
	respond(w, http.StatusOK, o)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	o, err := h.service.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, ErrOrderNotFound) {
			code = http.StatusNotFound
		} else if errors.Is(err, ErrInvalidTransition) {
			code = http.StatusUnprocessableEntity
		}
		respond(w, code, map[string]string{"error": err.Error()})
		return
	}
	respond(w, http.StatusOK, o)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.service.CancelOrder(r.Context(), chi.URLParam(r, "id")); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, ErrOrderNotFound) {
			code = http.StatusNotFound
		}
		respond(w, code, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
