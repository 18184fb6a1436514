package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/threadline/shop-backend/internal/modules/user"
)

// Handler exposes authentication HTTP endpoints.
type Handler struct {
	service     Service
	userService user.Service
	middleware  *Middleware
}

func NewHandler(service Service, userService user.Service, middleware *Middleware) *Handler {
	return &Handler{service: service, userService: userService, middleware: middleware}
}

func (h *Handler) RegisterRoutes(router *chi.Mux) {
	router.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.login)
		r.With(h.middleware.Authenticate).Get("/me", h.me)
	})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			respond(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		respond(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	respond(w, http.StatusOK, result)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	u, err := h.userService.GetUser(r.Context(), identity.UserID.String())
	if err != nil {
		respond(w, http.StatusNotFound, map[string]string{"error": "user not found"})
		return
	}
	respond(w, http.StatusOK, u)
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
