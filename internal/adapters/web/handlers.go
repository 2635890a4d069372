package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"invoice-reconciler/internal/app"

	"github.com/go-chi/chi/v5"
)

// Options configure the HTTP transport.
type Options struct {
	// AllowedOrigins is a comma-separated CORS allow list; empty disables CORS.
	AllowedOrigins string
	// JWTSecret enables RequireAuth on the API routes when non-empty.
	JWTSecret string
	// MaxBodyBytes caps request bodies; zero means 1 MB.
	MaxBodyBytes int64
}

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc       app.ApplicationService
	router    chi.Router
	jwtSecret string
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, opts Options) http.Handler {
	h := &Handler{svc: svc, jwtSecret: opts.JWTSecret}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(Recoverer)
	r.Use(CORS(opts.AllowedOrigins))

	// ── Health (public) ───────────────────────────────────────────────────────
	r.Get("/api/health", h.health)

	// ── Protected API routes (401 JSON when a secret is set and the token is bad)
	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Use(RequestBodyLimit(maxBody))

		r.Post("/api/match", h.apiMatch)
		r.Post("/api/companies/{code}/orders/{orderNumber}/reconcile", h.apiReconcileOrder)
		r.Get("/api/companies/{code}/ap-records", h.apiListAPRecords)
		r.Get("/api/companies/{code}/ap-records/{id}", h.apiGetAPRecord)
	})

	h.router = r
	return r
}

// health reports liveness.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status string `json:"status"`
		Auth   bool   `json:"auth"`
	}
	writeJSON(w, response{Status: "ok", Auth: h.jwtSecret != ""})
}

// companyCode extracts the {code} URL parameter.
func companyCode(r *http.Request) string {
	return chi.URLParam(r, "code")
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the size limit set
// by RequestBodyLimit middleware; HTTP 400 for all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}
