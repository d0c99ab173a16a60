package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/monlaf-sfk/battle-stack-sub001/internal/hub"
	"github.com/monlaf-sfk/battle-stack-sub001/internal/ws"
)

func SetupRoutes(a *API, h *hub.Hub, wsOpts ws.Options, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Public routes
	r.Get("/healthz", Healthz)

	r.Route("/api/v1", func(r chi.Router) {
		// The browser websocket API cannot set headers, so the ws
		// route sits outside the bearer check.
		r.Get("/duels/ws/{duelID}/{userID}", ws.Handler(h, log, wsOpts))

		r.Group(func(r chi.Router) {
			r.Use(requireBearer)

			r.Post("/duels", a.CreateDuel)
			r.Get("/duels/{duelID}", a.GetDuel)
			r.Post("/duels/{duelID}/test", a.TestCode)
			r.Post("/duels/{duelID}/submit", a.SubmitCode)

			r.Get("/dashboard/stats", a.DashboardStats)

			r.Get("/problems/{problemID}", a.GetProblem)

			r.Route("/admin/problems", func(r chi.Router) {
				r.Get("/", a.ListProblems)
				r.Post("/", a.CreateProblem)
				r.Put("/{problemID}", a.UpdateProblem)
			})
		})
	})

	return r
}

// requireBearer only checks that a bearer token is present; validating it
// against an identity provider is someone else's job.
func requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || len(auth) <= len("Bearer ") {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
