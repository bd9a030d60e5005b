package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/frahmantamala/factory-console/internal/access"
	"github.com/frahmantamala/factory-console/internal/gatelog"
	"github.com/frahmantamala/factory-console/internal/identity"
	"github.com/frahmantamala/factory-console/internal/transport/middleware"
	"github.com/frahmantamala/factory-console/internal/transport/swagger"
)

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, identityHandler *identity.Handler, accessHandler *access.Handler, gateHandler *gatelog.Handler, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.CORS)
	router.Use(middleware.RequestID)
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		r.Route("/auth", func(sr chi.Router) {
			sr.Post("/login", identityHandler.Login)
			sr.Post("/logout", identityHandler.Logout)
			sr.Get("/session", identityHandler.GetSession)
		})

		// Everything past this point needs a valid bearer token.
		r.Group(func(pr chi.Router) {
			pr.Use(identityHandler.AuthMiddleware)

			pr.Get("/segments", accessHandler.ListSegments)
			pr.Get("/segments/check", accessHandler.CheckAccess)

			// Personnel registry and approval requests belong to the
			// Master dashboard.
			pr.Group(func(mr chi.Router) {
				mr.Use(access.RequireSegment(access.SegmentMaster))

				mr.Route("/users", func(ur chi.Router) {
					ur.Get("/", identityHandler.ListUsers)
					ur.Post("/", identityHandler.CreateUser)
					ur.Get("/{id}", identityHandler.GetUser)
					ur.Patch("/{id}", identityHandler.UpdateUser)
					ur.Delete("/{id}", identityHandler.DeleteUser)
					ur.Post("/{id}/lock", identityHandler.LockAccess)
					ur.Post("/{id}/unlock", identityHandler.UnlockAccess)
				})

				mr.Route("/requests", func(rr chi.Router) {
					rr.Get("/", identityHandler.ListRequests)
					rr.Post("/", identityHandler.CreateRequest)
					rr.Patch("/{id}", identityHandler.ResolveRequest)
				})
			})

			// Gate log belongs to the Security dashboard.
			pr.Group(func(sr chi.Router) {
				sr.Use(access.RequireSegment(access.SegmentSecurity))

				sr.Route("/gate", func(gr chi.Router) {
					gr.Get("/entries", gateHandler.ListEntries)
					gr.Post("/entries", gateHandler.CreateEntry)
					gr.Get("/entries/{id}", gateHandler.GetEntry)
					gr.Patch("/entries/{id}/exit", gateHandler.MarkExit)
					gr.Put("/entries/{id}/photo", gateHandler.AttachPhoto)
					gr.Get("/autofill", gateHandler.Autofill)
					gr.Get("/stats", gateHandler.GetStats)
				})
			})
		})
	})
}
