// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

// Package api exposes the sync queue over HTTP using the Chi router.
//
// Every response uses the models.APIResponse envelope.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router wires handlers and middleware.
type Router struct {
	handler    *Handler
	middleware *Middleware
}

// NewRouter creates a Router.
func NewRouter(handler *Handler, middleware *Middleware) *Router {
	if middleware == nil {
		middleware = NewMiddleware(nil)
	}
	return &Router{handler: handler, middleware: middleware}
}

// Setup configures all HTTP routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.middleware.CORS())

	// Status endpoints are not rate limited so health checks never fail on load.
	r.Route("/api/v1/status", func(r chi.Router) {
		r.Get("/live", router.handler.Live)
		r.Get("/ready", router.handler.Ready)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.middleware.RateLimit())
		r.Use(PrometheusMetrics)

		r.Route("/sync", func(r chi.Router) {
			r.Post("/jobs", router.handler.EnqueueSync)
			r.Get("/jobs", router.handler.ListJobs)
			r.Get("/jobs/{id}", router.handler.GetJob)
			r.Post("/process", router.handler.ProcessQueue)
		})

		r.Get("/health/providers", router.handler.ProviderHealth)

		r.Route("/rotation/{user_id}", func(r chi.Router) {
			r.Put("/", router.handler.UpdateRotation)
			r.Post("/schedule", router.handler.ScheduleRotation)
		})

		r.Post("/ingest", router.handler.Ingest)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
