package app

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	openapimiddleware "github.com/oapi-codegen/nethttp-middleware"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/leadops/crm-api/internal/auth"
	"github.com/leadops/crm-api/internal/config"
	"github.com/leadops/crm-api/internal/handlers"
	"github.com/leadops/crm-api/internal/httpx"
	"github.com/leadops/crm-api/internal/metrics"
	"github.com/leadops/crm-api/internal/middleware"
)

//go:embed openapi.yaml
var openAPISpec []byte

// LoadSpec parses and validates the embedded API contract.
func LoadSpec(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openAPISpec)
	if err != nil {
		return nil, fmt.Errorf("load openapi spec: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate openapi spec: %w", err)
	}
	return doc, nil
}

func NewRouter(cfg config.Config, h *handlers.Server, verifier *auth.Verifier, logger *slog.Logger, m *metrics.Metrics) (http.Handler, error) {
	doc, err := LoadSpec(context.Background())
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.SecurityHeaders(cfg.Env))
	r.Use(middleware.Logging(logger, m))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(middleware.LimitBodyBytes(cfg.APIMaxBodyBytes,
		middleware.BodyLimitOverride{PathPrefix: "/imports/upload", MaxBytes: cfg.ImportMaxFileBytes + 1<<20},
		middleware.BodyLimitOverride{PathPrefix: "/imports/preview", MaxBytes: cfg.ImportMaxFileBytes + 1<<20},
		middleware.BodyLimitOverride{PathPrefix: "/imports/process", MaxBytes: cfg.ImportMaxFileBytes * 2},
	))

	if cfg.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	validator := openapimiddleware.OapiRequestValidatorWithOptions(doc, &openapimiddleware.Options{
		SilenceServersWarning: true,
		ErrorHandler: func(w http.ResponseWriter, message string, statusCode int) {
			requestID := w.Header().Get("X-Request-Id")
			httpx.WriteJSON(w, statusCode, httpx.ErrorEnvelope{
				Error:     httpx.ErrorBody{Code: "validation_error", Message: message},
				RequestID: requestID,
			})
		},
	})

	authMW := middleware.AuthMiddleware{Verifier: verifier, Logger: logger}
	importLimiter := middleware.NewIPRateLimiterWithMaxEntries(cfg.ImportRateLimit, time.Minute, cfg.RateLimitMaxIPs)
	limitImports := importLimiter.Middleware("Too many import requests, please wait a minute")
	adminOnly := middleware.RequireRole(auth.RoleAdmin)

	api := chi.NewRouter()
	api.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, r, http.StatusNotFound, "not_found", "Route not found", nil)
	})
	api.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", nil)
	})

	api.Group(func(public chi.Router) {
		public.Use(validator)
		public.Get("/health", h.GetHealth)
	})

	api.Group(func(protected chi.Router) {
		protected.Use(authMW.RequireAuth)

		protected.Group(func(jsonAPI chi.Router) {
			jsonAPI.Use(validator)

			jsonAPI.Get("/settings", h.GetSettings)

			jsonAPI.Get("/leads", h.GetLeads)
			jsonAPI.Post("/leads", h.PostLeads)
			jsonAPI.With(adminOnly).Post("/leads/bulk-delete", h.PostLeadsBulkDelete)
			jsonAPI.Get("/leads/{leadId}", withUUID("leadId", h.GetLeadsLeadId))
			jsonAPI.Patch("/leads/{leadId}/status", withUUID("leadId", h.PatchLeadsLeadIdStatus))
			jsonAPI.Post("/leads/{leadId}/followups", withUUID("leadId", h.PostLeadsLeadIdFollowups))
			jsonAPI.Patch("/leads/{leadId}/assignment", withUUID("leadId", h.PatchLeadsLeadIdAssignment))
			jsonAPI.Patch("/leads/{leadId}/hot", withUUID("leadId", h.PatchLeadsLeadIdHot))
			jsonAPI.Get("/leads/{leadId}/notes", withUUID("leadId", h.GetLeadsLeadIdNotes))
			jsonAPI.Post("/leads/{leadId}/notes", withUUID("leadId", h.PostLeadsLeadIdNotes))
			jsonAPI.Post("/leads/{leadId}/closure-exceptions", withUUID("leadId", h.PostLeadsLeadIdClosureExceptions))
			jsonAPI.With(adminOnly).Post("/closure-exceptions/{exceptionId}/review", withUUID("exceptionId", h.PostClosureExceptionsExceptionIdReview))

			jsonAPI.Get("/imports", h.GetImports)
			jsonAPI.Post("/imports", h.PostImports)
			jsonAPI.With(limitImports).Post("/imports/process", h.PostImportsProcess)
			jsonAPI.Get("/imports/{importId}", withUUID("importId", h.GetImportsImportId))

			jsonAPI.Get("/reports/summary", h.GetReportsSummary)
			jsonAPI.Post("/notifications/email", h.PostNotificationsEmail)
		})

		protected.With(limitImports).Post("/imports/preview", h.PostImportsPreview)
		protected.With(limitImports).Post("/imports/upload", h.PostImportsUpload)
		protected.Get("/imports/template.csv", h.GetImportsTemplateCsv)
		protected.Get("/exports/leads.csv", h.GetExportsLeadsCsv)
	})

	r.Mount("/api", api)
	return r, nil
}

func withUUID(param string, fn func(http.ResponseWriter, *http.Request, openapi_types.UUID)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, param))
		if err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", param+" must be a UUID", nil)
			return
		}
		fn(w, r, id)
	}
}
