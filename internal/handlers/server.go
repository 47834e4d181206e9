package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/leadops/crm-api/internal/audit"
	"github.com/leadops/crm-api/internal/config"
	"github.com/leadops/crm-api/internal/httpx"
	"github.com/leadops/crm-api/internal/leadimport"
	"github.com/leadops/crm-api/internal/leads"
	"github.com/leadops/crm-api/internal/metrics"
	"github.com/leadops/crm-api/internal/middleware"
	"github.com/leadops/crm-api/internal/notify"
	"github.com/leadops/crm-api/internal/reports"
	"github.com/leadops/crm-api/internal/settings"
	"github.com/leadops/crm-api/internal/store"
)

// Store is everything the API reads and writes. *store.Store satisfies it in
// production and storetest.Memory in tests.
type Store interface {
	leads.Store
	leadimport.Store
	leadimport.JobStore
	reports.Store
	notify.TemplateStore
	audit.Writer
	ListLeadImports(ctx context.Context, limit, offset int32) ([]store.LeadImport, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	Config    config.Config
	Settings  settings.Settings
	Store     Store
	Leads     *leads.Service
	Processor *leadimport.Processor
	Reports   *reports.Service
	Notify    *notify.Service
	Audit     *audit.Logger
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	DB        Pinger
}

// NewServer wires the services over one store. sender may be nil when email
// delivery is not configured; db may be nil when there is no pool to ping.
func NewServer(cfg config.Config, s settings.Settings, st Store, sender notify.Sender, m *metrics.Metrics, logger *slog.Logger, db Pinger) *Server {
	return &Server{
		Config:   cfg,
		Settings: s,
		Store:    st,
		Leads:    leads.NewService(st, s.AcademicYear),
		Processor: leadimport.NewProcessor(st, logger, s.AcademicYear,
			leadimport.WithBatchSize(cfg.ImportBatchSize),
			leadimport.WithMetrics(m),
		),
		Reports: reports.NewService(st, s.Currency, time.Minute),
		Notify:  notify.NewService(st, sender, cfg.EmailFrom, s, m, logger),
		Audit:   audit.NewLogger(st, logger),
		Metrics: m,
		Logger:  logger,
		DB:      db,
	}
}

func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	if s.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.DB.Ping(ctx); err != nil {
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "database_unavailable", "Database is not reachable", nil)
			return
		}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) GetSettings(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, s.Settings)
}

func requireActor(w http.ResponseWriter, r *http.Request) (middleware.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok || actor.UserID == uuid.Nil {
		httpx.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
		return middleware.Actor{}, false
	}
	return actor, true
}

func (s *Server) recordAudit(r *http.Request, actor middleware.Actor, action, entityType string, entityID *uuid.UUID, metadata map[string]any) {
	userID := actor.UserID
	s.Audit.Record(r.Context(), audit.Entry{
		UserID:     &userID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		RequestID:  middleware.RequestIDFromContext(r.Context()),
		Metadata:   metadata,
	})
}

// writeNotFoundOr maps a missing row to 404 and anything else to 500.
func writeNotFoundOr(w http.ResponseWriter, r *http.Request, err error, code, notFound, failed string) {
	if errors.Is(err, pgx.ErrNoRows) {
		httpx.WriteError(w, r, http.StatusNotFound, code, notFound, nil)
		return
	}
	httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", failed, nil)
}

// pageParams reads limit and offset, clamping limit to maxLimit.
func pageParams(r *http.Request, def, maxLimit int) (int32, int32, error) {
	limit, offset := def, 0
	q := r.URL.Query()
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return 0, 0, errors.New("limit must be a positive integer")
		}
		limit = min(v, maxLimit)
	}
	if raw := q.Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return 0, 0, errors.New("offset must be greater than or equal to 0")
		}
		offset = v
	}
	return int32(limit), int32(offset), nil
}

func ptr[T any](v T) *T {
	return &v
}
