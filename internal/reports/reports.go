// Package reports computes the per-academic-year dashboard summary.
package reports

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/leadops/crm-api/internal/leads"
	"github.com/leadops/crm-api/internal/store"
)

type Store interface {
	CountLeadsByStatus(ctx context.Context, academicYear string) ([]store.LabelCount, error)
	CountLeadsBySource(ctx context.Context, academicYear string) ([]store.LabelCount, error)
	CountHotLeads(ctx context.Context, academicYear string) (int64, error)
	SumConvertedRevenue(ctx context.Context, academicYear string) (int64, error)
	CountOverdueFollowups(ctx context.Context, academicYear string, now time.Time) (int64, error)
}

type Summary struct {
	AcademicYear     string           `json:"academicYear"`
	TotalLeads       int64            `json:"totalLeads"`
	ByStatus         map[string]int64 `json:"byStatus"`
	BySource         map[string]int64 `json:"bySource"`
	HotLeads         int64            `json:"hotLeads"`
	ConvertedRevenue int64            `json:"convertedRevenue"`
	Currency         string           `json:"currency"`
	ConversionRate   string           `json:"conversionRate"`
	OverdueFollowups int64            `json:"overdueFollowups"`
	GeneratedAt      time.Time        `json:"generatedAt"`
}

type cacheEntry struct {
	generation uint64
	summary    Summary
	expires    time.Time
}

// Service caches one summary per academic year. Invalidate bumps a
// generation counter so entries computed before a write are never served.
type Service struct {
	store    Store
	currency string
	ttl      time.Duration
	now      func() time.Time

	mu         sync.Mutex
	generation uint64
	cache      map[string]cacheEntry
}

func NewService(s Store, currency string, ttl time.Duration) *Service {
	return &Service{
		store:    s,
		currency: currency,
		ttl:      ttl,
		now:      time.Now,
		cache:    map[string]cacheEntry{},
	}
}

func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	clear(s.cache)
}

func (s *Service) Summary(ctx context.Context, academicYear string) (Summary, error) {
	now := s.now()
	s.mu.Lock()
	generation := s.generation
	if entry, ok := s.cache[academicYear]; ok && entry.generation == generation && now.Before(entry.expires) {
		s.mu.Unlock()
		return entry.summary, nil
	}
	s.mu.Unlock()

	summary, err := s.compute(ctx, academicYear, now)
	if err != nil {
		return Summary{}, err
	}

	s.mu.Lock()
	if s.generation == generation {
		s.cache[academicYear] = cacheEntry{generation: generation, summary: summary, expires: now.Add(s.ttl)}
	}
	s.mu.Unlock()
	return summary, nil
}

func (s *Service) compute(ctx context.Context, academicYear string, now time.Time) (Summary, error) {
	var (
		byStatus, bySource    []store.LabelCount
		hot, revenue, overdue int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		byStatus, err = s.store.CountLeadsByStatus(gctx, academicYear)
		return wrap("count by status", err)
	})
	g.Go(func() error {
		var err error
		bySource, err = s.store.CountLeadsBySource(gctx, academicYear)
		return wrap("count by source", err)
	})
	g.Go(func() error {
		var err error
		hot, err = s.store.CountHotLeads(gctx, academicYear)
		return wrap("count hot leads", err)
	})
	g.Go(func() error {
		var err error
		revenue, err = s.store.SumConvertedRevenue(gctx, academicYear)
		return wrap("sum converted revenue", err)
	})
	g.Go(func() error {
		var err error
		overdue, err = s.store.CountOverdueFollowups(gctx, academicYear, now)
		return wrap("count overdue follow-ups", err)
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	summary := Summary{
		AcademicYear:     academicYear,
		ByStatus:         map[string]int64{},
		BySource:         map[string]int64{},
		HotLeads:         hot,
		ConvertedRevenue: revenue,
		Currency:         s.currency,
		OverdueFollowups: overdue,
		GeneratedAt:      now.UTC(),
	}
	for _, status := range leads.Statuses {
		summary.ByStatus[string(status)] = 0
	}
	for _, c := range byStatus {
		summary.ByStatus[c.Label] = c.Count
		summary.TotalLeads += c.Count
	}
	for _, c := range bySource {
		summary.BySource[c.Label] = c.Count
	}
	summary.ConversionRate = ConversionRate(summary.ByStatus[string(leads.StatusConverted)], summary.TotalLeads)
	return summary, nil
}

// ConversionRate is converted/total as a percentage with one decimal place.
func ConversionRate(converted, total int64) string {
	if total <= 0 {
		return "0.0"
	}
	return decimal.NewFromInt(converted).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(total)).
		StringFixed(1)
}

func wrap(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", what, err)
}
