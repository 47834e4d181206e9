package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/leadops/crm-api/internal/leads"
	"github.com/leadops/crm-api/internal/metrics"
	"github.com/leadops/crm-api/internal/settings"
	"github.com/leadops/crm-api/internal/store"
)

const TemplateClosureException = "closure_exception_requested"

var (
	ErrNotConfigured    = errors.New("email delivery is not configured")
	ErrNoRecipients     = errors.New("at least one recipient is required")
	ErrInvalidRecipient = errors.New("recipient is not a valid email address")
	ErrTemplateNotFound = errors.New("email template not found")
	ErrSubjectRequired  = errors.New("subject is required")
	ErrBodyRequired     = errors.New("an html or text body is required")
)

type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

type TemplateStore interface {
	GetEmailTemplate(ctx context.Context, id uuid.UUID) (store.EmailTemplate, error)
	GetEmailTemplateByName(ctx context.Context, name string) (store.EmailTemplate, error)
}

// Request is either a direct message or a template reference. Template
// fields win when TemplateID or TemplateName is set.
type Request struct {
	To           []string          `json:"to"`
	Subject      string            `json:"subject,omitempty"`
	BodyHTML     string            `json:"bodyHtml,omitempty"`
	BodyText     string            `json:"bodyText,omitempty"`
	TemplateID   *uuid.UUID        `json:"templateId,omitempty"`
	TemplateName string            `json:"templateName,omitempty"`
	Placeholders map[string]string `json:"placeholders,omitempty"`
}

type Sent struct {
	ID string `json:"id"`
}

type Service struct {
	templates TemplateStore
	sender    Sender
	from      string
	settings  settings.Settings
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewService builds the mail service. A nil sender leaves delivery disabled
// and every Send fails with ErrNotConfigured.
func NewService(templates TemplateStore, sender Sender, from string, s settings.Settings, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{templates: templates, sender: sender, from: from, settings: s, metrics: m, logger: logger}
}

func (s *Service) Send(ctx context.Context, req Request) (Sent, error) {
	if s.sender == nil {
		return Sent{}, ErrNotConfigured
	}
	to, err := recipients(req.To)
	if err != nil {
		return Sent{}, err
	}

	msg, err := s.compose(ctx, req)
	if err != nil {
		return Sent{}, err
	}
	msg.From = s.from
	msg.To = to

	id, err := s.sender.Send(ctx, msg)
	s.metrics.EmailSent(err)
	if err != nil {
		return Sent{}, fmt.Errorf("deliver email: %w", err)
	}
	s.logger.Info("email_sent", "provider_id", id, "recipients", len(to))
	return Sent{ID: id}, nil
}

func (s *Service) compose(ctx context.Context, req Request) (Message, error) {
	values := s.settings.Placeholders()
	for key, value := range req.Placeholders {
		values[key] = value
	}

	if req.TemplateID != nil || strings.TrimSpace(req.TemplateName) != "" {
		tmpl, err := s.loadTemplate(ctx, req)
		if err != nil {
			return Message{}, err
		}
		text := ""
		if tmpl.BodyText != nil {
			text = Render(*tmpl.BodyText, values, false)
		}
		return Message{
			Subject: Render(tmpl.Subject, values, false),
			HTML:    Render(tmpl.BodyHTML, values, true),
			Text:    text,
		}, nil
	}

	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		return Message{}, ErrSubjectRequired
	}
	if strings.TrimSpace(req.BodyHTML) == "" && strings.TrimSpace(req.BodyText) == "" {
		return Message{}, ErrBodyRequired
	}
	return Message{
		Subject: Render(subject, values, false),
		HTML:    Render(req.BodyHTML, values, true),
		Text:    Render(req.BodyText, values, false),
	}, nil
}

func (s *Service) loadTemplate(ctx context.Context, req Request) (store.EmailTemplate, error) {
	var (
		tmpl store.EmailTemplate
		err  error
	)
	if req.TemplateID != nil {
		tmpl, err = s.templates.GetEmailTemplate(ctx, *req.TemplateID)
	} else {
		tmpl, err = s.templates.GetEmailTemplateByName(ctx, strings.TrimSpace(req.TemplateName))
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.EmailTemplate{}, ErrTemplateNotFound
	}
	if err != nil {
		return store.EmailTemplate{}, fmt.Errorf("load email template: %w", err)
	}
	return tmpl, nil
}

// ClosureExceptionRequested tells the admin inbox that an agent wants to
// close a lead early. Missing configuration is not an error here.
func (s *Service) ClosureExceptionRequested(ctx context.Context, lead store.Lead, exception store.ClosureException) error {
	admin := strings.TrimSpace(s.settings.AdminEmail)
	if s.sender == nil || admin == "" {
		return nil
	}
	placeholders := map[string]string{
		"lead_name":        lead.FullName,
		"lead_email":       lead.Email,
		"followup_count":   fmt.Sprint(lead.FollowupCount),
		"followups_needed": fmt.Sprint(leads.MinFollowupsToClose),
		"reason":           exception.Reason,
		"exception_id":     exception.ID.String(),
	}

	_, err := s.Send(ctx, Request{To: []string{admin}, TemplateName: TemplateClosureException, Placeholders: placeholders})
	if errors.Is(err, ErrTemplateNotFound) {
		_, err = s.Send(ctx, Request{
			To:           []string{admin},
			Subject:      "Closure exception requested for {{lead_name}}",
			BodyText:     "{{lead_name}} ({{lead_email}}) has {{followup_count}} of {{followups_needed}} follow-ups.\nReason: {{reason}}\nException: {{exception_id}}",
			Placeholders: placeholders,
		})
	}
	return err
}

func recipients(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	for _, addr := range raw {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if !leads.ValidEmail(addr) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidRecipient, addr)
		}
		out = append(out, addr)
	}
	if len(out) == 0 {
		return nil, ErrNoRecipients
	}
	return out, nil
}
