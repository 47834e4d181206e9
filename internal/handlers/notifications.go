package handlers

import (
	"errors"
	"net/http"

	"github.com/leadops/crm-api/internal/httpx"
	"github.com/leadops/crm-api/internal/notify"
)

func (s *Server) PostNotificationsEmail(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req notify.Request
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}

	sent, err := s.Notify.Send(r.Context(), req)
	if err != nil {
		var providerErr *notify.ProviderError
		switch {
		case errors.Is(err, notify.ErrNotConfigured):
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "email_not_configured", "Email delivery is not configured", nil)
		case errors.Is(err, notify.ErrTemplateNotFound):
			httpx.WriteError(w, r, http.StatusNotFound, "template_not_found", "Email template not found", nil)
		case errors.Is(err, notify.ErrNoRecipients),
			errors.Is(err, notify.ErrInvalidRecipient),
			errors.Is(err, notify.ErrSubjectRequired),
			errors.Is(err, notify.ErrBodyRequired):
			httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", err.Error(), nil)
		case errors.As(err, &providerErr):
			s.Logger.Warn("email_provider_rejected", "status", providerErr.Status, "error", err)
			httpx.WriteError(w, r, http.StatusBadGateway, "email_provider_error", "Email provider rejected the message", map[string]any{
				"providerStatus": providerErr.Status,
			})
		default:
			s.Logger.Error("email_send_failed", "error", err)
			httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to send email", nil)
		}
		return
	}

	metadata := map[string]any{"recipients": len(req.To), "providerId": sent.ID}
	if req.TemplateName != "" {
		metadata["template"] = req.TemplateName
	}
	if req.TemplateID != nil {
		metadata["templateId"] = req.TemplateID
	}
	s.recordAudit(r, actor, "notifications.email_sent", "email", nil, metadata)
	httpx.WriteJSON(w, http.StatusAccepted, sent)
}
