package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadops/crm-api/internal/settings"
	"github.com/leadops/crm-api/internal/store"
	"github.com/leadops/crm-api/internal/store/storetest"
)

func TestRender(t *testing.T) {
	values := map[string]string{"Lead_Name": "Jane <b>", "room": "Gold"}

	assert.Equal(t, "Hi Jane <b>, Gold is free", Render("Hi {{lead_name}}, {{ room }} is free", values, false))
	assert.Equal(t, "<p>Jane &lt;b&gt;</p>", Render("<p>{{LEAD_NAME}}</p>", values, true))
	assert.Equal(t, "Hello {{missing}}", Render("Hello {{missing}}", values, false))
	assert.Equal(t, "{{lead_name}}", Render("{{lead_name}}", nil, false))
}

func TestResendClientSend(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"email_123"}`))
	}))
	defer srv.Close()

	id, err := NewResendClient(srv.URL+"/", "re_test").Send(context.Background(), Message{
		From:    "Team <noreply@example.com>",
		To:      []string{"jane@example.com"},
		Subject: "Hi",
		Text:    "Body",
	})
	require.NoError(t, err)
	assert.Equal(t, "email_123", id)
	assert.Equal(t, []string{"jane@example.com"}, got.To)
}

func TestResendClientProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"statusCode":422,"name":"validation_error","message":"Invalid from address"}`))
	}))
	defer srv.Close()

	_, err := NewResendClient(srv.URL, "re_test").Send(context.Background(), Message{To: []string{"a@b.co"}})
	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, http.StatusUnprocessableEntity, providerErr.Status)
	assert.Equal(t, "Invalid from address", providerErr.Message)
}

type fakeSender struct {
	sent []Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return "msg-" + msg.Subject, nil
}

func newTestService(mem *storetest.Memory, sender Sender, s settings.Settings) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(mem, sender, "Lettings <noreply@example.com>", s, nil, logger)
}

func TestSendDirectMessage(t *testing.T) {
	sender := &fakeSender{}
	svc := newTestService(storetest.NewMemory(), sender, settings.Settings{BrandName: "Acme Halls"})

	sent, err := svc.Send(context.Background(), Request{
		To:           []string{" jane@example.com ", ""},
		Subject:      "Welcome to {{brand_name}}",
		BodyText:     "Hi {{name}}",
		Placeholders: map[string]string{"name": "Jane"},
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-Welcome to Acme Halls", sent.ID)

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "Lettings <noreply@example.com>", msg.From)
	assert.Equal(t, []string{"jane@example.com"}, msg.To)
	assert.Equal(t, "Hi Jane", msg.Text)
}

func TestSendFromTemplate(t *testing.T) {
	mem := storetest.NewMemory()
	text := "Room: {{room}}"
	tmpl := mem.PutTemplate(store.EmailTemplate{
		Name:     "Viewing Confirmation",
		Subject:  "Your {{room}} viewing",
		BodyHTML: "<p>{{room}}</p>",
		BodyText: &text,
	})
	sender := &fakeSender{}
	svc := newTestService(mem, sender, settings.Settings{})

	_, err := svc.Send(context.Background(), Request{
		To:           []string{"jane@example.com"},
		TemplateID:   &tmpl.ID,
		Subject:      "ignored",
		Placeholders: map[string]string{"room": "Gold & Co"},
	})
	require.NoError(t, err)
	_, err = svc.Send(context.Background(), Request{
		To:           []string{"jane@example.com"},
		TemplateName: "viewing confirmation",
		Placeholders: map[string]string{"room": "Silver"},
	})
	require.NoError(t, err)

	require.Len(t, sender.sent, 2)
	assert.Equal(t, "Your Gold & Co viewing", sender.sent[0].Subject)
	assert.Equal(t, "<p>Gold &amp; Co</p>", sender.sent[0].HTML)
	assert.Equal(t, "Room: Gold & Co", sender.sent[0].Text)
	assert.Equal(t, "Your Silver viewing", sender.sent[1].Subject)
}

func TestSendValidation(t *testing.T) {
	mem := storetest.NewMemory()
	sender := &fakeSender{}
	svc := newTestService(mem, sender, settings.Settings{})
	missing := uuid.New()

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"no recipients", Request{Subject: "x", BodyText: "y"}, ErrNoRecipients},
		{"bad recipient", Request{To: []string{"nope"}, Subject: "x", BodyText: "y"}, ErrInvalidRecipient},
		{"no subject", Request{To: []string{"a@b.co"}, BodyText: "y"}, ErrSubjectRequired},
		{"no body", Request{To: []string{"a@b.co"}, Subject: "x"}, ErrBodyRequired},
		{"unknown template", Request{To: []string{"a@b.co"}, TemplateID: &missing}, ErrTemplateNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Send(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Empty(t, sender.sent)

	_, err := newTestService(mem, nil, settings.Settings{}).Send(context.Background(), Request{To: []string{"a@b.co"}, Subject: "x", BodyText: "y"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSendWrapsProviderFailure(t *testing.T) {
	svc := newTestService(storetest.NewMemory(), &fakeSender{err: errors.New("timeout")}, settings.Settings{})
	_, err := svc.Send(context.Background(), Request{To: []string{"a@b.co"}, Subject: "x", BodyText: "y"})
	assert.ErrorContains(t, err, "deliver email: timeout")
}

func TestClosureExceptionRequested(t *testing.T) {
	lead := store.Lead{FullName: "Jane Doe", Email: "jane@example.com", FollowupCount: 1}
	exception := store.ClosureException{ID: uuid.New(), Reason: "Student withdrew"}

	sender := &fakeSender{}
	svc := newTestService(storetest.NewMemory(), sender, settings.Settings{AdminEmail: "admin@example.com"})
	require.NoError(t, svc.ClosureExceptionRequested(context.Background(), lead, exception))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, []string{"admin@example.com"}, sender.sent[0].To)
	assert.Equal(t, "Closure exception requested for Jane Doe", sender.sent[0].Subject)
	assert.Contains(t, sender.sent[0].Text, "1 of 3 follow-ups")
	assert.Contains(t, sender.sent[0].Text, "Student withdrew")

	mem := storetest.NewMemory()
	mem.PutTemplate(store.EmailTemplate{Name: TemplateClosureException, Subject: "Review {{lead_name}}", BodyHTML: "<p>{{reason}}</p>"})
	sender = &fakeSender{}
	svc = newTestService(mem, sender, settings.Settings{AdminEmail: "admin@example.com"})
	require.NoError(t, svc.ClosureExceptionRequested(context.Background(), lead, exception))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Review Jane Doe", sender.sent[0].Subject)

	quiet := newTestService(storetest.NewMemory(), &fakeSender{}, settings.Settings{})
	assert.NoError(t, quiet.ClosureExceptionRequested(context.Background(), lead, exception))
}
