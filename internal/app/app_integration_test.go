package app

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadops/crm-api/internal/auth"
	"github.com/leadops/crm-api/internal/db"
	"github.com/leadops/crm-api/internal/store"
)

func TestIntegrationCloseGate(t *testing.T) {
	env := setupTestEnv(t)
	token := env.token(t, auth.RoleAgent)

	status, body := request(t, env.router, http.MethodPost, "/api/leads", map[string]any{
		"fullName": "Tom Hughes",
		"email":    "tom@example.com",
		"source":   "instagram",
	}, token)
	if status != http.StatusCreated {
		t.Fatalf("create lead: expected 201, got %d: %s", status, body)
	}
	leadID := decodeID(t, body)
	leadPath := "/api/leads/" + leadID.String()

	status, body = request(t, env.router, http.MethodPatch, leadPath+"/status", map[string]any{"status": "closed"}, token)
	if status != http.StatusConflict {
		t.Fatalf("expected 409 before follow-ups, got %d: %s", status, body)
	}

	for i := 0; i < 3; i++ {
		if status, body := request(t, env.router, http.MethodPost, leadPath+"/followups", map[string]any{}, token); status != http.StatusCreated {
			t.Fatalf("record follow-up %d: got %d: %s", i+1, status, body)
		}
	}

	status, body = request(t, env.router, http.MethodPatch, leadPath+"/status", map[string]any{"status": "closed"}, token)
	if status != http.StatusOK {
		t.Fatalf("expected 200 after three follow-ups, got %d: %s", status, body)
	}

	var followups int
	if err := env.pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM lead_followups WHERE lead_id = $1`, leadID).Scan(&followups); err != nil {
		t.Fatalf("count follow-ups: %v", err)
	}
	if followups != 3 {
		t.Fatalf("expected 3 follow-up rows, got %d", followups)
	}
}

func TestIntegrationProcessImport(t *testing.T) {
	env := setupTestEnv(t)
	token := env.token(t, auth.RoleAgent)

	status, body := request(t, env.router, http.MethodPost, "/api/imports", map[string]any{"fileName": "leads.csv", "totalRows": 3}, token)
	if status != http.StatusCreated {
		t.Fatalf("create import job: expected 201, got %d: %s", status, body)
	}
	importID := decodeID(t, body)

	status, body = request(t, env.router, http.MethodPost, "/api/imports/process", map[string]any{
		"importId": importID,
		"rows": []map[string]any{
			{"row_number": 2, "full_name": "Ann", "email": "ann@example.com", "source": "Instagram", "notes": "Wants gold"},
			{"row_number": 3, "full_name": "Ben", "email": "ben@example.com", "lead_status": "Hot lead"},
			{"row_number": 4, "full_name": "Cat", "email": "broken"},
		},
	}, token)
	if status != http.StatusOK {
		t.Fatalf("process import: expected 200, got %d: %s", status, body)
	}
	var result struct {
		SuccessCount int `json:"successCount"`
		FailCount    int `json:"failCount"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.SuccessCount != 2 || result.FailCount != 1 {
		t.Fatalf("expected 2 imported and 1 failed, got %+v", result)
	}

	ctx := context.Background()
	var leads, notes int
	if err := env.pool.QueryRow(ctx, `SELECT COUNT(*) FROM leads WHERE import_id = $1`, importID).Scan(&leads); err != nil {
		t.Fatalf("count leads: %v", err)
	}
	if err := env.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM lead_notes n JOIN leads l ON l.id = n.lead_id
		WHERE l.import_id = $1 AND l.email = 'ann@example.com'
	`, importID).Scan(&notes); err != nil {
		t.Fatalf("count notes: %v", err)
	}
	if leads != 2 || notes != 1 {
		t.Fatalf("expected 2 leads and 1 note on ann, got %d leads and %d notes", leads, notes)
	}

	var jobStatus string
	if err := env.pool.QueryRow(ctx, `SELECT status FROM lead_imports WHERE id = $1`, importID).Scan(&jobStatus); err != nil {
		t.Fatalf("load import job: %v", err)
	}
	if jobStatus != "completed" {
		t.Fatalf("expected completed import job, got %q", jobStatus)
	}

	status, body = request(t, env.router, http.MethodPost, "/api/imports/process", map[string]any{
		"importId": importID,
		"rows":     []map[string]any{{"row_number": 2, "full_name": "Ann", "email": "ann2@example.com"}},
	}, token)
	if status != http.StatusConflict {
		t.Fatalf("reprocess completed job: expected 409, got %d: %s", status, body)
	}
	if err := env.pool.QueryRow(ctx, `SELECT COUNT(*) FROM leads WHERE import_id = $1`, importID).Scan(&leads); err != nil {
		t.Fatalf("recount leads: %v", err)
	}
	if leads != 2 {
		t.Fatalf("expected completed job to keep 2 leads, got %d", leads)
	}

	status, body = request(t, env.router, http.MethodPost, "/api/imports/process", map[string]any{"importId": uuid.New(), "rows": []any{}}, token)
	if status != http.StatusNotFound {
		t.Fatalf("unknown import job: expected 404, got %d: %s", status, body)
	}
}

func TestIntegrationUploadCSV(t *testing.T) {
	env := setupTestEnv(t)
	token := env.token(t, auth.RoleAgent)

	csvData := "Date of Inquiry,Customer Name,Phone Number,Email Address,Lead Source,Notes\n" +
		"14/08/2025,Dana Cole,07700900001,dana@example.com,Website,Viewing booked\n" +
		"15/08/2025,Dana Again,07700900002,DANA@example.com,Website,\n" +
		"16/08/2025,Eli Park,07700900003,eli@example.com,Referral,\n"

	var payload bytes.Buffer
	mw := multipart.NewWriter(&payload)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="leads.csv"`)
	header.Set("Content-Type", "text/csv")
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	_, _ = part.Write([]byte(csvData))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/imports/upload", &payload)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var count int
	if err := env.pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM leads`).Scan(&count); err != nil {
		t.Fatalf("count leads: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected duplicate row to be skipped, got %d leads", count)
	}

	var audits int
	if err := env.pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM audit_logs WHERE action = 'imports.completed'`).Scan(&audits); err != nil {
		t.Fatalf("count audit logs: %v", err)
	}
	if audits != 1 {
		t.Fatalf("expected one imports.completed audit entry, got %d", audits)
	}
}

type testEnv struct {
	routerEnv
	pool *pgxpool.Pool
}

func setupTestEnv(t *testing.T) testEnv {
	t.Helper()
	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.Connect(ctx, databaseURL)
	if err != nil {
		t.Fatalf("connect test db: %v", err)
	}
	t.Cleanup(pool.Close)

	resetSchema(t, ctx, pool)

	st := store.NewStore(pool)
	for _, slug := range []string{"website", "social_media", "referral", "other"} {
		if err := st.UpsertLeadSource(ctx, store.LeadSource{Slug: slug, Label: slug, IsActive: true}); err != nil {
			t.Fatalf("seed lead source: %v", err)
		}
	}

	return testEnv{routerEnv: newRouterEnv(t, st, pool), pool: pool}
}

func resetSchema(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	if _, err := pool.Exec(ctx, `DROP SCHEMA public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("drop schema: %v", err)
	}
	if err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
}

func decodeID(t *testing.T, body []byte) uuid.UUID {
	t.Helper()
	var payload struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode id: %v", err)
	}
	if payload.ID == uuid.Nil {
		t.Fatalf("response has no id: %s", body)
	}
	return payload.ID
}
