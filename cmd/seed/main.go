package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/leadops/crm-api/internal/auth"
	"github.com/leadops/crm-api/internal/db"
	"github.com/leadops/crm-api/internal/notify"
	"github.com/leadops/crm-api/internal/settings"
	"github.com/leadops/crm-api/internal/store"
)

var leadSources = []store.LeadSource{
	{Slug: "website", Label: "Website"},
	{Slug: "google_ads", Label: "Google Ads"},
	{Slug: "social_media", Label: "Social media"},
	{Slug: "walk_in", Label: "Walk-in"},
	{Slug: "phone_call", Label: "Phone call"},
	{Slug: "referral", Label: "Referral"},
	{Slug: "email", Label: "Email"},
	{Slug: "whatsapp", Label: "WhatsApp"},
	{Slug: "keyworker", Label: "Keyworker"},
	{Slug: "agent", Label: "Agent"},
	{Slug: "other", Label: "Other"},
}

func main() {
	_ = godotenv.Load()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	pool, err := db.Connect(ctx, databaseURL)
	if err != nil {
		log.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	st := store.NewStore(pool)

	for _, source := range leadSources {
		source.IsActive = true
		if err := st.UpsertLeadSource(ctx, source); err != nil {
			log.Fatalf("upsert lead source %s: %v", source.Slug, err)
		}
	}

	appSettings := map[string]string{
		settings.KeyAcademicYear: envOrDefault("SEED_ACADEMIC_YEAR", "2025/2026"),
		settings.KeyCurrency:     envOrDefault("SEED_CURRENCY", "GBP"),
		settings.KeyBrandName:    envOrDefault("SEED_BRAND_NAME", "Student Lettings"),
		settings.KeyAdminEmail:   envOrDefault("SEED_ADMIN_EMAIL", "admin@local.leadops"),
	}
	for key, value := range appSettings {
		if err := st.UpsertAppSetting(ctx, store.AppSetting{Key: key, Value: value}); err != nil {
			log.Fatalf("upsert setting %s: %v", key, err)
		}
	}

	bodyText := "{{lead_name}} ({{lead_email}}) has {{followup_count}} of {{followups_needed}} follow-ups.\nReason: {{reason}}"
	if _, err := st.UpsertEmailTemplate(ctx, store.UpsertEmailTemplateParams{
		Name:     notify.TemplateClosureException,
		Subject:  "[{{brand_name}}] Closure exception requested for {{lead_name}}",
		BodyHTML: "<p><strong>{{lead_name}}</strong> ({{lead_email}}) has {{followup_count}} of {{followups_needed}} follow-ups.</p><p>Reason: {{reason}}</p><p>Exception: {{exception_id}}</p>",
		BodyText: &bodyText,
	}); err != nil {
		log.Fatalf("upsert email template: %v", err)
	}

	fmt.Printf("Seed completed. sources=%d settings=%d\n", len(leadSources), len(appSettings))

	secret := os.Getenv("AUTH_JWT_SECRET")
	if secret == "" {
		return
	}
	verifier := auth.NewVerifier(secret, os.Getenv("AUTH_JWT_ISSUER"))
	for _, role := range []string{auth.RoleAdmin, auth.RoleAgent} {
		email := fmt.Sprintf("%s@local.leadops", role)
		token, err := verifier.Issue(uuid.New(), email, role, 30*24*time.Hour)
		if err != nil {
			log.Fatalf("issue %s token: %v", role, err)
		}
		fmt.Printf("%s token: %s\n", strings.ToUpper(role[:1])+role[1:], token)
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
