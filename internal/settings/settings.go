// Package settings holds the organisation-wide values that are read once at
// startup and then passed explicitly to the components that need them.
package settings

import (
	"context"
	"fmt"
	"strings"

	"github.com/leadops/crm-api/internal/store"
)

const (
	KeyAcademicYear = "academic_year"
	KeyCurrency     = "currency"
	KeyBrandName    = "brand_name"
	KeyAdminEmail   = "admin_email"
)

type Settings struct {
	AcademicYear string `json:"academicYear"`
	Currency     string `json:"currency"`
	BrandName    string `json:"brandName"`
	AdminEmail   string `json:"-"`
}

type Reader interface {
	ListAppSettings(ctx context.Context) ([]store.AppSetting, error)
}

// Load overlays stored values on top of defaults. Blank stored values keep
// the default.
func Load(ctx context.Context, r Reader, defaults Settings) (Settings, error) {
	rows, err := r.ListAppSettings(ctx)
	if err != nil {
		return Settings{}, fmt.Errorf("load app settings: %w", err)
	}

	out := defaults
	for _, row := range rows {
		value := strings.TrimSpace(row.Value)
		if value == "" {
			continue
		}
		switch row.Key {
		case KeyAcademicYear:
			out.AcademicYear = value
		case KeyCurrency:
			out.Currency = strings.ToUpper(value)
		case KeyBrandName:
			out.BrandName = value
		case KeyAdminEmail:
			out.AdminEmail = value
		}
	}
	return out, nil
}

// Placeholders exposes the settings to email templates.
func (s Settings) Placeholders() map[string]string {
	return map[string]string{
		"brand_name":    s.BrandName,
		"academic_year": s.AcademicYear,
		"currency":      s.Currency,
	}
}
