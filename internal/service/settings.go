package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"magiainterna/backend/internal/domain"
	"magiainterna/backend/internal/format"
)

const defaultAuditLimit = 100

var currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)

func (s *Service) GetSettings(ctx context.Context) (domain.Settings, error) {
	return s.repo.GetSettings(ctx)
}

// UpdateSettings stores shop settings. A new time zone is validated here and
// applied on the next start.
func (s *Service) UpdateSettings(ctx context.Context, req domain.SettingsUpdateRequest) (domain.Settings, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Settings{}, err
	}

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.Settings{}, err
	}
	if req.CompanyName != nil {
		settings.CompanyName = strings.TrimSpace(*req.CompanyName)
	}
	if req.CompanyEmail != nil {
		settings.CompanyEmail = strings.ToLower(strings.TrimSpace(*req.CompanyEmail))
	}
	if req.CompanyPhone != nil {
		settings.CompanyPhone = strings.TrimSpace(*req.CompanyPhone)
	}
	if req.CompanyAddress != nil {
		settings.CompanyAddress = strings.TrimSpace(*req.CompanyAddress)
	}
	if req.Currency != nil {
		settings.Currency = strings.ToUpper(strings.TrimSpace(*req.Currency))
	}
	if req.Language != nil {
		settings.Language = strings.ToLower(strings.TrimSpace(*req.Language))
	}
	if req.Timezone != nil {
		settings.Timezone = strings.TrimSpace(*req.Timezone)
	}
	if req.EmailNotifications != nil {
		settings.EmailNotifications = *req.EmailNotifications
	}
	if req.LowStockAlerts != nil {
		settings.LowStockAlerts = *req.LowStockAlerts
	}
	if req.SalesReports != nil {
		settings.SalesReports = *req.SalesReports
	}
	if req.LowStockThreshold != nil {
		settings.LowStockThreshold = *req.LowStockThreshold
	}

	switch {
	case settings.CompanyName == "":
		return domain.Settings{}, invalidf("company name is required")
	case settings.CompanyEmail != "" && !strings.Contains(settings.CompanyEmail, "@"):
		return domain.Settings{}, invalidf("company email is not valid")
	case !currencyCode.MatchString(settings.Currency):
		return domain.Settings{}, invalidf("currency must be a three letter code")
	case settings.Language != "es" && settings.Language != "en":
		return domain.Settings{}, invalidf("language must be es or en")
	case settings.LowStockThreshold < 0:
		return domain.Settings{}, invalidf("low stock threshold must not be negative")
	}
	if _, err := time.LoadLocation(settings.Timezone); err != nil || settings.Timezone == "" {
		return domain.Settings{}, invalidf("unknown time zone %q", settings.Timezone)
	}

	saved, err := s.repo.SaveSettings(ctx, settings)
	if err != nil {
		return domain.Settings{}, err
	}

	s.invalidate(ctx)
	s.logAudit(ctx, "settings_update", "settings", "shop", fmt.Sprintf("threshold=%d,timezone=%s", saved.LowStockThreshold, saved.Timezone))
	return saved, nil
}

// ListAuditLogs returns the entries of one shop-local day, newest first.
func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 || limit > 500 {
		limit = defaultAuditLimit
	}

	day := format.StartOfDay(s.now())
	if strings.TrimSpace(date) != "" {
		parsed, err := format.ParseDate(date)
		if err != nil {
			return nil, invalidf("date: %v", err)
		}
		day = parsed
	}
	return s.repo.ListAuditLogs(ctx, day.UTC(), day.AddDate(0, 0, 1).UTC(), limit)
}
