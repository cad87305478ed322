package services

import (
	"context"
	"strings"

	"site-registry/internal/models"
	"site-registry/internal/repository"
	"site-registry/pkg/logging"
	"site-registry/pkg/metrics"
)

// DefaultSearchLimit caps the number of search results
const DefaultSearchLimit = 50

// SiteService handles registry queries
type SiteService struct {
	repo    repository.SiteRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewSiteService creates a new site service
func NewSiteService(repo repository.SiteRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *SiteService {
	return &SiteService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// ListSites retrieves sites with filtering
func (s *SiteService) ListSites(ctx context.Context, filter repository.SiteFilter) ([]*models.SiteSummary, int, error) {
	return s.repo.ListSites(ctx, filter)
}

// SearchSites returns the sites matching a free-text query; a blank query matches nothing
func (s *SiteService) SearchSites(ctx context.Context, query string) ([]*models.SiteSummary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*models.SiteSummary{}, nil
	}
	return s.repo.SearchSites(ctx, query, DefaultSearchLimit)
}

// ListCommunes returns the communes of the selected departments
func (s *SiteService) ListCommunes(ctx context.Context, departmentIDs []int64) ([]*models.Commune, error) {
	return s.repo.ListCommunes(ctx, departmentIDs)
}

// GetSite retrieves a site by name
func (s *SiteService) GetSite(ctx context.Context, name string) (*models.Site, error) {
	return s.repo.GetSiteByName(ctx, name)
}

// GetCompliance returns the inspection report of the named site
func (s *SiteService) GetCompliance(ctx context.Context, siteName string) (*models.ComplianceReport, error) {
	site, err := s.repo.GetSiteByName(ctx, siteName)
	if err != nil {
		return nil, err
	}
	return s.repo.GetComplianceReport(ctx, site.ID)
}

// RecordCompliance stores the latest inspection of the named site and
// reports whether the site had no report before.
func (s *SiteService) RecordCompliance(ctx context.Context, siteName string, report models.ComplianceReport) (*models.ComplianceReport, bool, error) {
	site, err := s.repo.GetSiteByName(ctx, siteName)
	if err != nil {
		return nil, false, err
	}

	report.SiteID = site.ID
	stored, created, err := s.repo.UpsertComplianceReport(ctx, &report)
	if err != nil {
		return nil, false, err
	}
	if created {
		s.metrics.RecordEntityCreated("compliance_report")
	}

	s.logger.Info(ctx, "[COMPLIANCE_RECORDED] Site inspection recorded", logging.Fields{
		"site_name":       site.Name,
		"inspection_date": stored.InspectionDate.Format("2006-01-02"),
		"status":          string(stored.Status()),
		"created":         created,
	})

	return stored, created, nil
}

// Technologies returns the technology catalogue
func (s *SiteService) Technologies() []models.TechnologyChoice {
	return models.TechnologyChoices
}

// HealthCheck checks the backing store
func (s *SiteService) HealthCheck(ctx context.Context) error {
	return s.repo.HealthCheck(ctx)
}
