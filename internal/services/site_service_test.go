package services

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"site-registry/internal/models"
	"site-registry/internal/repository"
	"site-registry/pkg/logging"
	"site-registry/pkg/metrics"
)

func seedSite(t *testing.T, repo *repository.MemoryRepository, department, commune, operator, name string) *models.Site {
	t.Helper()
	ctx := context.Background()

	dept, _, err := repo.GetOrCreateDepartment(ctx, department)
	require.NoError(t, err)
	com, _, err := repo.GetOrCreateCommune(ctx, commune, dept.ID)
	require.NoError(t, err)
	loc, _, err := repo.GetOrCreateLocality(ctx, "centre", com.ID)
	require.NoError(t, err)
	op, _, err := repo.GetOrCreateOperator(ctx, operator)
	require.NoError(t, err)

	site, _, err := repo.UpsertSite(ctx, &models.Site{Name: name, OperatorID: op.ID, LocalityID: &loc.ID})
	require.NoError(t, err)
	return site
}

func newSiteService(repo repository.SiteRepository) *SiteService {
	return NewSiteService(repo, logging.NewNop(), metrics.NewCollector("test", prometheus.NewRegistry()))
}

func TestSiteService_SearchSites(t *testing.T) {
	repo := repository.NewMemoryRepository()
	seedSite(t, repo, "littoral", "cotonou", "MTN", "COT-001")
	seedSite(t, repo, "atlantique", "ouidah", "Moov", "OUI-001")
	service := newSiteService(repo)
	ctx := context.Background()

	results, err := service.SearchSites(ctx, "  COTONOU ")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "COT-001", results[0].Name)

	results, err = service.SearchSites(ctx, "   ")
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestSiteService_ListSitesAndCommunes(t *testing.T) {
	repo := repository.NewMemoryRepository()
	seedSite(t, repo, "littoral", "cotonou", "MTN", "COT-001")
	seedSite(t, repo, "littoral", "cotonou", "Moov", "COT-002")
	seedSite(t, repo, "atlantique", "ouidah", "Moov", "OUI-001")
	service := newSiteService(repo)
	ctx := context.Background()

	moov, _, err := repo.GetOrCreateOperator(ctx, "Moov")
	require.NoError(t, err)

	sites, total, err := service.ListSites(ctx, repository.SiteFilter{OperatorIDs: []int64{moov.ID}, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "COT-002", sites[0].Name)
	assert.Equal(t, "OUI-001", sites[1].Name)

	littoral, _, err := repo.GetOrCreateDepartment(ctx, "littoral")
	require.NoError(t, err)
	communes, err := service.ListCommunes(ctx, []int64{littoral.ID})
	require.NoError(t, err)
	require.Len(t, communes, 1)
	assert.Equal(t, "cotonou", communes[0].Name)
}

func TestSiteService_GetSite(t *testing.T) {
	repo := repository.NewMemoryRepository()
	seedSite(t, repo, "littoral", "cotonou", "MTN", "COT-001")
	service := newSiteService(repo)

	site, err := service.GetSite(context.Background(), "COT-001")
	require.NoError(t, err)
	assert.Equal(t, "COT-001", site.Name)

	_, err = service.GetSite(context.Background(), "missing")
	var notFound *repository.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestSiteService_Technologies(t *testing.T) {
	service := newSiteService(repository.NewMemoryRepository())
	choices := service.Technologies()
	assert.Len(t, choices, len(models.TechnologyChoices))
	assert.NoError(t, service.HealthCheck(context.Background()))
}

func TestSiteService_Compliance(t *testing.T) {
	repo := repository.NewMemoryRepository()
	seedSite(t, repo, "littoral", "cotonou", "MTN", "COT-001")
	service := newSiteService(repo)
	ctx := context.Background()

	_, err := service.GetCompliance(ctx, "COT-001")
	var notFound *repository.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "compliance report", notFound.Resource)

	inspected := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	report, created, err := service.RecordCompliance(ctx, "COT-001", models.ComplianceReport{InspectionDate: inspected, Compliant: true})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.ComplianceCompliant, report.Status())

	_, created, err = service.RecordCompliance(ctx, "COT-001", models.ComplianceReport{InspectionDate: inspected})
	require.NoError(t, err)
	assert.False(t, created)

	got, err := service.GetCompliance(ctx, "COT-001")
	require.NoError(t, err)
	assert.Equal(t, models.ComplianceNonCompliant, got.Status())

	_, _, err = service.RecordCompliance(ctx, "missing", models.ComplianceReport{InspectionDate: inspected})
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "site", notFound.Resource)
}
