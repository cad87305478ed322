package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"site-registry/internal/models"
	"site-registry/internal/repository"
	"site-registry/pkg/logging"
	"site-registry/pkg/metrics"
)

var sheetHeaders = []interface{}{
	"Département", "Communes", "Localité", "Opérateur", "ID du site",
	"Latitude du candidat", "Longitude du candidat", "Camouflage",
	"Date autorisation", "Date mise en service", "Emplacement", "Propriétaire site", "Technologies",
}

type fixture struct {
	repo    *repository.MemoryRepository
	service *ImportService
	metrics *metrics.Collector
	logs    *observer.ObservedLogs
}

func newFixture(t *testing.T, repo repository.SiteRepository, opts ImportOptions) *fixture {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	logger := logging.NewWithCore(core, "site-registry", "test")
	collector := metrics.NewCollector("test", prometheus.NewRegistry())

	f := &fixture{metrics: collector, logs: logs}
	if mem, ok := repo.(*repository.MemoryRepository); ok {
		f.repo = mem
	}
	f.service = NewImportService(repo, logger, collector, opts)
	return f
}

func xlsxFile(t *testing.T, rows ...[]interface{}) *bytes.Buffer {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	require.NoError(t, f.SetSheetRow(sheet, "A1", &sheetHeaders))
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func siteRow(name string, overrides map[int]interface{}) []interface{} {
	row := []interface{}{
		"Littoral", "Cotonou", "Akpakpa", "MTN", name,
		"6.3703", "2.4601", "oui",
		"2022-03-15", "", "Toit", "IHS", "GSM-900, LTE-800",
	}
	for i, v := range overrides {
		row[i] = v
	}
	return row
}

func TestImportFile_ThreeRowsTwoErrors(t *testing.T) {
	f := newFixture(t, repository.NewMemoryRepository(), ImportOptions{})

	file := xlsxFile(t,
		siteRow("BEN-LIT-001", nil),
		siteRow("BEN-LIT-002", map[int]interface{}{1: ""}),
		siteRow("BEN-LIT-003", map[int]interface{}{5: 95.0}),
	)

	report, err := f.service.ImportFile(context.Background(), "sites.xlsx", file)
	require.NoError(t, err)

	errs := report.Errors()
	require.Len(t, errs, 2)
	assert.True(t, strings.HasPrefix(errs[0], "Row 2: department, commune and locality are required"), errs[0])
	assert.Equal(t, "Row 3: invalid latitude: 95", errs[1])

	assert.Equal(t, 1, f.repo.SiteCount())
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 2, report.Failed)

	site, err := f.repo.GetSiteByName(context.Background(), "BEN-LIT-001")
	require.NoError(t, err)
	assert.True(t, site.Camouflage)
	assert.Equal(t, "2022-03-15", site.AuthorizationDate.Format("2006-01-02"))
	assert.NotNil(t, site.LocationTypeID)
	assert.Equal(t, []string{"GSM-900", "LTE-800"}, f.repo.SiteTechnologies(site.ID))

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.ImportRowErrorsTotal.WithLabelValues("validation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ImportsTotal.WithLabelValues("partial")))
}

func TestImportFile_IsIdempotent(t *testing.T) {
	f := newFixture(t, repository.NewMemoryRepository(), ImportOptions{})
	ctx := context.Background()

	data := xlsxFile(t,
		siteRow("BEN-LIT-001", nil),
		siteRow("BEN-LIT-002", map[int]interface{}{2: "Cadjehoun"}),
	).Bytes()

	first, err := f.service.ImportFile(ctx, "sites.xlsx", bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)

	second, err := f.service.ImportFile(ctx, "sites.xlsx", bytes.NewReader(data))
	require.NoError(t, err)
	assert.Empty(t, second.Errors())
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 2, second.Updated)
	assert.Equal(t, 2, f.repo.SiteCount())

	communes, err := f.repo.ListCommunes(ctx, []int64{1})
	require.NoError(t, err)
	assert.Len(t, communes, 1, "re-import must not duplicate reference data")

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.EntitiesCreatedTotal.WithLabelValues("department")))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.EntitiesCreatedTotal.WithLabelValues("locality")))
}

func TestImportFile_GeoNamesAreCaseInsensitive(t *testing.T) {
	f := newFixture(t, repository.NewMemoryRepository(), ImportOptions{})

	file := xlsxFile(t,
		siteRow("S1", nil),
		siteRow("S2", map[int]interface{}{0: "LITTORAL", 1: "cotonou", 2: "AKPAKPA"}),
	)

	_, err := f.service.ImportFile(context.Background(), "sites.xlsx", file)
	require.NoError(t, err)

	sites, total, err := f.repo.ListSites(context.Background(), repository.SiteFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, *sites[0].Locality, *sites[1].Locality)
	assert.Equal(t, "akpakpa", *sites[0].Locality)
}

func TestImportFile_UpdateKeepsOmittedValues(t *testing.T) {
	f := newFixture(t, repository.NewMemoryRepository(), ImportOptions{})
	ctx := context.Background()

	_, err := f.service.ImportFile(ctx, "v1.xlsx", xlsxFile(t, siteRow("S1", nil)))
	require.NoError(t, err)

	_, err = f.service.ImportFile(ctx, "v2.xlsx", xlsxFile(t,
		siteRow("S1", map[int]interface{}{5: "", 6: "", 7: "non", 11: "Helios"}),
	))
	require.NoError(t, err)

	site, err := f.repo.GetSiteByName(ctx, "S1")
	require.NoError(t, err)
	require.NotNil(t, site.Latitude)
	assert.Equal(t, 6.3703, *site.Latitude)
	assert.False(t, site.Camouflage)
	assert.Equal(t, "Helios", *site.Owner)
}

func TestImportFile_CamouflageValues(t *testing.T) {
	tests := []struct {
		value interface{}
		want  bool
	}{
		{value: "Oui", want: true},
		{value: "YES", want: true},
		{value: 1, want: true},
		{value: true, want: true},
		{value: "non", want: false},
		{value: "", want: false},
		{value: "peut-être", want: false},
	}

	for i, tt := range tests {
		f := newFixture(t, repository.NewMemoryRepository(), ImportOptions{})
		name := "S" + string(rune('A'+i))

		report, err := f.service.ImportFile(context.Background(), "sites.xlsx",
			xlsxFile(t, siteRow(name, map[int]interface{}{7: tt.value})))
		require.NoError(t, err)
		require.Empty(t, report.Errors())

		site, err := f.repo.GetSiteByName(context.Background(), name)
		require.NoError(t, err)
		assert.Equal(t, tt.want, site.Camouflage, "camouflage %v", tt.value)
	}
}

func TestImportFile_StrictFlags(t *testing.T) {
	f := newFixture(t, repository.NewMemoryRepository(), ImportOptions{StrictFlags: true})

	report, err := f.service.ImportFile(context.Background(), "sites.xlsx",
		xlsxFile(t, siteRow("S1", map[int]interface{}{7: "peut-être"})))
	require.NoError(t, err)
	require.Len(t, report.Errors(), 1)
	assert.Contains(t, report.Errors()[0], "unrecognized camouflage value")
	assert.Equal(t, 0, f.repo.SiteCount())
}

func TestImportFile_Dates(t *testing.T) {
	tests := []struct {
		name    string
		value   interface{}
		want    string
		wantErr bool
	}{
		{name: "native", value: time.Date(2021, 11, 5, 0, 0, 0, 0, time.UTC), want: "2021-11-05"},
		{name: "iso text", value: "2021-11-05", want: "2021-11-05"},
		{name: "day first", value: "03/04/2022", want: "2022-04-03"},
		{name: "month first fallback", value: "12/31/2022", want: "2022-12-31"},
		{name: "invalid", value: "31-31-2022", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, repository.NewMemoryRepository(), ImportOptions{})

			report, err := f.service.ImportFile(context.Background(), "sites.xlsx",
				xlsxFile(t, siteRow("S1", map[int]interface{}{9: tt.value})))
			require.NoError(t, err)

			if tt.wantErr {
				require.Len(t, report.Errors(), 1)
				assert.Contains(t, report.Errors()[0], "Row 1: date_mise_en_service: invalid date format")
				return
			}

			require.Empty(t, report.Errors())
			site, err := f.repo.GetSiteByName(context.Background(), "S1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, site.CommissioningDate.Format("2006-01-02"))
		})
	}
}

func TestImportFile_FallbacksAreObservable(t *testing.T) {
	f := newFixture(t, repository.NewMemoryRepository(), ImportOptions{})

	report, err := f.service.ImportFile(context.Background(), "sites.xlsx",
		xlsxFile(t, siteRow("S1", map[int]interface{}{5: "six", 12: "LTE-800;6G"})))
	require.NoError(t, err)
	assert.Empty(t, report.Errors())

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ImportFallbacksTotal.WithLabelValues("latitude_du_candidat")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ImportFallbacksTotal.WithLabelValues("technologies")))

	fallbacks := f.logs.FilterMessage("[IMPORT_FALLBACK] Value replaced by default").All()
	require.Len(t, fallbacks, 1)
	assert.Equal(t, "six", fallbacks[0].ContextMap()["value"])
}

func TestImportFile_DefaultSiteName(t *testing.T) {
	f := newFixture(t, repository.NewMemoryRepository(), ImportOptions{})

	_, err := f.service.ImportFile(context.Background(), "sites.xlsx",
		xlsxFile(t, siteRow("", nil), siteRow("", map[int]interface{}{2: "Fidjrosse"})))
	require.NoError(t, err)

	for _, name := range []string{"Site_1", "Site_2"} {
		_, err := f.repo.GetSiteByName(context.Background(), name)
		assert.NoError(t, err, name)
	}
}

func TestImportFile_FileErrorsWriteNothing(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  string
	}{
		{name: "corrupt workbook", filename: "sites.xlsx", content: "PK\x03\x04garbage"},
		{name: "unsupported format", filename: "sites.pdf", content: "%PDF-1.4"},
		{name: "empty csv", filename: "sites.csv", content: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, repository.NewMemoryRepository(), ImportOptions{})

			report, err := f.service.ImportFile(context.Background(), tt.filename, strings.NewReader(tt.content))
			assert.Nil(t, report)

			var fileErr *FileError
			require.True(t, errors.As(err, &fileErr), "got %v", err)
			assert.Equal(t, tt.filename, fileErr.Filename)
			assert.Equal(t, 0, f.repo.SiteCount())
			assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ImportsTotal.WithLabelValues("file_error")))
		})
	}
}

func TestImportFile_CSV(t *testing.T) {
	f := newFixture(t, repository.NewMemoryRepository(), ImportOptions{})

	csv := "Département;Communes;Localité;Opérateur;Nom;Latitude;Longitude\n" +
		"Atlantique;Abomey-Calavi;Godomey;MOOV;BEN-ATL-001;6,40;2,33\n" +
		"Atlantique;Abomey-Calavi;Godomey;MOOV;BEN-ATL-002;6.41;2.34\n"

	report, err := f.service.ImportFile(context.Background(), "export.csv", strings.NewReader(csv))
	require.NoError(t, err)
	assert.Empty(t, report.Errors())
	assert.Equal(t, 2, report.Created)

	site, err := f.repo.GetSiteByName(context.Background(), "BEN-ATL-001")
	require.NoError(t, err)
	assert.Nil(t, site.Latitude, "comma decimals fall back to no value")

	site, err = f.repo.GetSiteByName(context.Background(), "BEN-ATL-002")
	require.NoError(t, err)
	assert.Equal(t, 6.41, *site.Latitude)
}

// failingRepo rejects the save of one site name with an integrity conflict
type failingRepo struct {
	*repository.MemoryRepository
	failName string
}

func (r *failingRepo) SaveSite(ctx context.Context, site *models.Site, technologyIDs []int64) (*models.Site, bool, error) {
	if site.Name == r.failName {
		return nil, false, &repository.ConflictError{Entity: "site", Value: site.Name, Constraint: "sites_name_key"}
	}
	return r.MemoryRepository.SaveSite(ctx, site, technologyIDs)
}

// flakyTechnologyRepo loses the connection while resolving technologies
type flakyTechnologyRepo struct {
	*repository.MemoryRepository
}

func (r *flakyTechnologyRepo) GetOrCreateTechnology(ctx context.Context, code string) (*models.Technology, bool, error) {
	return nil, false, errors.New("connection reset")
}

func TestImportFile_TechnologyErrorLeavesNoSite(t *testing.T) {
	mem := repository.NewMemoryRepository()
	f := newFixture(t, &flakyTechnologyRepo{MemoryRepository: mem}, ImportOptions{})

	report, err := f.service.ImportFile(context.Background(), "sites.xlsx", xlsxFile(t, siteRow("S1", nil)))
	require.NoError(t, err)

	assert.Equal(t, []string{"Row 1: connection reset"}, report.Errors())
	assert.Equal(t, 1, report.Failed)
	assert.Zero(t, report.Created)
	assert.Zero(t, mem.SiteCount())
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.EntitiesCreatedTotal.WithLabelValues("site")))
}

func TestImportFile_TechnologiesAreLinked(t *testing.T) {
	f := newFixture(t, repository.NewMemoryRepository(), ImportOptions{})

	report, err := f.service.ImportFile(context.Background(), "sites.xlsx", xlsxFile(t, siteRow("S1", nil)))
	require.NoError(t, err)
	require.Empty(t, report.Errors())

	assert.Equal(t, []string{"GSM-900", "LTE-800"}, f.repo.SiteTechnologies(report.Results[0].SiteID))
}

func TestImportFile_StoreErrorsOnlyFailTheirRow(t *testing.T) {
	mem := repository.NewMemoryRepository()
	f := newFixture(t, &failingRepo{MemoryRepository: mem, failName: "S2"}, ImportOptions{})

	report, err := f.service.ImportFile(context.Background(), "sites.xlsx",
		xlsxFile(t, siteRow("S1", nil), siteRow("S2", nil), siteRow("S3", nil)))
	require.NoError(t, err)

	require.Equal(t, []string{"Row 2: integrity conflict on site (S2): constraint sites_name_key"}, report.Errors())
	assert.Equal(t, 2, mem.SiteCount())
	assert.Equal(t, "conflict", report.Results[1].Err.Kind())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ImportRowErrorsTotal.WithLabelValues("conflict")))
	assert.Len(t, f.logs.FilterMessage("[IMPORT_ROW_ERROR] Row could not be written").All(), 1)
}

func TestImportFile_Cancelled(t *testing.T) {
	f := newFixture(t, repository.NewMemoryRepository(), ImportOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.service.ImportFile(ctx, "sites.xlsx", xlsxFile(t, siteRow("S1", nil)))
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Empty(t, report.Results)
	assert.Equal(t, 0, f.repo.SiteCount())
}

func TestImportFile_IgnoresUnusableHeaders(t *testing.T) {
	f := newFixture(t, repository.NewMemoryRepository(), ImportOptions{})

	csv := "nom,operateur,departement,commune,localite,???\nS1,MTN,Littoral,Cotonou,Akpakpa,x\n"
	report, err := f.service.ImportFile(context.Background(), "sites.csv", strings.NewReader(csv))
	require.NoError(t, err)
	assert.Empty(t, report.Errors())
	assert.Len(t, f.logs.FilterMessage("[IMPORT_HEADER] Column ignored").All(), 1)
}
