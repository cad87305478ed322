package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"site-registry/internal/models"
	"site-registry/pkg/database"
	"site-registry/pkg/logging"
	"site-registry/pkg/metrics"
)

// SiteRepository provides data access for the site registry.
// Every GetOrCreate returns the entity and whether this call created it.
type SiteRepository interface {
	// Reference data
	GetOrCreateDepartment(ctx context.Context, name string) (*models.Department, bool, error)
	GetOrCreateCommune(ctx context.Context, name string, departmentID int64) (*models.Commune, bool, error)
	GetOrCreateLocality(ctx context.Context, name string, communeID int64) (*models.Locality, bool, error)
	GetOrCreateLocationType(ctx context.Context, label string) (*models.LocationType, bool, error)
	GetOrCreateOperator(ctx context.Context, name string) (*models.Operator, bool, error)
	GetOrCreateTechnology(ctx context.Context, code string) (*models.Technology, bool, error)

	// Site operations
	UpsertSite(ctx context.Context, site *models.Site) (*models.Site, bool, error)
	SaveSite(ctx context.Context, site *models.Site, technologyIDs []int64) (*models.Site, bool, error)
	GetSiteByName(ctx context.Context, name string) (*models.Site, error)

	// Compliance
	UpsertComplianceReport(ctx context.Context, report *models.ComplianceReport) (*models.ComplianceReport, bool, error)
	GetComplianceReport(ctx context.Context, siteID int64) (*models.ComplianceReport, error)

	// Queries
	ListCommunes(ctx context.Context, departmentIDs []int64) ([]*models.Commune, error)
	ListSites(ctx context.Context, filter SiteFilter) ([]*models.SiteSummary, int, error)
	SearchSites(ctx context.Context, query string, limit int) ([]*models.SiteSummary, error)

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// SiteFilter defines filters for listing sites; empty lists match everything.
// Compliance statuses are OR-ed together; unknown statuses match nothing.
type SiteFilter struct {
	DepartmentIDs []int64
	CommuneIDs    []int64
	OperatorIDs   []int64
	Compliance    []models.ComplianceStatus
	Limit         int
	Offset        int
}

// getOrCreateAttempts bounds the retries when a concurrent insert commits
// between our INSERT and SELECT.
const getOrCreateAttempts = 3

// siteRepository implements SiteRepository on PostgreSQL
type siteRepository struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewSiteRepository creates a new site repository
func NewSiteRepository(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) SiteRepository {
	return &siteRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// getOrCreate runs an insert-or-select statement. The statement inserts with
// ON CONFLICT DO NOTHING and falls back to reading the existing row; when a
// concurrent writer wins the race neither branch sees a row, so we retry.
func (r *siteRepository) getOrCreate(ctx context.Context, queryType, entity, value string, dest interface{}, query string, args ...interface{}) error {
	var err error
	for attempt := 1; attempt <= getOrCreateAttempts; attempt++ {
		err = r.db.GetContext(ctx, queryType, dest, query, args...)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return classifyError("get or create "+entity, entity, value, err)
		}

		r.metrics.RecordDBError("get_or_create_retry")
		r.logger.Debug(ctx, "[REPO_GET_OR_CREATE_RETRY] Concurrent insert detected, retrying", logging.Fields{
			"entity":  entity,
			"value":   value,
			"attempt": attempt,
		})
	}
	return fmt.Errorf("failed to get or create %s %q after %d attempts: %w", entity, value, getOrCreateAttempts, err)
}

// GetOrCreateDepartment returns the department with the given name, creating it if needed
func (r *siteRepository) GetOrCreateDepartment(ctx context.Context, name string) (*models.Department, bool, error) {
	query := `
		WITH ins AS (
			INSERT INTO departments (name) VALUES ($1)
			ON CONFLICT (name) DO NOTHING
			RETURNING id, name, created_at
		)
		SELECT id, name, created_at, true AS created FROM ins
		UNION ALL
		SELECT id, name, created_at, false AS created FROM departments WHERE name = $1
		LIMIT 1
	`

	var row struct {
		models.Department
		Created bool `db:"created"`
	}
	if err := r.getOrCreate(ctx, "get_or_create_department", "department", name, &row, query, name); err != nil {
		return nil, false, err
	}
	return &row.Department, row.Created, nil
}

// GetOrCreateCommune returns the commune (name, department), creating it if needed
func (r *siteRepository) GetOrCreateCommune(ctx context.Context, name string, departmentID int64) (*models.Commune, bool, error) {
	query := `
		WITH ins AS (
			INSERT INTO communes (name, department_id) VALUES ($1, $2)
			ON CONFLICT (name, department_id) DO NOTHING
			RETURNING id, name, department_id, created_at
		)
		SELECT id, name, department_id, created_at, true AS created FROM ins
		UNION ALL
		SELECT id, name, department_id, created_at, false AS created
		FROM communes WHERE name = $1 AND department_id = $2
		LIMIT 1
	`

	var row struct {
		models.Commune
		Created bool `db:"created"`
	}
	if err := r.getOrCreate(ctx, "get_or_create_commune", "commune", name, &row, query, name, departmentID); err != nil {
		return nil, false, err
	}
	return &row.Commune, row.Created, nil
}

// GetOrCreateLocality returns the locality (name, commune), creating it if needed
func (r *siteRepository) GetOrCreateLocality(ctx context.Context, name string, communeID int64) (*models.Locality, bool, error) {
	query := `
		WITH ins AS (
			INSERT INTO localities (name, commune_id) VALUES ($1, $2)
			ON CONFLICT (name, commune_id) DO NOTHING
			RETURNING id, name, commune_id, created_at
		)
		SELECT id, name, commune_id, created_at, true AS created FROM ins
		UNION ALL
		SELECT id, name, commune_id, created_at, false AS created
		FROM localities WHERE name = $1 AND commune_id = $2
		LIMIT 1
	`

	var row struct {
		models.Locality
		Created bool `db:"created"`
	}
	if err := r.getOrCreate(ctx, "get_or_create_locality", "locality", name, &row, query, name, communeID); err != nil {
		return nil, false, err
	}
	return &row.Locality, row.Created, nil
}

// GetOrCreateLocationType returns the location type with the given label, creating it if needed
func (r *siteRepository) GetOrCreateLocationType(ctx context.Context, label string) (*models.LocationType, bool, error) {
	query := `
		WITH ins AS (
			INSERT INTO location_types (label) VALUES ($1)
			ON CONFLICT (label) DO NOTHING
			RETURNING id, label, created_at
		)
		SELECT id, label, created_at, true AS created FROM ins
		UNION ALL
		SELECT id, label, created_at, false AS created FROM location_types WHERE label = $1
		LIMIT 1
	`

	var row struct {
		models.LocationType
		Created bool `db:"created"`
	}
	if err := r.getOrCreate(ctx, "get_or_create_location_type", "location_type", label, &row, query, label); err != nil {
		return nil, false, err
	}
	return &row.LocationType, row.Created, nil
}

// GetOrCreateOperator returns the operator with the given name, creating it if needed
func (r *siteRepository) GetOrCreateOperator(ctx context.Context, name string) (*models.Operator, bool, error) {
	query := `
		WITH ins AS (
			INSERT INTO operators (name) VALUES ($1)
			ON CONFLICT (name) DO NOTHING
			RETURNING id, name, color, created_at
		)
		SELECT id, name, color, created_at, true AS created FROM ins
		UNION ALL
		SELECT id, name, color, created_at, false AS created FROM operators WHERE name = $1
		LIMIT 1
	`

	var row struct {
		models.Operator
		Created bool `db:"created"`
	}
	if err := r.getOrCreate(ctx, "get_or_create_operator", "operator", name, &row, query, name); err != nil {
		return nil, false, err
	}
	return &row.Operator, row.Created, nil
}

// GetOrCreateTechnology returns the technology with the given catalogue code, creating it if needed
func (r *siteRepository) GetOrCreateTechnology(ctx context.Context, code string) (*models.Technology, bool, error) {
	code = models.NormalizeTechnologyCode(code)
	if !models.IsKnownTechnology(code) {
		return nil, false, &models.ValidationError{
			Field:   "technology",
			Value:   code,
			Message: fmt.Sprintf("unknown technology code: %s", code),
		}
	}

	query := `
		WITH ins AS (
			INSERT INTO technologies (code) VALUES ($1)
			ON CONFLICT (code) DO NOTHING
			RETURNING id, code, created_at
		)
		SELECT id, code, created_at, true AS created FROM ins
		UNION ALL
		SELECT id, code, created_at, false AS created FROM technologies WHERE code = $1
		LIMIT 1
	`

	var row struct {
		models.Technology
		Created bool `db:"created"`
	}
	if err := r.getOrCreate(ctx, "get_or_create_technology", "technology", code, &row, query, code); err != nil {
		return nil, false, err
	}
	return &row.Technology, row.Created, nil
}

const siteColumns = `id, name, latitude, longitude, description, commissioning_date, authorization_date,
	pylon_type, antenna_height, camouflage, owner, dossier_number, letter_reference,
	arcep_opinion, observation, operator_id, locality_id, location_type_id, created_at, updated_at`

const upsertSiteQuery = `
	INSERT INTO sites (
		name, latitude, longitude, description, commissioning_date, authorization_date,
		pylon_type, antenna_height, camouflage, owner, dossier_number, letter_reference,
		arcep_opinion, observation, operator_id, locality_id, location_type_id
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	ON CONFLICT (name) DO UPDATE SET
		latitude = COALESCE(EXCLUDED.latitude, sites.latitude),
		longitude = COALESCE(EXCLUDED.longitude, sites.longitude),
		description = COALESCE(EXCLUDED.description, sites.description),
		commissioning_date = COALESCE(EXCLUDED.commissioning_date, sites.commissioning_date),
		authorization_date = COALESCE(EXCLUDED.authorization_date, sites.authorization_date),
		pylon_type = COALESCE(EXCLUDED.pylon_type, sites.pylon_type),
		antenna_height = COALESCE(EXCLUDED.antenna_height, sites.antenna_height),
		camouflage = EXCLUDED.camouflage,
		owner = COALESCE(EXCLUDED.owner, sites.owner),
		dossier_number = COALESCE(EXCLUDED.dossier_number, sites.dossier_number),
		letter_reference = COALESCE(EXCLUDED.letter_reference, sites.letter_reference),
		arcep_opinion = COALESCE(EXCLUDED.arcep_opinion, sites.arcep_opinion),
		observation = COALESCE(EXCLUDED.observation, sites.observation),
		operator_id = EXCLUDED.operator_id,
		locality_id = COALESCE(EXCLUDED.locality_id, sites.locality_id),
		location_type_id = COALESCE(EXCLUDED.location_type_id, sites.location_type_id),
		updated_at = NOW()
	RETURNING ` + siteColumns + `, (xmax = 0) AS created
`

const attachTechnologyQuery = `
	INSERT INTO site_technologies (site_id, technology_id)
	VALUES ($1, $2)
	ON CONFLICT (site_id, technology_id) DO NOTHING
`

type upsertedSite struct {
	models.Site
	Created bool `db:"created"`
}

func upsertArgs(site *models.Site) []interface{} {
	return []interface{}{
		site.Name,
		site.Latitude,
		site.Longitude,
		site.Description,
		site.CommissioningDate,
		site.AuthorizationDate,
		site.PylonType,
		site.AntennaHeight,
		site.Camouflage,
		site.Owner,
		site.DossierNumber,
		site.LetterReference,
		site.ARCEPOpinion,
		site.Observation,
		site.OperatorID,
		site.LocalityID,
		site.LocationTypeID,
	}
}

// UpsertSite inserts the site or updates the one with the same name. Nil fields
// never overwrite stored values; camouflage and operator are always written.
func (r *siteRepository) UpsertSite(ctx context.Context, site *models.Site) (*models.Site, bool, error) {
	if err := site.Validate(); err != nil {
		return nil, false, err
	}

	var row upsertedSite
	if err := r.db.GetContext(ctx, "upsert_site", &row, upsertSiteQuery, upsertArgs(site)...); err != nil {
		return nil, false, classifyError("upsert site", "site", site.Name, err)
	}

	r.logger.Debug(ctx, "[REPO_UPSERT_SITE] Site written", logging.Fields{
		"site_id":   row.ID,
		"site_name": row.Name,
		"created":   row.Created,
	})

	return &row.Site, row.Created, nil
}

// SaveSite upserts the site and links the given technologies in a single
// transaction. Either every statement commits or none does; links that
// already exist are left alone.
func (r *siteRepository) SaveSite(ctx context.Context, site *models.Site, technologyIDs []int64) (*models.Site, bool, error) {
	if err := site.Validate(); err != nil {
		return nil, false, err
	}

	timer := time.Now()
	defer func() {
		r.metrics.DBQueryDuration.WithLabelValues("save_site").Observe(time.Since(timer).Seconds())
	}()

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to save site %q: %w", site.Name, err)
	}
	defer tx.Rollback()

	var row upsertedSite
	if err := tx.GetContext(ctx, &row, upsertSiteQuery, upsertArgs(site)...); err != nil {
		r.metrics.RecordDBError("transaction_error")
		return nil, false, classifyError("upsert site", "site", site.Name, err)
	}

	for _, technologyID := range technologyIDs {
		if _, err := tx.ExecContext(ctx, attachTechnologyQuery, row.ID, technologyID); err != nil {
			r.metrics.RecordDBError("transaction_error")
			return nil, false, classifyError("attach technology", "site_technology",
				fmt.Sprintf("%d:%d", row.ID, technologyID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		r.metrics.RecordDBError("transaction_commit_error")
		return nil, false, fmt.Errorf("failed to commit site %q: %w", site.Name, err)
	}

	r.logger.Debug(ctx, "[REPO_SAVE_SITE] Site and technologies committed", logging.Fields{
		"site_id":      row.ID,
		"site_name":    row.Name,
		"created":      row.Created,
		"technologies": len(technologyIDs),
	})

	return &row.Site, row.Created, nil
}

// GetSiteByName retrieves a site by its natural key
func (r *siteRepository) GetSiteByName(ctx context.Context, name string) (*models.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites WHERE name = $1`

	var site models.Site
	err := r.db.GetContext(ctx, "get_site_by_name", &site, query, name)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{
			Resource: "site",
			ID:       name,
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get site: %w", err)
	}

	return &site, nil
}

const complianceColumns = `id, site_id, inspection_date, compliant, report_reference, created_at, updated_at`

// UpsertComplianceReport records the latest inspection of a site, replacing
// the previous one. A nil report reference keeps the stored document.
func (r *siteRepository) UpsertComplianceReport(ctx context.Context, report *models.ComplianceReport) (*models.ComplianceReport, bool, error) {
	if err := report.Validate(); err != nil {
		return nil, false, err
	}

	query := `
		INSERT INTO compliance_reports (site_id, inspection_date, compliant, report_reference)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (site_id) DO UPDATE SET
			inspection_date = EXCLUDED.inspection_date,
			compliant = EXCLUDED.compliant,
			report_reference = COALESCE(EXCLUDED.report_reference, compliance_reports.report_reference),
			updated_at = NOW()
		RETURNING ` + complianceColumns + `, (xmax = 0) AS created
	`

	var row struct {
		models.ComplianceReport
		Created bool `db:"created"`
	}
	err := r.db.GetContext(ctx, "upsert_compliance_report", &row, query,
		report.SiteID,
		report.InspectionDate,
		report.Compliant,
		report.ReportReference,
	)
	if err != nil {
		return nil, false, classifyError("upsert compliance report", "compliance_report",
			fmt.Sprint(report.SiteID), err)
	}

	return &row.ComplianceReport, row.Created, nil
}

// GetComplianceReport returns the inspection report of a site
func (r *siteRepository) GetComplianceReport(ctx context.Context, siteID int64) (*models.ComplianceReport, error) {
	query := `SELECT ` + complianceColumns + ` FROM compliance_reports WHERE site_id = $1`

	var report models.ComplianceReport
	err := r.db.GetContext(ctx, "get_compliance_report", &report, query, siteID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Resource: "compliance report", ID: fmt.Sprint(siteID)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get compliance report: %w", err)
	}

	return &report, nil
}

// ListCommunes returns the communes of the given departments ordered by name
func (r *siteRepository) ListCommunes(ctx context.Context, departmentIDs []int64) ([]*models.Commune, error) {
	if len(departmentIDs) == 0 {
		return []*models.Commune{}, nil
	}

	query := `
		SELECT id, name, department_id, created_at
		FROM communes
		WHERE department_id = ANY($1)
		ORDER BY name
	`

	communes := []*models.Commune{}
	err := r.db.SelectContext(ctx, "list_communes", &communes, query, pq.Array(departmentIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list communes: %w", err)
	}

	return communes, nil
}

const summaryQuery = `
	SELECT s.id, s.name, s.description, s.owner, s.latitude, s.longitude,
	       o.name AS operator, o.color AS operator_color,
	       l.name AS locality, c.name AS commune, d.name AS department
	FROM sites s
	JOIN operators o ON o.id = s.operator_id
	LEFT JOIN localities l ON l.id = s.locality_id
	LEFT JOIN communes c ON c.id = l.commune_id
	LEFT JOIN departments d ON d.id = c.department_id
	LEFT JOIN compliance_reports cr ON cr.site_id = s.id
	WHERE 1=1
`

// ListSites retrieves site summaries with filtering and pagination
func (r *siteRepository) ListSites(ctx context.Context, filter SiteFilter) ([]*models.SiteSummary, int, error) {
	query := summaryQuery
	args := []interface{}{}
	argNum := 1

	if len(filter.DepartmentIDs) > 0 {
		query += fmt.Sprintf(" AND c.department_id = ANY($%d)", argNum)
		args = append(args, pq.Array(filter.DepartmentIDs))
		argNum++
	}

	if len(filter.CommuneIDs) > 0 {
		query += fmt.Sprintf(" AND l.commune_id = ANY($%d)", argNum)
		args = append(args, pq.Array(filter.CommuneIDs))
		argNum++
	}

	if len(filter.OperatorIDs) > 0 {
		query += fmt.Sprintf(" AND s.operator_id = ANY($%d)", argNum)
		args = append(args, pq.Array(filter.OperatorIDs))
		argNum++
	}

	if len(filter.Compliance) > 0 {
		query += " AND " + complianceCondition(filter.Compliance)
	}

	// Get total count
	countQuery := "SELECT COUNT(*) FROM (" + query + ") AS count_query"
	var totalCount int
	err := r.db.GetContext(ctx, "count_sites", &totalCount, countQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count sites: %w", err)
	}

	query += " ORDER BY s.name"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	sites := []*models.SiteSummary{}
	err = r.db.SelectContext(ctx, "list_sites", &sites, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list sites: %w", err)
	}

	return sites, totalCount, nil
}

// complianceCondition ORs the SQL predicate of each requested status
func complianceCondition(statuses []models.ComplianceStatus) string {
	conditions := make([]string, 0, len(statuses))
	for _, status := range statuses {
		switch status {
		case models.ComplianceCompliant:
			conditions = append(conditions, "cr.compliant = true")
		case models.ComplianceNonCompliant:
			conditions = append(conditions, "cr.compliant = false")
		case models.ComplianceNoReport:
			conditions = append(conditions, "cr.id IS NULL")
		}
	}
	if len(conditions) == 0 {
		return "false"
	}
	return "(" + strings.Join(conditions, " OR ") + ")"
}

// SearchSites matches the query, case-insensitively, against site name,
// description, owner, operator and every level of the site's place.
func (r *siteRepository) SearchSites(ctx context.Context, query string, limit int) ([]*models.SiteSummary, error) {
	sqlQuery := summaryQuery + `
		AND (
			s.name ILIKE $1 OR s.description ILIKE $1 OR s.owner ILIKE $1 OR
			o.name ILIKE $1 OR l.name ILIKE $1 OR c.name ILIKE $1 OR d.name ILIKE $1
		)
		ORDER BY s.name
		LIMIT $2
	`

	sites := []*models.SiteSummary{}
	err := r.db.SelectContext(ctx, "search_sites", &sites, sqlQuery, containsPattern(query), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search sites: %w", err)
	}

	return sites, nil
}

// containsPattern builds an ILIKE pattern matching text anywhere, with LIKE
// wildcards in the text escaped.
func containsPattern(text string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(text)
	return "%" + escaped + "%"
}

// HealthCheck performs a repository health check
func (r *siteRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

