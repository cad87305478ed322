package repository

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"site-registry/internal/models"
)

type communeKey struct {
	name         string
	departmentID int64
}

type localityKey struct {
	name      string
	communeID int64
}

var _ SiteRepository = (*MemoryRepository)(nil)

// MemoryRepository is a SiteRepository held in process memory. It enforces
// the same natural keys as the SQL schema and backs dry-run imports.
type MemoryRepository struct {
	mu     sync.RWMutex
	nextID int64

	departments   map[string]*models.Department
	communes      map[communeKey]*models.Commune
	localities    map[localityKey]*models.Locality
	locationTypes map[string]*models.LocationType
	operators     map[string]*models.Operator
	technologies  map[string]*models.Technology
	sites         map[string]*models.Site
	siteTechs     map[int64]map[int64]bool
	compliance    map[int64]*models.ComplianceReport
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		departments:   make(map[string]*models.Department),
		communes:      make(map[communeKey]*models.Commune),
		localities:    make(map[localityKey]*models.Locality),
		locationTypes: make(map[string]*models.LocationType),
		operators:     make(map[string]*models.Operator),
		technologies:  make(map[string]*models.Technology),
		sites:         make(map[string]*models.Site),
		siteTechs:     make(map[int64]map[int64]bool),
		compliance:    make(map[int64]*models.ComplianceReport),
	}
}

func (m *MemoryRepository) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemoryRepository) GetOrCreateDepartment(ctx context.Context, name string) (*models.Department, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.departments[name]; ok {
		copied := *d
		return &copied, false, nil
	}
	d := &models.Department{ID: m.id(), Name: name, CreatedAt: time.Now().UTC()}
	m.departments[name] = d
	copied := *d
	return &copied, true, nil
}

func (m *MemoryRepository) GetOrCreateCommune(ctx context.Context, name string, departmentID int64) (*models.Commune, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.hasDepartment(departmentID) {
		return nil, false, &ConflictError{Entity: "commune", Value: name, Constraint: "communes_department_id_fkey"}
	}

	key := communeKey{name: name, departmentID: departmentID}
	if c, ok := m.communes[key]; ok {
		copied := *c
		return &copied, false, nil
	}
	c := &models.Commune{ID: m.id(), Name: name, DepartmentID: departmentID, CreatedAt: time.Now().UTC()}
	m.communes[key] = c
	copied := *c
	return &copied, true, nil
}

func (m *MemoryRepository) GetOrCreateLocality(ctx context.Context, name string, communeID int64) (*models.Locality, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.hasCommune(communeID) {
		return nil, false, &ConflictError{Entity: "locality", Value: name, Constraint: "localities_commune_id_fkey"}
	}

	key := localityKey{name: name, communeID: communeID}
	if l, ok := m.localities[key]; ok {
		copied := *l
		return &copied, false, nil
	}
	l := &models.Locality{ID: m.id(), Name: name, CommuneID: communeID, CreatedAt: time.Now().UTC()}
	m.localities[key] = l
	copied := *l
	return &copied, true, nil
}

func (m *MemoryRepository) GetOrCreateLocationType(ctx context.Context, label string) (*models.LocationType, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if lt, ok := m.locationTypes[label]; ok {
		copied := *lt
		return &copied, false, nil
	}
	lt := &models.LocationType{ID: m.id(), Label: label, CreatedAt: time.Now().UTC()}
	m.locationTypes[label] = lt
	copied := *lt
	return &copied, true, nil
}

func (m *MemoryRepository) GetOrCreateOperator(ctx context.Context, name string) (*models.Operator, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if o, ok := m.operators[name]; ok {
		copied := *o
		return &copied, false, nil
	}
	o := &models.Operator{ID: m.id(), Name: name, CreatedAt: time.Now().UTC()}
	m.operators[name] = o
	copied := *o
	return &copied, true, nil
}

func (m *MemoryRepository) GetOrCreateTechnology(ctx context.Context, code string) (*models.Technology, bool, error) {
	code = models.NormalizeTechnologyCode(code)
	if !models.IsKnownTechnology(code) {
		return nil, false, &models.ValidationError{
			Field:   "technology",
			Value:   code,
			Message: fmt.Sprintf("unknown technology code: %s", code),
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.technologies[code]; ok {
		copied := *t
		return &copied, false, nil
	}
	t := &models.Technology{ID: m.id(), Code: code, CreatedAt: time.Now().UTC()}
	m.technologies[code] = t
	copied := *t
	return &copied, true, nil
}

// UpsertSite follows the SQL upsert: nil fields keep the stored value,
// camouflage and operator are always overwritten.
func (m *MemoryRepository) UpsertSite(ctx context.Context, site *models.Site) (*models.Site, bool, error) {
	return m.SaveSite(ctx, site, nil)
}

// SaveSite upserts the site and links the technologies under one lock.
// Every reference is checked before the first write.
func (m *MemoryRepository) SaveSite(ctx context.Context, site *models.Site, technologyIDs []int64) (*models.Site, bool, error) {
	if err := site.Validate(); err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.hasOperator(site.OperatorID) {
		return nil, false, &ConflictError{Entity: "site", Value: site.Name, Constraint: "sites_operator_id_fkey"}
	}
	for _, technologyID := range technologyIDs {
		if !m.hasTechnology(technologyID) {
			return nil, false, &ConflictError{
				Entity:     "site_technology",
				Value:      fmt.Sprintf("%s:%d", site.Name, technologyID),
				Constraint: "site_technologies_technology_id_fkey",
			}
		}
	}

	now := time.Now().UTC()
	stored, created := m.sites[site.Name], false
	if stored == nil {
		copied := *site
		copied.ID = m.id()
		copied.CreatedAt = now
		stored, created = &copied, true
		m.sites[site.Name] = stored
	} else {
		mergeSite(stored, site)
	}
	stored.UpdatedAt = now

	if len(technologyIDs) > 0 {
		links, ok := m.siteTechs[stored.ID]
		if !ok {
			links = make(map[int64]bool)
			m.siteTechs[stored.ID] = links
		}
		for _, technologyID := range technologyIDs {
			links[technologyID] = true
		}
	}

	copied := *stored
	return &copied, created, nil
}

func mergeSite(dst, src *models.Site) {
	if src.Latitude != nil {
		dst.Latitude = src.Latitude
	}
	if src.Longitude != nil {
		dst.Longitude = src.Longitude
	}
	if src.Description != nil {
		dst.Description = src.Description
	}
	if src.CommissioningDate != nil {
		dst.CommissioningDate = src.CommissioningDate
	}
	if src.AuthorizationDate != nil {
		dst.AuthorizationDate = src.AuthorizationDate
	}
	if src.PylonType != nil {
		dst.PylonType = src.PylonType
	}
	if src.AntennaHeight != nil {
		dst.AntennaHeight = src.AntennaHeight
	}
	if src.Owner != nil {
		dst.Owner = src.Owner
	}
	if src.DossierNumber != nil {
		dst.DossierNumber = src.DossierNumber
	}
	if src.LetterReference != nil {
		dst.LetterReference = src.LetterReference
	}
	if src.ARCEPOpinion != nil {
		dst.ARCEPOpinion = src.ARCEPOpinion
	}
	if src.Observation != nil {
		dst.Observation = src.Observation
	}
	if src.LocalityID != nil {
		dst.LocalityID = src.LocalityID
	}
	if src.LocationTypeID != nil {
		dst.LocationTypeID = src.LocationTypeID
	}
	dst.Camouflage = src.Camouflage
	dst.OperatorID = src.OperatorID
}

// SiteTechnologies returns the codes linked to a site, sorted
func (m *MemoryRepository) SiteTechnologies(siteID int64) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	codes := []string{}
	for _, t := range m.technologies {
		if m.siteTechs[siteID][t.ID] {
			codes = append(codes, t.Code)
		}
	}
	sort.Strings(codes)
	return codes
}

func (m *MemoryRepository) GetSiteByName(ctx context.Context, name string) (*models.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	site, ok := m.sites[name]
	if !ok {
		return nil, &NotFoundError{Resource: "site", ID: name}
	}
	copied := *site
	return &copied, nil
}

func (m *MemoryRepository) UpsertComplianceReport(ctx context.Context, report *models.ComplianceReport) (*models.ComplianceReport, bool, error) {
	if err := report.Validate(); err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.hasSite(report.SiteID) {
		return nil, false, &ConflictError{
			Entity:     "compliance_report",
			Value:      strconv.FormatInt(report.SiteID, 10),
			Constraint: "compliance_reports_site_id_fkey",
		}
	}

	now := time.Now().UTC()
	stored, ok := m.compliance[report.SiteID]
	if !ok {
		copied := *report
		copied.ID = m.id()
		copied.CreatedAt = now
		copied.UpdatedAt = now
		m.compliance[report.SiteID] = &copied
		result := copied
		return &result, true, nil
	}

	stored.InspectionDate = report.InspectionDate
	stored.Compliant = report.Compliant
	if report.ReportReference != nil {
		stored.ReportReference = report.ReportReference
	}
	stored.UpdatedAt = now
	result := *stored
	return &result, false, nil
}

func (m *MemoryRepository) GetComplianceReport(ctx context.Context, siteID int64) (*models.ComplianceReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	report, ok := m.compliance[siteID]
	if !ok {
		return nil, &NotFoundError{Resource: "compliance report", ID: strconv.FormatInt(siteID, 10)}
	}
	copied := *report
	return &copied, nil
}

// SiteCount returns the number of stored sites
func (m *MemoryRepository) SiteCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sites)
}

func (m *MemoryRepository) ListCommunes(ctx context.Context, departmentIDs []int64) ([]*models.Commune, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := idSet(departmentIDs)
	communes := []*models.Commune{}
	for _, c := range m.communes {
		if wanted[c.DepartmentID] {
			copied := *c
			communes = append(communes, &copied)
		}
	}
	sort.Slice(communes, func(i, j int) bool { return communes[i].Name < communes[j].Name })
	return communes, nil
}

func (m *MemoryRepository) ListSites(ctx context.Context, filter SiteFilter) ([]*models.SiteSummary, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	departments, communes, operators := idSet(filter.DepartmentIDs), idSet(filter.CommuneIDs), idSet(filter.OperatorIDs)
	statuses := make(map[models.ComplianceStatus]bool, len(filter.Compliance))
	for _, status := range filter.Compliance {
		statuses[status] = true
	}

	var matched []*models.SiteSummary
	for _, site := range m.sites {
		locality, commune := m.placeOf(site)
		if len(operators) > 0 && !operators[site.OperatorID] {
			continue
		}
		if len(communes) > 0 && (commune == nil || !communes[commune.ID]) {
			continue
		}
		if len(departments) > 0 && (commune == nil || !departments[commune.DepartmentID]) {
			continue
		}
		if len(statuses) > 0 && !statuses[m.compliance[site.ID].Status()] {
			continue
		}
		matched = append(matched, m.summarize(site, locality, commune))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })

	total := len(matched)
	start := min(max(filter.Offset, 0), total)
	end := total
	if filter.Limit > 0 {
		end = min(start+filter.Limit, total)
	}
	return append([]*models.SiteSummary{}, matched[start:end]...), total, nil
}

func (m *MemoryRepository) SearchSites(ctx context.Context, query string, limit int) ([]*models.SiteSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	needle := strings.ToLower(query)
	results := []*models.SiteSummary{}
	for _, site := range m.sites {
		locality, commune := m.placeOf(site)
		summary := m.summarize(site, locality, commune)
		if summaryMatches(summary, needle) {
			results = append(results, summary)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func summaryMatches(s *models.SiteSummary, needle string) bool {
	fields := []*string{&s.Name, s.Description, s.Owner, &s.Operator, s.Locality, s.Commune, s.Department}
	for _, f := range fields {
		if f != nil && strings.Contains(strings.ToLower(*f), needle) {
			return true
		}
	}
	return false
}

func (m *MemoryRepository) HealthCheck(ctx context.Context) error {
	return nil
}

func (m *MemoryRepository) placeOf(site *models.Site) (*models.Locality, *models.Commune) {
	if site.LocalityID == nil {
		return nil, nil
	}
	for _, l := range m.localities {
		if l.ID != *site.LocalityID {
			continue
		}
		for _, c := range m.communes {
			if c.ID == l.CommuneID {
				return l, c
			}
		}
		return l, nil
	}
	return nil, nil
}

func (m *MemoryRepository) summarize(site *models.Site, locality *models.Locality, commune *models.Commune) *models.SiteSummary {
	summary := &models.SiteSummary{
		ID:          site.ID,
		Name:        site.Name,
		Description: site.Description,
		Owner:       site.Owner,
		Latitude:    site.Latitude,
		Longitude:   site.Longitude,
	}
	for _, o := range m.operators {
		if o.ID == site.OperatorID {
			summary.Operator = o.Name
			summary.OperatorColor = o.Color
		}
	}
	if locality != nil {
		summary.Locality = &locality.Name
	}
	if commune != nil {
		summary.Commune = &commune.Name
		for _, d := range m.departments {
			if d.ID == commune.DepartmentID {
				summary.Department = &d.Name
			}
		}
	}
	return summary
}

func (m *MemoryRepository) hasDepartment(id int64) bool {
	for _, d := range m.departments {
		if d.ID == id {
			return true
		}
	}
	return false
}

func (m *MemoryRepository) hasCommune(id int64) bool {
	for _, c := range m.communes {
		if c.ID == id {
			return true
		}
	}
	return false
}

func (m *MemoryRepository) hasOperator(id int64) bool {
	for _, o := range m.operators {
		if o.ID == id {
			return true
		}
	}
	return false
}

func (m *MemoryRepository) hasSite(id int64) bool {
	for _, s := range m.sites {
		if s.ID == id {
			return true
		}
	}
	return false
}

func (m *MemoryRepository) hasTechnology(id int64) bool {
	for _, t := range m.technologies {
		if t.ID == id {
			return true
		}
	}
	return false
}

func idSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
