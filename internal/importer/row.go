package importer

import (
	"fmt"
	"strings"

	"site-registry/internal/models"
	"site-registry/internal/tabular"
)

// SiteRow is the typed view of one cleaned spreadsheet row. Text fields are
// nil when the cell was missing; coerced fields keep their cell until parsed.
type SiteRow struct {
	Number int

	Department   *string
	Commune      *string
	Locality     *string
	Operator     *string
	LocationType *string
	SiteName     *string

	ARCEPOpinion    *string
	Observation     *string
	PylonType       *string
	Description     *string
	Owner           *string
	DossierNumber   *string
	LetterReference *string
	Technologies    tabular.Cell

	Latitude          tabular.Cell
	Longitude         tabular.Cell
	AntennaHeight     tabular.Cell
	Camouflage        tabular.Cell
	AuthorizationDate tabular.Cell
	CommissioningDate tabular.Cell
}

// NewSiteRow builds the typed row from a cleaned record
func NewSiteRow(number int, r Record) SiteRow {
	return SiteRow{
		Number: number,

		Department:   text(r.Cell(ColDepartment)),
		Commune:      text(r.Cell(ColCommune)),
		Locality:     text(r.Cell(ColLocality)),
		Operator:     text(r.Cell(ColOperator)),
		LocationType: text(r.Cell(ColLocationType)),
		SiteName:     text(r.Cell(ColSiteName)),

		ARCEPOpinion:    text(r.Cell(ColARCEPOpinion)),
		Observation:     text(r.Cell(ColObservation)),
		PylonType:       text(r.Cell(ColPylonType)),
		Description:     text(r.Cell(ColDescription)),
		Owner:           text(r.Cell(ColOwner)),
		DossierNumber:   text(r.Cell(ColDossierNumber)),
		LetterReference: text(r.Cell(ColLetterReference)),
		Technologies:    r.Cell(ColTechnologies),

		Latitude:          r.Cell(ColLatitude),
		Longitude:         r.Cell(ColLongitude),
		AntennaHeight:     r.Cell(ColAntennaHeight),
		Camouflage:        r.Cell(ColCamouflage),
		AuthorizationDate: r.Cell(ColAuthorizationDate),
		CommissioningDate: r.Cell(ColCommissioningDate),
	}
}

func text(c tabular.Cell) *string {
	if c.IsNull() {
		return nil
	}
	s := c.String()
	return &s
}

// Fallback records a value that was replaced by a permissive default
type Fallback struct {
	Field  string
	Value  string
	Reason string
}

// SiteInput is a row that passed every check and is ready to be resolved
// and written. Site carries no foreign keys yet.
type SiteInput struct {
	Row          int
	Department   string
	Commune      string
	Locality     string
	Operator     string
	LocationType *string
	Technologies []string
	Site         models.Site

	UnknownTechnologies []string
	Fallbacks           []Fallback
}

// Parser validates and coerces a SiteRow without touching the store
type Parser struct {
	DateLayouts []string
	// StrictFlags turns an unrecognized camouflage value into a row error
	StrictFlags bool
}

// Parse runs the row checks in order: place names, operator, coordinates,
// dates, camouflage. The first failure is returned as a *models.ValidationError.
func (p Parser) Parse(row SiteRow) (*SiteInput, error) {
	in := &SiteInput{Row: row.Number}

	department, commune, locality := lowerName(row.Department), lowerName(row.Commune), lowerName(row.Locality)
	if department == "" || commune == "" || locality == "" {
		msg := fmt.Sprintf("department, commune and locality are required (department: %q, commune: %q, locality: %q)",
			department, commune, locality)
		return nil, &models.ValidationError{
			Field:   "locality",
			Value:   fmt.Sprintf("%s/%s/%s", department, commune, locality),
			Message: msg,
		}
	}
	in.Department, in.Commune, in.Locality = department, commune, locality

	if row.Operator == nil {
		return nil, &models.ValidationError{Field: "operator", Message: "operator is required"}
	}
	in.Operator = *row.Operator
	in.LocationType = row.LocationType

	lat, lon, err := ValidateCoordinates(row.Latitude, row.Longitude)
	if err != nil {
		return nil, err
	}
	if !row.Latitude.IsNull() && lat == nil {
		in.fallback(ColLatitude, row.Latitude, "not a number")
	}
	if !row.Longitude.IsNull() && lon == nil {
		in.fallback(ColLongitude, row.Longitude, "not a number")
	}

	layouts := p.DateLayouts
	if len(layouts) == 0 {
		layouts = DefaultDateLayouts
	}
	authorized, err := ParseDate(row.AuthorizationDate, layouts)
	if err != nil {
		return nil, columnError(ColAuthorizationDate, err)
	}
	commissioned, err := ParseDate(row.CommissioningDate, layouts)
	if err != nil {
		return nil, columnError(ColCommissioningDate, err)
	}

	camouflage, recognized := ParseFlag(row.Camouflage)
	if !recognized {
		if p.StrictFlags {
			return nil, &models.ValidationError{
				Field:   ColCamouflage,
				Value:   row.Camouflage.String(),
				Message: fmt.Sprintf("unrecognized camouflage value: %s", row.Camouflage.String()),
			}
		}
		in.fallback(ColCamouflage, row.Camouflage, "unrecognized yes/no value, using false")
	}

	height, ok := ParseNumber(row.AntennaHeight)
	if !ok {
		in.fallback(ColAntennaHeight, row.AntennaHeight, "not a number")
	}

	for _, code := range SplitCodes(row.Technologies) {
		if models.IsKnownTechnology(code) {
			in.Technologies = append(in.Technologies, code)
		} else {
			in.UnknownTechnologies = append(in.UnknownTechnologies, code)
		}
	}

	name := fmt.Sprintf("Site_%d", row.Number)
	if row.SiteName != nil {
		name = *row.SiteName
	}

	in.Site = models.Site{
		Name:              name,
		Latitude:          lat,
		Longitude:         lon,
		Description:       row.Description,
		CommissioningDate: commissioned,
		AuthorizationDate: authorized,
		PylonType:         row.PylonType,
		AntennaHeight:     height,
		Camouflage:        camouflage,
		Owner:             row.Owner,
		DossierNumber:     row.DossierNumber,
		LetterReference:   row.LetterReference,
		ARCEPOpinion:      row.ARCEPOpinion,
		Observation:       row.Observation,
	}

	return in, nil
}

func (in *SiteInput) fallback(field string, c tabular.Cell, reason string) {
	in.Fallbacks = append(in.Fallbacks, Fallback{Field: field, Value: c.String(), Reason: reason})
}

func lowerName(s *string) string {
	if s == nil {
		return ""
	}
	return strings.ToLower(*s)
}

func columnError(column string, err error) error {
	if verr, ok := err.(*models.ValidationError); ok {
		return &models.ValidationError{
			Field:   column,
			Value:   verr.Value,
			Message: fmt.Sprintf("%s: %s", column, verr.Message),
		}
	}
	return fmt.Errorf("%s: %w", column, err)
}
