package models

import (
	"fmt"
	"strings"
	"time"
)

// Department is the top level of the geographic hierarchy
type Department struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Commune belongs to a Department; (name, department) is unique
type Commune struct {
	ID           int64     `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	DepartmentID int64     `json:"department_id" db:"department_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Locality belongs to a Commune; (name, commune) is unique
type Locality struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CommuneID int64     `json:"commune_id" db:"commune_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Operator is the telecom carrier owning a site
type Operator struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Color     *string   `json:"color,omitempty" db:"color"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// LocationType describes where the equipment is installed (rooftop, ground, ...)
type LocationType struct {
	ID        int64     `json:"id" db:"id"`
	Label     string    `json:"label" db:"label"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Technology is a network technology from the fixed catalogue
type Technology struct {
	ID        int64     `json:"id" db:"id"`
	Code      string    `json:"code" db:"code"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Site is a telecom installation, keyed by its unique name.
// Nil pointer fields are left untouched when an existing site is updated.
type Site struct {
	ID                int64      `json:"id" db:"id"`
	Name              string     `json:"name" db:"name"`
	Latitude          *float64   `json:"latitude,omitempty" db:"latitude"`
	Longitude         *float64   `json:"longitude,omitempty" db:"longitude"`
	Description       *string    `json:"description,omitempty" db:"description"`
	CommissioningDate *time.Time `json:"commissioning_date,omitempty" db:"commissioning_date"`
	AuthorizationDate *time.Time `json:"authorization_date,omitempty" db:"authorization_date"`
	PylonType         *string    `json:"pylon_type,omitempty" db:"pylon_type"`
	AntennaHeight     *float64   `json:"antenna_height,omitempty" db:"antenna_height"`
	Camouflage        bool       `json:"camouflage" db:"camouflage"`
	Owner             *string    `json:"owner,omitempty" db:"owner"`
	DossierNumber     *string    `json:"dossier_number,omitempty" db:"dossier_number"`
	LetterReference   *string    `json:"letter_reference,omitempty" db:"letter_reference"`
	ARCEPOpinion      *string    `json:"arcep_opinion,omitempty" db:"arcep_opinion"`
	Observation       *string    `json:"observation,omitempty" db:"observation"`
	OperatorID        int64      `json:"operator_id" db:"operator_id"`
	LocalityID        *int64     `json:"locality_id,omitempty" db:"locality_id"`
	LocationTypeID    *int64     `json:"location_type_id,omitempty" db:"location_type_id"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// Validate checks the invariants a site must hold before it is written
func (s *Site) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return &ValidationError{Field: "name", Message: "site name is required"}
	}
	if s.OperatorID <= 0 {
		return &ValidationError{Field: "operator", Value: s.Name, Message: "site operator is required"}
	}
	return ValidateCoordinates(s.Latitude, s.Longitude)
}

// ValidateCoordinates requires latitude in [-90, 90] and longitude in [-180, 180]
// when they are present.
func ValidateCoordinates(latitude, longitude *float64) error {
	if latitude != nil && (*latitude < -90 || *latitude > 90) {
		return &ValidationError{
			Field:   "latitude",
			Value:   fmt.Sprint(*latitude),
			Message: fmt.Sprintf("invalid latitude: %v", *latitude),
		}
	}
	if longitude != nil && (*longitude < -180 || *longitude > 180) {
		return &ValidationError{
			Field:   "longitude",
			Value:   fmt.Sprint(*longitude),
			Message: fmt.Sprintf("invalid longitude: %v", *longitude),
		}
	}
	return nil
}

// SiteSummary is the denormalized row returned by listings and searches
type SiteSummary struct {
	ID            int64    `json:"id" db:"id"`
	Name          string   `json:"name" db:"name"`
	Description   *string  `json:"description,omitempty" db:"description"`
	Owner         *string  `json:"owner,omitempty" db:"owner"`
	Latitude      *float64 `json:"latitude,omitempty" db:"latitude"`
	Longitude     *float64 `json:"longitude,omitempty" db:"longitude"`
	Operator      string   `json:"operator" db:"operator"`
	OperatorColor *string  `json:"operator_color,omitempty" db:"operator_color"`
	Locality      *string  `json:"locality,omitempty" db:"locality"`
	Commune       *string  `json:"commune,omitempty" db:"commune"`
	Department    *string  `json:"department,omitempty" db:"department"`
}

// Place renders "locality, commune, department" for display, skipping unknown parts
func (s *SiteSummary) Place() string {
	parts := make([]string, 0, 3)
	for _, p := range []*string{s.Locality, s.Commune, s.Department} {
		if p != nil && *p != "" {
			parts = append(parts, *p)
		}
	}
	return strings.Join(parts, ", ")
}
