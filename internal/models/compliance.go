package models

import (
	"fmt"
	"strings"
	"time"
)

// ComplianceStatus is the inspection outcome sites are filtered on
type ComplianceStatus string

const (
	ComplianceCompliant    ComplianceStatus = "conforme"
	ComplianceNonCompliant ComplianceStatus = "non-conforme"
	ComplianceNoReport     ComplianceStatus = "sans-rapport"
)

// ParseComplianceStatus accepts a filter value, ignoring case and surrounding spaces
func ParseComplianceStatus(value string) (ComplianceStatus, error) {
	status := ComplianceStatus(strings.ToLower(strings.TrimSpace(value)))
	switch status {
	case ComplianceCompliant, ComplianceNonCompliant, ComplianceNoReport:
		return status, nil
	}
	return "", &ValidationError{
		Field:   "compliance",
		Value:   value,
		Message: fmt.Sprintf("invalid compliance status: %q", value),
	}
}

// ComplianceReport is the latest inspection of a site. A site has at most
// one report; recording a new inspection replaces it.
type ComplianceReport struct {
	ID              int64     `json:"id" db:"id"`
	SiteID          int64     `json:"site_id" db:"site_id"`
	InspectionDate  time.Time `json:"inspection_date" db:"inspection_date"`
	Compliant       bool      `json:"compliant" db:"compliant"`
	ReportReference *string   `json:"report_reference,omitempty" db:"report_reference"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// Status maps the report onto the filter vocabulary; a nil report has no status
// other than "sans-rapport".
func (c *ComplianceReport) Status() ComplianceStatus {
	switch {
	case c == nil:
		return ComplianceNoReport
	case c.Compliant:
		return ComplianceCompliant
	default:
		return ComplianceNonCompliant
	}
}

// Validate checks the report before it is written
func (c *ComplianceReport) Validate() error {
	if c.SiteID <= 0 {
		return &ValidationError{Field: "site", Message: "compliance report site is required"}
	}
	if c.InspectionDate.IsZero() {
		return &ValidationError{Field: "inspection_date", Message: "inspection date is required"}
	}
	return nil
}
