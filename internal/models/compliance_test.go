package models

import (
	"errors"
	"testing"
	"time"
)

func TestParseComplianceStatus(t *testing.T) {
	tests := map[string]ComplianceStatus{
		"conforme":       ComplianceCompliant,
		" Non-Conforme ": ComplianceNonCompliant,
		"SANS-RAPPORT":   ComplianceNoReport,
	}
	for in, want := range tests {
		got, err := ParseComplianceStatus(in)
		if err != nil {
			t.Fatalf("ParseComplianceStatus(%q) error: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseComplianceStatus(%q) = %q, want %q", in, got, want)
		}
	}

	_, err := ParseComplianceStatus("peut-etre")
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "compliance" {
		t.Errorf("expected compliance ValidationError, got %v", err)
	}
}

func TestComplianceReport_Status(t *testing.T) {
	var missing *ComplianceReport
	if got := missing.Status(); got != ComplianceNoReport {
		t.Errorf("nil report status = %q", got)
	}
	if got := (&ComplianceReport{Compliant: true}).Status(); got != ComplianceCompliant {
		t.Errorf("compliant report status = %q", got)
	}
	if got := (&ComplianceReport{}).Status(); got != ComplianceNonCompliant {
		t.Errorf("failed inspection status = %q", got)
	}
}

func TestComplianceReport_Validate(t *testing.T) {
	if err := (&ComplianceReport{InspectionDate: time.Now()}).Validate(); err == nil {
		t.Error("report without site should be rejected")
	}
	if err := (&ComplianceReport{SiteID: 1}).Validate(); err == nil {
		t.Error("report without inspection date should be rejected")
	}
	if err := (&ComplianceReport{SiteID: 1, InspectionDate: time.Now()}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
