package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"site-registry/internal/models"
	"site-registry/internal/services"
)

func TestPrintReport(t *testing.T) {
	report := &services.ImportReport{
		Filename: "sites.xlsx",
		Results: []services.RowResult{
			{Row: 1, SiteName: "COT-001", Created: true},
			{Row: 2, Err: &services.RowError{Row: 2, Err: &models.ValidationError{Message: "operator is required"}}},
		},
		Created: 1,
		Failed:  1,
	}

	var buf bytes.Buffer
	printReport(&buf, report, true)

	out := buf.String()
	assert.Contains(t, out, "IMPORT COMPLETE (DRY RUN)")
	assert.Contains(t, out, "Rows:          2")
	assert.Contains(t, out, "Created:       1")
	assert.Contains(t, out, "  - Row 2: operator is required")
}

func TestPrintReport_TruncatesErrors(t *testing.T) {
	report := &services.ImportReport{Filename: "sites.csv"}
	for i := 1; i <= maxListedErrors+5; i++ {
		report.Results = append(report.Results, services.RowResult{
			Row: i,
			Err: &services.RowError{Row: i, Err: fmt.Errorf("bad row %d", i)},
		})
		report.Failed++
	}

	var buf bytes.Buffer
	printReport(&buf, report, false)

	out := buf.String()
	assert.NotContains(t, out, "DRY RUN")
	assert.Contains(t, out, fmt.Sprintf("Row %d: bad row %d", maxListedErrors, maxListedErrors))
	assert.NotContains(t, out, fmt.Sprintf("Row %d:", maxListedErrors+1))
	assert.Contains(t, out, "... and 5 more errors")
}

func TestRun_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer

	assert.Equal(t, 2, run(nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Usage: importer -file")

	stderr.Reset()
	assert.Equal(t, 2, run([]string{"-bogus"}, &stdout, &stderr))
	assert.Empty(t, stdout.String())
}

func TestRun_InvalidConfiguration(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")
	var stdout, stderr bytes.Buffer

	assert.Equal(t, 1, run([]string{"-file", "sites.csv", "-dry-run"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Invalid configuration")
	assert.Contains(t, stderr.String(), "LOG_LEVEL")
}

func TestRun_DryRun(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	path := filepath.Join(t.TempDir(), "sites.csv")
	csv := "Département,Communes,Localité,Opérateur,ID du site,Technologies\n" +
		"Littoral,Cotonou,Akpakpa,MTN,COT-001,LTE-800\n" +
		"Littoral,Cotonou,Akpakpa,,COT-002,\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"-file", path, "-dry-run"}, &stdout, &stderr), stderr.String())

	out := stdout.String()
	assert.Contains(t, out, "IMPORT COMPLETE (DRY RUN)")
	assert.Contains(t, out, "Created:       1")
	assert.Contains(t, out, "Failed:        1")
	assert.Contains(t, out, "Row 2: operator is required")
}

func TestRun_MissingFile(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	var stdout, stderr bytes.Buffer

	missing := filepath.Join(t.TempDir(), "missing.xlsx")
	assert.Equal(t, 1, run([]string{"-file", missing, "-dry-run"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Failed to open")
}
