package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"site-registry/internal/importer"
	"site-registry/internal/models"
	"site-registry/internal/repository"
	"site-registry/internal/tabular"
	"site-registry/pkg/logging"
	"site-registry/pkg/metrics"
)

// ImportOptions configures how spreadsheets are read and validated
type ImportOptions struct {
	Sheet       string
	DateLayouts []string
	StrictFlags bool
}

// ImportService reconciles spreadsheet rows with the site registry
type ImportService struct {
	repo    repository.SiteRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	parser  importer.Parser
	sheet   string
}

// NewImportService creates a new import service
func NewImportService(repo repository.SiteRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector, opts ImportOptions) *ImportService {
	return &ImportService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
		parser: importer.Parser{
			DateLayouts: opts.DateLayouts,
			StrictFlags: opts.StrictFlags,
		},
		sheet: opts.Sheet,
	}
}

// FileError means the file could not be read at all; nothing was written
type FileError struct {
	Filename string
	Err      error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("failed to process file %s: %v", e.Filename, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

func (e *FileError) IsTransient() bool {
	return false
}

// RowError is the failure of a single data row
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("Row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Kind classifies the failure for metrics: validation, conflict or store
func (e *RowError) Kind() string {
	var verr *models.ValidationError
	var conflict *repository.ConflictError
	switch {
	case errors.As(e.Err, &verr):
		return "validation"
	case errors.As(e.Err, &conflict):
		return "conflict"
	default:
		return "store"
	}
}

// RowResult is the outcome of one data row
type RowResult struct {
	Row      int
	SiteID   int64
	SiteName string
	Created  bool
	Err      *RowError
}

// ImportReport summarizes an import; rows keep file order
type ImportReport struct {
	Filename string
	Results  []RowResult
	Created  int
	Updated  int
	Failed   int
	Duration time.Duration
}

// Errors returns the row failures as "Row N: message", in row order.
// An empty slice means every row was imported.
func (r *ImportReport) Errors() []string {
	errs := make([]string, 0, r.Failed)
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, res.Err.Error())
		}
	}
	return errs
}

// ImportFile reads the whole file, then processes rows in order. A file that
// cannot be parsed returns a *FileError before any write. Row failures are
// collected in the report and never stop the batch; a cancelled context stops
// it between rows and returns the partial report with the context error.
func (s *ImportService) ImportFile(ctx context.Context, filename string, r io.Reader) (*ImportReport, error) {
	timer := s.metrics.NewTimer(s.metrics.ImportDuration)

	s.logger.Info(ctx, "[IMPORT_START] Starting site import", logging.Fields{
		"filename": filename,
		"stage":    "INITIALIZATION",
	})

	table, err := tabular.Read(r, filename, tabular.Options{Sheet: s.sheet})
	if err != nil {
		s.metrics.RecordImport("file_error")
		s.logger.Error(ctx, "[IMPORT_FILE_ERROR] Could not read import file", logging.Fields{
			"filename": filename,
			"stage":    "PARSE",
		}, err)
		return nil, &FileError{Filename: filename, Err: err}
	}

	columns, issues := importer.NormalizeHeaders(table.Headers)
	for _, issue := range issues {
		s.logger.Warn(ctx, "[IMPORT_HEADER] Column ignored", logging.Fields{
			"filename": filename,
			"position": issue.Position,
			"header":   issue.Raw,
			"reason":   issue.Reason,
		})
	}

	s.logger.Info(ctx, "[IMPORT_PARSED] File parsed", logging.Fields{
		"filename": filename,
		"columns":  len(columns),
		"rows":     len(table.Rows),
		"stage":    "PARSE",
	})

	report := &ImportReport{
		Filename: filename,
		Results:  make([]RowResult, 0, len(table.Rows)),
	}

	for _, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			report.Duration = timer.ObserveDuration()
			s.metrics.RecordImport("cancelled")
			s.logger.Warn(ctx, "[IMPORT_CANCELLED] Import stopped before the end of the file", logging.Fields{
				"filename":       filename,
				"rows_processed": len(report.Results),
			})
			return report, fmt.Errorf("import of %s stopped after %d rows: %w", filename, len(report.Results), err)
		}

		result := s.importRow(ctx, columns, row)
		report.Results = append(report.Results, result)

		switch {
		case result.Err != nil:
			report.Failed++
			s.metrics.RecordImportRow("failed")
			s.metrics.RecordRowError(result.Err.Kind())
		case result.Created:
			report.Created++
			s.metrics.RecordImportRow("created")
		default:
			report.Updated++
			s.metrics.RecordImportRow("updated")
		}
	}

	report.Duration = timer.ObserveDuration()

	status := "success"
	if report.Failed > 0 {
		status = "partial"
	}
	s.metrics.RecordImport(status)

	s.logger.Info(ctx, "[IMPORT_COMPLETE] Site import completed", logging.Fields{
		"filename":         filename,
		"rows":             len(report.Results),
		"created":          report.Created,
		"updated":          report.Updated,
		"failed":           report.Failed,
		"duration_seconds": report.Duration.Seconds(),
		"stage":            "COMPLETE",
	})

	return report, nil
}

// importRow runs every check on the row before the first write, then
// resolves foreign keys and technologies and saves the site with its
// technology links as one unit.
func (s *ImportService) importRow(ctx context.Context, columns []string, row tabular.Row) RowResult {
	record := importer.NewRecord(columns, row.Cells)
	siteRow := importer.NewSiteRow(row.Number, record)

	s.logger.Debug(ctx, "[IMPORT_ROW] Processing row", logging.Fields{
		"row": row.Number,
	})

	input, err := s.parser.Parse(siteRow)
	if err != nil {
		return s.fail(ctx, row.Number, err)
	}

	for _, fb := range input.Fallbacks {
		s.metrics.RecordFallback(fb.Field)
		s.logger.Warn(ctx, "[IMPORT_FALLBACK] Value replaced by default", logging.Fields{
			"row":    row.Number,
			"field":  fb.Field,
			"value":  fb.Value,
			"reason": fb.Reason,
		})
	}
	for _, code := range input.UnknownTechnologies {
		s.metrics.RecordFallback(importer.ColTechnologies)
		s.logger.Warn(ctx, "[IMPORT_FALLBACK] Unknown technology skipped", logging.Fields{
			"row":   row.Number,
			"field": importer.ColTechnologies,
			"value": code,
		})
	}

	site := input.Site
	if err := s.resolve(ctx, input, &site); err != nil {
		return s.fail(ctx, row.Number, err)
	}

	technologyIDs := make([]int64, 0, len(input.Technologies))
	for _, code := range input.Technologies {
		tech, created, err := s.repo.GetOrCreateTechnology(ctx, code)
		if err != nil {
			return s.fail(ctx, row.Number, err)
		}
		s.countCreated("technology", created)
		technologyIDs = append(technologyIDs, tech.ID)
	}

	stored, created, err := s.repo.SaveSite(ctx, &site, technologyIDs)
	if err != nil {
		return s.fail(ctx, row.Number, err)
	}
	s.countCreated("site", created)

	s.logger.Info(ctx, "[IMPORT_ROW_SUCCESS] Site written", logging.Fields{
		"row":       row.Number,
		"site_id":   stored.ID,
		"site_name": stored.Name,
		"created":   created,
	})

	return RowResult{Row: row.Number, SiteID: stored.ID, SiteName: stored.Name, Created: created}
}

// resolve gets or creates, in order: department, commune, locality,
// location type and operator, and sets the foreign keys on site.
func (s *ImportService) resolve(ctx context.Context, in *importer.SiteInput, site *models.Site) error {
	department, created, err := s.repo.GetOrCreateDepartment(ctx, in.Department)
	if err != nil {
		return err
	}
	s.countCreated("department", created)

	commune, created, err := s.repo.GetOrCreateCommune(ctx, in.Commune, department.ID)
	if err != nil {
		return err
	}
	s.countCreated("commune", created)

	locality, created, err := s.repo.GetOrCreateLocality(ctx, in.Locality, commune.ID)
	if err != nil {
		return err
	}
	s.countCreated("locality", created)
	if created {
		s.logger.Info(ctx, "[IMPORT_LOCALITY_CREATED] New locality", logging.Fields{
			"row":      in.Row,
			"locality": locality.Name,
			"commune":  commune.Name,
		})
	}
	site.LocalityID = &locality.ID

	if in.LocationType != nil {
		locationType, created, err := s.repo.GetOrCreateLocationType(ctx, *in.LocationType)
		if err != nil {
			return err
		}
		s.countCreated("location_type", created)
		site.LocationTypeID = &locationType.ID
	}

	operator, created, err := s.repo.GetOrCreateOperator(ctx, in.Operator)
	if err != nil {
		return err
	}
	s.countCreated("operator", created)
	site.OperatorID = operator.ID

	return nil
}

func (s *ImportService) countCreated(entity string, created bool) {
	if created {
		s.metrics.RecordEntityCreated(entity)
	}
}

func (s *ImportService) fail(ctx context.Context, row int, err error) RowResult {
	rowErr := &RowError{Row: row, Err: err}

	if kind := rowErr.Kind(); kind == "validation" {
		s.logger.Warn(ctx, "[IMPORT_ROW_INVALID] Row rejected", logging.Fields{
			"row":   row,
			"error": err.Error(),
		})
	} else {
		s.logger.Error(ctx, "[IMPORT_ROW_ERROR] Row could not be written", logging.Fields{
			"row":        row,
			"error_kind": kind,
		}, err)
	}

	return RowResult{Row: row, Err: rowErr}
}
