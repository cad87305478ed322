package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"site-registry/internal/config"
	"site-registry/internal/repository"
	"site-registry/internal/services"
	"site-registry/pkg/database"
	"site-registry/pkg/logging"
	"site-registry/pkg/metrics"
)

const version = "1.0.0"

// maxListedErrors bounds the row errors printed in the summary
const maxListedErrors = 20

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run imports one file and returns the process exit code. Deferred cleanup
// runs before main exits.
func run(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("importer", flag.ContinueOnError)
	flags.SetOutput(stderr)
	file := flags.String("file", "", "Spreadsheet to import (.xlsx or .csv)")
	sheet := flags.String("sheet", "", "Worksheet to read (default: first sheet, or IMPORT_SHEET)")
	dryRun := flags.Bool("dry-run", false, "Parse and validate rows against an in-memory store; the database is not touched")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	if *file == "" {
		fmt.Fprintln(stderr, "Usage: importer -file sites.xlsx [-sheet NAME] [-dry-run]")
		return 2
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	logger := logging.NewStructuredLogger("site-importer", version, logging.ParseLevel(cfg.Logging.Level))
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "[IMPORTER_START] Starting site import", logging.Fields{
		"version": version,
		"file":    *file,
		"dry_run": *dryRun,
	})

	metricsCollector := metrics.NewCollector("site_importer", prometheus.NewRegistry())

	var repo repository.SiteRepository
	if *dryRun {
		repo = repository.NewMemoryRepository()
	} else {
		db, err := database.NewPostgresDB(cfg.Database.Options(), logger, metricsCollector)
		if err != nil {
			logger.Error(ctx, "[IMPORTER_ERROR] Failed to connect to database", logging.Fields{}, err)
			return 1
		}
		defer db.Close()
		repo = repository.NewSiteRepository(db, logger, metricsCollector)
	}

	opts := services.ImportOptions{
		Sheet:       cfg.Import.Sheet,
		DateLayouts: cfg.Import.DateLayouts,
		StrictFlags: cfg.Import.StrictFlags,
	}
	if *sheet != "" {
		opts.Sheet = *sheet
	}
	importService := services.NewImportService(repo, logger, metricsCollector, opts)

	f, err := os.Open(*file)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to open %s: %v\n", *file, err)
		return 1
	}
	defer f.Close()

	report, err := importService.ImportFile(ctx, filepath.Base(*file), f)
	if report != nil {
		printReport(stdout, report, *dryRun)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Import failed: %v\n", err)
		return 1
	}

	logger.Info(ctx, "[IMPORTER_COMPLETE] Site import finished", logging.Fields{
		"created": report.Created,
		"updated": report.Updated,
		"failed":  report.Failed,
	})
	return 0
}

func printReport(w io.Writer, report *services.ImportReport, dryRun bool) {
	title := "IMPORT COMPLETE"
	if dryRun {
		title = "IMPORT COMPLETE (DRY RUN)"
	}

	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "File:          %s\n", report.Filename)
	fmt.Fprintf(w, "Rows:          %d\n", len(report.Results))
	fmt.Fprintf(w, "Created:       %d\n", report.Created)
	fmt.Fprintf(w, "Updated:       %d\n", report.Updated)
	fmt.Fprintf(w, "Failed:        %d\n", report.Failed)
	fmt.Fprintf(w, "Duration:      %v\n", report.Duration)

	errs := report.Errors()
	if len(errs) == 0 {
		return
	}

	fmt.Fprintf(w, "\nErrors (%d):\n", len(errs))
	for i, msg := range errs {
		if i == maxListedErrors {
			fmt.Fprintf(w, "  ... and %d more errors\n", len(errs)-maxListedErrors)
			break
		}
		fmt.Fprintf(w, "  - %s\n", msg)
	}
}
