package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"site-registry/internal/models"
	"site-registry/internal/repository"
	"site-registry/pkg/logging"
)

// inspectionDateLayout is the calendar date accepted for inspections
const inspectionDateLayout = "2006-01-02"

// ComplianceRequest is the body of PUT /api/sites/{name}/compliance
type ComplianceRequest struct {
	InspectionDate  string  `json:"inspection_date"`
	Compliant       *bool   `json:"compliant"`
	ReportReference *string `json:"report_reference,omitempty"`
}

// GetCompliance handles GET /api/sites/{name}/compliance
func (h *SiteHandler) GetCompliance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := mux.Vars(r)["name"]

	report, err := h.siteService.GetCompliance(ctx, name)
	var notFound *repository.NotFoundError
	if errors.As(err, &notFound) {
		h.sendError(w, r, notFound.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error(ctx, "[API_GET_COMPLIANCE_ERROR] Failed to get compliance report", logging.Fields{
			"site_name": name,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/sites/{name}/compliance")
		h.sendError(w, r, "failed to retrieve compliance report", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/api/sites/{name}/compliance", "GET", "200")
	h.sendJSON(w, report, http.StatusOK)
}

// RecordCompliance handles PUT /api/sites/{name}/compliance
func (h *SiteHandler) RecordCompliance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := mux.Vars(r)["name"]

	var req ComplianceRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		h.sendError(w, r, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Compliant == nil {
		h.sendError(w, r, "compliant is required", http.StatusBadRequest)
		return
	}
	inspected, err := time.Parse(inspectionDateLayout, req.InspectionDate)
	if err != nil {
		h.sendError(w, r, fmt.Sprintf("invalid inspection_date: %q", req.InspectionDate), http.StatusBadRequest)
		return
	}

	report, created, err := h.siteService.RecordCompliance(ctx, name, models.ComplianceReport{
		InspectionDate:  inspected,
		Compliant:       *req.Compliant,
		ReportReference: req.ReportReference,
	})
	var notFound *repository.NotFoundError
	var validation *models.ValidationError
	switch {
	case errors.As(err, &notFound):
		h.sendError(w, r, notFound.Error(), http.StatusNotFound)
		return
	case errors.As(err, &validation):
		h.sendError(w, r, validation.Error(), http.StatusBadRequest)
		return
	case err != nil:
		h.logger.Error(ctx, "[API_RECORD_COMPLIANCE_ERROR] Failed to record compliance report", logging.Fields{
			"site_name": name,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/sites/{name}/compliance")
		h.sendError(w, r, "failed to record compliance report", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	h.metrics.RecordAPIRequest("/api/sites/{name}/compliance", "PUT", fmt.Sprint(status))
	h.sendJSON(w, report, status)
}

// complianceParam reads the repeated compliance filter; "compliance[]" is accepted as well
func complianceParam(r *http.Request) ([]models.ComplianceStatus, error) {
	query := r.URL.Query()
	values := append(query["compliance"], query["compliance[]"]...)

	statuses := make([]models.ComplianceStatus, 0, len(values))
	for _, v := range values {
		status, err := models.ParseComplianceStatus(v)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}
