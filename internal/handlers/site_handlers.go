package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"site-registry/internal/repository"
	"site-registry/internal/services"
	"site-registry/pkg/logging"
	"site-registry/pkg/metrics"
)

// SiteHandler handles the registry API endpoints
type SiteHandler struct {
	siteService    *services.SiteService
	importService  *services.ImportService
	logger         *logging.StructuredLogger
	metrics        *metrics.Collector
	maxUploadBytes int64
}

// NewSiteHandler creates a new site handler
func NewSiteHandler(
	siteService *services.SiteService,
	importService *services.ImportService,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
	maxUploadBytes int64,
) *SiteHandler {
	return &SiteHandler{
		siteService:    siteService,
		importService:  importService,
		logger:         logger,
		metrics:        metricsCollector,
		maxUploadBytes: maxUploadBytes,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// PaginatedResponse represents a paginated API response
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}

// SearchResponse wraps site search results
type SearchResponse struct {
	Results interface{} `json:"results"`
}

// ListSites handles GET /api/sites
func (h *SiteHandler) ListSites(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		duration := time.Since(startTime)
		h.metrics.APIRequestDuration.WithLabelValues("/api/sites").Observe(duration.Seconds())
	}()

	pageStr := r.URL.Query().Get("page")
	limitStr := r.URL.Query().Get("limit")

	// Default pagination
	page := 1
	limit := 100

	if pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}

	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 1000 {
			limit = l
		}
	}

	if page > math.MaxInt/limit {
		h.sendError(w, r, fmt.Sprintf("page out of range: %d", page), http.StatusBadRequest)
		return
	}

	filter := repository.SiteFilter{
		Limit:  limit,
		Offset: (page - 1) * limit,
	}

	var err error
	if filter.DepartmentIDs, err = idsParam(r, "department_id"); err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}
	if filter.CommuneIDs, err = idsParam(r, "commune_id"); err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}
	if filter.OperatorIDs, err = idsParam(r, "operator_id"); err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}
	if filter.Compliance, err = complianceParam(r); err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	sites, total, err := h.siteService.ListSites(ctx, filter)
	if err != nil {
		h.logger.Error(ctx, "[API_LIST_SITES_ERROR] Failed to list sites", logging.Fields{
			"filter": filter,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/sites")
		h.sendError(w, r, "failed to retrieve sites", http.StatusInternalServerError)
		return
	}

	response := PaginatedResponse{
		Data:       sites,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}

	h.metrics.RecordAPIRequest("/api/sites", "GET", "200")
	h.sendJSON(w, response, http.StatusOK)
}

// SearchSites handles GET /api/sites/search
func (h *SiteHandler) SearchSites(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/sites/search").Observe(time.Since(startTime).Seconds())
	}()

	query := r.URL.Query().Get("q")
	results, err := h.siteService.SearchSites(ctx, query)
	if err != nil {
		h.logger.Error(ctx, "[API_SEARCH_SITES_ERROR] Search failed", logging.Fields{
			"query": query,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/sites/search")
		h.sendError(w, r, "failed to search sites", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/api/sites/search", "GET", "200")
	h.sendJSON(w, SearchResponse{Results: results}, http.StatusOK)
}

// GetSite handles GET /api/sites/{name}
func (h *SiteHandler) GetSite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := mux.Vars(r)["name"]

	site, err := h.siteService.GetSite(ctx, name)
	var notFound *repository.NotFoundError
	if errors.As(err, &notFound) {
		h.sendError(w, r, notFound.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error(ctx, "[API_GET_SITE_ERROR] Failed to get site", logging.Fields{
			"site_name": name,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/sites/{name}")
		h.sendError(w, r, "failed to retrieve site", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/api/sites/{name}", "GET", "200")
	h.sendJSON(w, site, http.StatusOK)
}

// ListCommunes handles GET /api/communes?department_id=1&department_id=2
func (h *SiteHandler) ListCommunes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	departmentIDs, err := idsParam(r, "department_id")
	if err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	communes, err := h.siteService.ListCommunes(ctx, departmentIDs)
	if err != nil {
		h.logger.Error(ctx, "[API_LIST_COMMUNES_ERROR] Failed to list communes", logging.Fields{
			"department_ids": departmentIDs,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/communes")
		h.sendError(w, r, "failed to retrieve communes", http.StatusInternalServerError)
		return
	}

	type communeItem struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	items := make([]communeItem, 0, len(communes))
	for _, c := range communes {
		items = append(items, communeItem{ID: c.ID, Name: c.Name})
	}

	h.metrics.RecordAPIRequest("/api/communes", "GET", "200")
	h.sendJSON(w, items, http.StatusOK)
}

// ListTechnologies handles GET /api/technologies
func (h *SiteHandler) ListTechnologies(w http.ResponseWriter, r *http.Request) {
	h.metrics.RecordAPIRequest("/api/technologies", "GET", "200")
	h.sendJSON(w, h.siteService.Technologies(), http.StatusOK)
}

// HealthCheck handles GET /health
func (h *SiteHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	code := http.StatusOK
	if err := h.siteService.HealthCheck(ctx); err != nil {
		h.logger.Warn(ctx, "[HEALTH_CHECK_FAILED] Store unavailable", logging.Fields{
			"error": err.Error(),
		})
		status["status"] = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, status, code)
}

// idsParam reads a repeated integer query parameter; "name[]" is accepted as well
func idsParam(r *http.Request, name string) ([]int64, error) {
	query := r.URL.Query()
	values := append(query[name], query[name+"[]"]...)

	ids := make([]int64, 0, len(values))
	for _, v := range values {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid %s: %q", name, v)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// sendJSON sends a JSON response
func (h *SiteHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *SiteHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	h.metrics.RecordAPIRequest(r.URL.Path, r.Method, strconv.Itoa(statusCode))

	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

// RegisterRoutes registers all registry API routes
func (h *SiteHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/imports", h.ImportSites).Methods("POST")
	router.HandleFunc("/api/sites", h.ListSites).Methods("GET")
	router.HandleFunc("/api/sites/search", h.SearchSites).Methods("GET")
	router.HandleFunc("/api/sites/{name}", h.GetSite).Methods("GET")
	router.HandleFunc("/api/sites/{name}/compliance", h.GetCompliance).Methods("GET")
	router.HandleFunc("/api/sites/{name}/compliance", h.RecordCompliance).Methods("PUT")
	router.HandleFunc("/api/communes", h.ListCommunes).Methods("GET")
	router.HandleFunc("/api/technologies", h.ListTechnologies).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
}
