package handlers

import (
	"encoding/json"
	"net/http"
)

type object = map[string]interface{}

func queryParam(name, description string, schema object) object {
	return object{
		"name":        name,
		"in":          "query",
		"description": description,
		"required":    false,
		"schema":      schema,
	}
}

func idArrayParam(name, description string) object {
	p := queryParam(name, description, object{
		"type":  "array",
		"items": object{"type": "integer"},
	})
	p["style"] = "form"
	p["explode"] = true
	return p
}

func jsonResponse(description string, schema object) object {
	return object{
		"description": description,
		"content": object{
			"application/json": object{"schema": schema},
		},
	}
}

func errorResponse(description string) object {
	return jsonResponse(description, object{"$ref": "#/components/schemas/Error"})
}

func nullable(kind string) object {
	return object{"type": kind, "nullable": true}
}

var siteSummarySchema = object{
	"type": "object",
	"properties": object{
		"id":             object{"type": "integer"},
		"name":           object{"type": "string"},
		"description":    nullable("string"),
		"owner":          nullable("string"),
		"latitude":       nullable("number"),
		"longitude":      nullable("number"),
		"operator":       object{"type": "string"},
		"operator_color": nullable("string"),
		"locality":       nullable("string"),
		"commune":        nullable("string"),
		"department":     nullable("string"),
	},
}

var complianceReportSchema = object{
	"type": "object",
	"properties": object{
		"id":               object{"type": "integer"},
		"site_id":          object{"type": "integer"},
		"inspection_date":  object{"type": "string", "format": "date-time"},
		"compliant":        object{"type": "boolean"},
		"report_reference": nullable("string"),
	},
}

var sitePathParam = object{"name": "name", "in": "path", "required": true, "schema": object{"type": "string"}}

var complianceParamDoc = func() object {
	p := queryParam("compliance", "Inspection statuses, OR-ed together", object{
		"type":  "array",
		"items": object{"type": "string", "enum": []string{"conforme", "non-conforme", "sans-rapport"}},
	})
	p["style"] = "form"
	p["explode"] = true
	return p
}()

// OpenAPISpec returns the OpenAPI 3.0 document for the site registry API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	paging := []object{
		queryParam("page", "Page number (default: 1)", object{"type": "integer", "default": 1}),
		queryParam("limit", "Records per page (default: 100, max: 1000)", object{"type": "integer", "default": 100}),
	}

	doc := object{
		"openapi": "3.0.0",
		"info": object{
			"title":       "Site Registry API",
			"description": "Registry of telecom antenna sites with spreadsheet bulk import",
			"version":     "1.0.0",
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": object{
			"/api/imports": object{
				"post": object{
					"summary":     "Import sites from a spreadsheet",
					"description": "Upload an .xlsx or .csv file. Each row is reconciled independently; failed rows are reported and never stop the batch.",
					"requestBody": object{
						"required": true,
						"content": object{
							"multipart/form-data": object{
								"schema": object{
									"type": "object",
									"properties": object{
										"file": object{"type": "string", "format": "binary"},
									},
									"required": []string{"file"},
								},
							},
						},
					},
					"responses": object{
						"200": jsonResponse("Import report", object{
							"type": "object",
							"properties": object{
								"filename": object{"type": "string"},
								"rows":     object{"type": "integer"},
								"created":  object{"type": "integer"},
								"updated":  object{"type": "integer"},
								"failed":   object{"type": "integer"},
								"errors": object{
									"type":    "array",
									"items":   object{"type": "string"},
									"example": []string{"Row 3: operator is required"},
								},
							},
						}),
						"400": errorResponse("Missing file field"),
						"413": errorResponse("Upload exceeds the configured size"),
						"422": errorResponse("File could not be read; nothing was imported"),
					},
				},
			},
			"/api/sites": object{
				"get": object{
					"summary":     "List sites",
					"description": "Sites with their operator and place, filtered by department, commune, operator and inspection status",
					"parameters": append([]object{
						idArrayParam("department_id", "Department IDs"),
						idArrayParam("commune_id", "Commune IDs"),
						idArrayParam("operator_id", "Operator IDs"),
						complianceParamDoc,
					}, paging...),
					"responses": object{
						"200": jsonResponse("Paginated sites", object{
							"type": "object",
							"properties": object{
								"data":        object{"type": "array", "items": siteSummarySchema},
								"total":       object{"type": "integer"},
								"page":        object{"type": "integer"},
								"limit":       object{"type": "integer"},
								"total_pages": object{"type": "integer"},
							},
						}),
						"400": errorResponse("Invalid filter"),
					},
				},
			},
			"/api/sites/search": object{
				"get": object{
					"summary":     "Search sites",
					"description": "Case-insensitive match on name, description, owner, locality, commune or department",
					"parameters": []object{
						queryParam("q", "Search text", object{"type": "string"}),
					},
					"responses": object{
						"200": jsonResponse("Matching sites", object{
							"type": "object",
							"properties": object{
								"results": object{"type": "array", "items": siteSummarySchema},
							},
						}),
					},
				},
			},
			"/api/sites/{name}": object{
				"get": object{
					"summary":    "Get a site by name",
					"parameters": []object{sitePathParam},
					"responses": object{
						"200": jsonResponse("Site", object{"type": "object"}),
						"404": errorResponse("Unknown site"),
					},
				},
			},
			"/api/sites/{name}/compliance": object{
				"get": object{
					"summary":    "Get the inspection report of a site",
					"parameters": []object{sitePathParam},
					"responses": object{
						"200": jsonResponse("Compliance report", complianceReportSchema),
						"404": errorResponse("Unknown site or no report"),
					},
				},
				"put": object{
					"summary":     "Record the latest inspection of a site",
					"description": "Replaces the previous report. An omitted report_reference keeps the stored document.",
					"parameters":  []object{sitePathParam},
					"requestBody": object{
						"required": true,
						"content": object{
							"application/json": object{
								"schema": object{
									"type": "object",
									"properties": object{
										"inspection_date":  object{"type": "string", "format": "date"},
										"compliant":        object{"type": "boolean"},
										"report_reference": object{"type": "string"},
									},
									"required": []string{"inspection_date", "compliant"},
								},
							},
						},
					},
					"responses": object{
						"200": jsonResponse("Report replaced", complianceReportSchema),
						"201": jsonResponse("First report of the site", complianceReportSchema),
						"400": errorResponse("Invalid body"),
						"404": errorResponse("Unknown site"),
					},
				},
			},
			"/api/communes": object{
				"get": object{
					"summary":    "List communes of departments",
					"parameters": []object{idArrayParam("department_id", "Department IDs")},
					"responses": object{
						"200": jsonResponse("Communes", object{
							"type": "array",
							"items": object{
								"type": "object",
								"properties": object{
									"id":   object{"type": "integer"},
									"name": object{"type": "string"},
								},
							},
						}),
					},
				},
			},
			"/api/technologies": object{
				"get": object{
					"summary": "Technology catalogue",
					"responses": object{
						"200": jsonResponse("Known technology codes", object{
							"type": "array",
							"items": object{
								"type": "object",
								"properties": object{
									"code":  object{"type": "string"},
									"label": object{"type": "string"},
								},
							},
						}),
					},
				},
			},
			"/health": object{
				"get": object{
					"summary": "Health check",
					"responses": object{
						"200": jsonResponse("Service and store are reachable", object{
							"type":       "object",
							"properties": object{"status": object{"type": "string"}},
						}),
						"503": jsonResponse("Store unavailable", object{"type": "object"}),
					},
				},
			},
			"/metrics": object{
				"get": object{
					"summary": "Prometheus metrics",
					"responses": object{
						"200": object{
							"description": "Prometheus metrics in text format",
							"content": object{
								"text/plain": object{"schema": object{"type": "string"}},
							},
						},
					},
				},
			},
		},
		"components": object{
			"schemas": object{
				"Error": object{
					"type": "object",
					"properties": object{
						"error":   object{"type": "string"},
						"message": object{"type": "string"},
						"code":    object{"type": "integer"},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}
