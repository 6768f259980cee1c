package handlers

import (
	"net/http"
	"time"

	"github.com/dvloznov/csv-intake/internal/api/middleware"
	"github.com/dvloznov/csv-intake/internal/apperrors"
)

// Version is reported by the info endpoint.
var Version = "dev"

// Register mounts every API route on mux. jobsHandler may be nil, in which
// case the job routes are not mounted.
func Register(mux *http.ServeMux, uploads *UploadsHandler, jobsHandler *JobsHandler) {
	mux.HandleFunc("POST /api/upload", uploads.Upload)
	mux.HandleFunc("GET /api/uploads", uploads.ListUploads)
	mux.HandleFunc("GET /api/uploads/{id}", uploads.GetUpload)
	mux.HandleFunc("DELETE /api/uploads/{id}", uploads.DeleteUpload)
	mux.HandleFunc("GET /api/uploads/{id}/transactions", uploads.ListTransactions)
	mux.HandleFunc("POST /api/uploads/{id}/reprocess", uploads.Reprocess)

	if jobsHandler != nil {
		mux.HandleFunc("GET /api/jobs", jobsHandler.ListJobs)
		mux.HandleFunc("GET /api/jobs/{id}", jobsHandler.GetJob)
	}

	mux.HandleFunc("GET /health", Health)
	mux.HandleFunc("GET /{$}", Info)
	mux.HandleFunc("/", NotFound)
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Info handles GET / with a short description of the API.
func Info(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"name":        "CSV Intake API",
		"version":     Version,
		"description": "Upload and validate CSV transaction files",
		"endpoints": map[string]string{
			"health":       "GET /health",
			"upload":       "POST /api/upload",
			"uploads":      "GET /api/uploads",
			"uploadDetail": "GET /api/uploads/{id}",
			"transactions": "GET /api/uploads/{id}/transactions",
			"delete":       "DELETE /api/uploads/{id}",
			"reprocess":    "POST /api/uploads/{id}/reprocess",
			"jobs":         "GET /api/jobs",
		},
	})
}

// NotFound answers unmatched routes with NOT_FOUND.
func NotFound(w http.ResponseWriter, r *http.Request) {
	middleware.WriteError(w, apperrors.New(apperrors.CodeNotFound, "Route "+r.Method+" "+r.URL.Path+" not found"))
}
