package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dvloznov/csv-intake/internal/api/middleware"
	"github.com/dvloznov/csv-intake/internal/apperrors"
	"github.com/dvloznov/csv-intake/internal/filegate"
	"github.com/dvloznov/csv-intake/internal/jobs"
	"github.com/dvloznov/csv-intake/internal/logger"
	"github.com/dvloznov/csv-intake/internal/pipeline"
	"github.com/dvloznov/csv-intake/internal/rawstore"
	"github.com/dvloznov/csv-intake/internal/records"
	"github.com/rs/zerolog"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	// multipartOverhead is the room left for form boundaries and headers.
	multipartOverhead = 1 << 20
)

// UploadsHandler handles upload-related endpoints.
type UploadsHandler struct {
	processor *pipeline.Processor
	repo      records.Repository
	store     rawstore.Store
	publisher jobs.Publisher
	gate      filegate.Config
	log       zerolog.Logger
}

// NewUploadsHandler creates a new uploads handler. store and publisher may
// be nil; reprocessing then reports the raw file as unavailable.
func NewUploadsHandler(processor *pipeline.Processor, repo records.Repository, store rawstore.Store, publisher jobs.Publisher, gate filegate.Config, log zerolog.Logger) *UploadsHandler {
	return &UploadsHandler{
		processor: processor,
		repo:      repo,
		store:     store,
		publisher: publisher,
		gate:      gate,
		log:       log,
	}
}

// Upload handles POST /api/upload with the CSV in multipart field "file".
func (h *UploadsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithContext(r.Context(), requestLogger(r, h.log))
	log := logger.FromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.gate.MaxSizeBytes+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			h.fail(w, r, apperrors.FileExceedsLimit(h.gate.MaxSizeBytes))
		default:
			h.fail(w, r, apperrors.NoFile())
		}
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if err := filegate.Check(filegate.FileInfo{Filename: header.Filename, MimeType: mimeType, Size: header.Size}, h.gate); err != nil {
		log.Info().Str("filename", header.Filename).Str("reason", filegate.Describe(err)).Msg("upload rejected at gate")
		h.fail(w, r, err)
		return
	}

	content, err := filegate.ReadLimited(file, h.gate.MaxSizeBytes)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out, err := h.processor.Process(ctx, pipeline.Input{
		Filename: header.Filename,
		MimeType: mimeType,
		Content:  content,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, pipeline.BuildSuccess(out))
}

// ListUploads handles GET /api/uploads?limit=N
func (h *UploadsHandler) ListUploads(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultListLimit)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}

	uploads, err := h.repo.ListUploads(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if uploads == nil {
		uploads = []*records.Upload{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"uploads": uploads,
		"count":   len(uploads),
	})
}

// GetUpload handles GET /api/uploads/{id}
func (h *UploadsHandler) GetUpload(w http.ResponseWriter, r *http.Request) {
	u, ok := h.loadUpload(w, r)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, u)
}

// ListTransactions handles GET /api/uploads/{id}/transactions
func (h *UploadsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	u, ok := h.loadUpload(w, r)
	if !ok {
		return
	}

	txs, err := h.repo.ListTransactions(r.Context(), u.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if txs == nil {
		txs = []*records.Transaction{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"uploadId":     u.ID,
		"transactions": txs,
		"count":        len(txs),
	})
}

// DeleteUpload handles DELETE /api/uploads/{id}. The raw file is removed
// as well; failing to remove it is logged only.
func (h *UploadsHandler) DeleteUpload(w http.ResponseWriter, r *http.Request) {
	u, ok := h.loadUpload(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if err := h.repo.DeleteUpload(ctx, u.ID); err != nil {
		h.fail(w, r, uploadError(err, u.ID))
		return
	}
	if h.store != nil && u.StorageURI != "" {
		if err := h.store.Delete(ctx, u.StorageURI); err != nil {
			log := requestLogger(r, h.log)
			log.Warn().Err(err).Str("upload_id", u.ID).Msg("Failed to delete raw file")
		}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"uploadId": u.ID,
		"deleted":  true,
	})
}

// Reprocess handles POST /api/uploads/{id}/reprocess
func (h *UploadsHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	u, ok := h.loadUpload(w, r)
	if !ok {
		return
	}
	if h.publisher == nil || h.store == nil || u.StorageURI == "" {
		h.fail(w, r, apperrors.NotFound("raw file", u.ID))
		return
	}

	job := &jobs.ReprocessUploadJob{
		UploadID:   u.ID,
		StorageURI: u.StorageURI,
		Filename:   u.OriginalFilename,
		MimeType:   u.MimeType,
	}
	if err := h.publisher.PublishReprocessUpload(r.Context(), job); err != nil {
		h.fail(w, r, apperrors.Internal(err, "Failed to enqueue reprocessing job"))
		return
	}

	log := requestLogger(r, h.log)
	log.Info().Str("job_id", job.JobID).Str("upload_id", u.ID).Msg("Reprocessing job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"jobId":    job.JobID,
		"uploadId": u.ID,
		"status":   string(job.Status),
	})
}

func (h *UploadsHandler) loadUpload(w http.ResponseWriter, r *http.Request) (*records.Upload, bool) {
	id := r.PathValue("id")
	u, err := h.repo.GetUpload(r.Context(), id)
	if err != nil {
		h.fail(w, r, uploadError(err, id))
		return nil, false
	}
	return u, true
}

// fail logs err (in full when it is not operational) and writes the public
// failure envelope.
func (h *UploadsHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	logFailure(requestLogger(r, h.log), r, err)
	middleware.WriteError(w, err)
}

func uploadError(err error, id string) error {
	if errors.Is(err, records.ErrNotFound) {
		return apperrors.NotFound("upload", id)
	}
	return err
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			err = apperrors.NotFound("job", jobID)
		}
		logFailure(requestLogger(r, h.log), r, err)
		middleware.WriteError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs?upload_id=&status=&limit=&offset=
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		UploadID: query.Get("upload_id"),
		Status:   jobs.JobStatus(query.Get("status")),
		Limit:    queryInt(r, "limit", 0),
		Offset:   queryInt(r, "offset", 0),
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		logFailure(requestLogger(r, h.log), r, err)
		middleware.WriteError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// requestLogger prefers the request-scoped logger set by middleware.
func requestLogger(r *http.Request, base zerolog.Logger) zerolog.Logger {
	if l, ok := r.Context().Value(logger.LoggerKey).(zerolog.Logger); ok {
		return l
	}
	return base
}

func logFailure(log zerolog.Logger, r *http.Request, err error) {
	if apperrors.IsOperational(err) {
		log.Info().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		return
	}
	log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
}
