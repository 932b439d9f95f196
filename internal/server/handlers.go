package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/smartdub-api/internal/account"
	"github.com/maauso/smartdub-api/internal/job"
)

// DefaultMaxUploadBytes bounds the multipart body of POST /jobs.
const DefaultMaxUploadBytes = 1 << 30

// multipartMemory is the part of an upload kept in memory before spilling to disk.
const multipartMemory = 32 << 20

// Uploads stores incoming videos until a job owns them.
type Uploads interface {
	SaveTemp(ctx context.Context, name string, data io.Reader) (string, error)
	CleanupTemp(ctx context.Context, paths []string) error
}

// Worker reports whether a job is being processed.
type Worker interface {
	Busy() bool
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	jobs           *job.Service
	accounts       *account.Service
	uploads        Uploads
	worker         Worker
	validator      *validator.Validate
	logger         *slog.Logger
	adminToken     string
	mediaDir       string
	maxUploadBytes int64
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAdminToken enables the top-up endpoint for callers presenting token.
func WithAdminToken(token string) HandlerOption {
	return func(h *Handlers) {
		h.adminToken = token
	}
}

// WithMediaDir sets the directory served under /media/.
func WithMediaDir(dir string) HandlerOption {
	return func(h *Handlers) {
		h.mediaDir = dir
	}
}

// WithMaxUploadBytes bounds the size of uploaded videos.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(jobs *job.Service, accounts *account.Service, uploads Uploads, worker Worker, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		jobs:           jobs,
		accounts:       accounts,
		uploads:        uploads,
		worker:         worker,
		validator:      validator.New(),
		logger:         logger,
		maxUploadBytes: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if h.worker != nil {
		resp.WorkerBusy = h.worker.Busy()
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateJob handles POST /jobs: a multipart upload with the video, the
// account code and the target language.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large", "UPLOAD_TOO_LARGE")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart body", "INVALID_MULTIPART")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	form := submitForm{
		Code:           strings.TrimSpace(r.FormValue("code")),
		TargetLanguage: strings.TrimSpace(r.FormValue("target_language")),
	}
	if err := h.validator.Struct(form); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	file, header, err := r.FormFile("video")
	if err != nil {
		writeError(w, http.StatusBadRequest, "video file is required", "MISSING_VIDEO")
		return
	}
	defer func() { _ = file.Close() }()

	inputPath, err := h.uploads.SaveTemp(r.Context(), uploadName(header.Filename), file)
	if err != nil {
		h.logger.Error("failed to store upload", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to store upload", "UPLOAD_FAILED")
		return
	}

	created, err := h.jobs.Submit(r.Context(), job.SubmitInput{
		AccountCode:    form.Code,
		InputPath:      inputPath,
		TargetLanguage: form.TargetLanguage,
	})
	if err != nil {
		if cerr := h.uploads.CleanupTemp(context.WithoutCancel(r.Context()), []string{inputPath}); cerr != nil {
			h.logger.Warn("failed to remove rejected upload",
				slog.String("path", inputPath),
				slog.String("error", cerr.Error()),
			)
		}
		h.writeSubmitError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		JobID:  created.ID,
		Status: string(created.Status),
	})
}

func (h *Handlers) writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, account.ErrAccountNotFound):
		writeError(w, http.StatusPaymentRequired, "limit", "ACCOUNT_NOT_FOUND")
	case errors.Is(err, account.ErrInsufficientCredits):
		writeError(w, http.StatusPaymentRequired, "limit", "INSUFFICIENT_CREDITS")
	case errors.Is(err, account.ErrUsageExhausted):
		writeError(w, http.StatusPaymentRequired, "limit", "USAGE_EXHAUSTED")
	case errors.Is(err, job.ErrInvalidSubmission):
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
	default:
		h.logger.Error("failed to submit job", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
	}
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid job ID", "INVALID_JOB_ID")
		return
	}

	view, err := h.jobs.GetStatus(r.Context(), id)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get job",
			slog.Int64("job_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	resp := JobResponse{JobID: view.ID, Status: string(view.Status)}
	if view.Status == job.StatusDone {
		u := outputURL(view.OutputRef)
		resp.OutputURL = &u
	}
	writeJSON(w, http.StatusOK, resp)
}

// Media handles GET /media/{file}, serving finished videos from the
// output directory.
func (h *Handlers) Media(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("file")
	if h.mediaDir == "" || name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		writeError(w, http.StatusNotFound, "not found", "NOT_FOUND")
		return
	}

	path := filepath.Join(h.mediaDir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "not found", "NOT_FOUND")
		return
	}
	http.ServeFile(w, r, path)
}

// outputURL maps an output reference to what clients fetch: published
// URLs pass through, local files are exposed under /media/.
func outputURL(ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	return "/media/" + filepath.Base(ref)
}

// uploadName keeps the client's file name as a hint only.
func uploadName(name string) string {
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "upload"
	}
	return name
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
