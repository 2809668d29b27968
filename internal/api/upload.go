package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Lllllllleong/stickerflow/internal/models"
	"github.com/Lllllllleong/stickerflow/internal/progress"
	"github.com/Lllllllleong/stickerflow/internal/services"
)

// multipartOverhead is the allowance for form fields and part headers on top
// of the file itself.
const multipartOverhead = 1 << 20

// StatusForKind maps a run failure to its HTTP status.
func StatusForKind(kind services.ErrorKind) int {
	switch kind {
	case services.KindUnauthenticated:
		return http.StatusUnauthorized
	case services.KindUnsupportedMediaType:
		return http.StatusBadRequest
	case services.KindRunConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// handleUpload accepts a multipart form with a "file" part plus optional
// runId, documentName and procedure fields, and runs it synchronously.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+multipartOverhead)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large", "", "", err)
			return
		}
		writeError(w, http.StatusBadRequest, "could not parse multipart form", "", "", err)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded", "", "", err)
		return
	}
	defer file.Close()

	if s.maxUploadBytes > 0 && header.Size > s.maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large", "", "", fmt.Errorf("%d bytes exceeds limit of %d", header.Size, s.maxUploadBytes))
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read uploaded file", "", "", err)
		return
	}

	runID := strings.TrimSpace(r.FormValue("runId"))
	if runID == "" {
		runID = uuid.NewString()
	} else if _, err := uuid.Parse(runID); err != nil {
		writeError(w, http.StatusBadRequest, "runId must be a UUID", "", "", err)
		return
	}

	procedure, err := parseProcedure(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid procedure metadata", "", runID, err)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	req := &models.UploadRequest{
		RunID:        runID,
		Data:         data,
		ContentType:  contentType,
		Filename:     header.Filename,
		DocumentName: strings.TrimSpace(r.FormValue("documentName")),
		UserID:       UserFromContext(r.Context()),
		Procedure:    procedure,
	}

	res, err := s.processor.Process(r.Context(), req, progress.ForRun(s.bus, runID))
	if err != nil {
		var perr *services.ProcessError
		if errors.As(err, &perr) {
			writeError(w, StatusForKind(perr.Kind), perr.Message, string(perr.Kind), runID, perr.Err)
			return
		}
		slog.Error("Upload failed with an untyped error.", "runId", runID, "error", err)
		writeError(w, http.StatusInternalServerError, "processing failed", "", runID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// parseProcedure reads the optional procedure fields. It returns nil when
// none are set.
func parseProcedure(r *http.Request) (*models.ProcedureInfo, error) {
	info := models.ProcedureInfo{
		Hospital:      strings.TrimSpace(r.FormValue("hospital")),
		Doctor:        strings.TrimSpace(r.FormValue("doctor")),
		ProcedureName: strings.TrimSpace(r.FormValue("procedure")),
		BillingNo:     strings.TrimSpace(r.FormValue("billingNo")),
	}
	if raw := strings.TrimSpace(r.FormValue("procedureDate")); raw != "" {
		date, err := ParseProcedureDate(raw)
		if err != nil {
			return nil, err
		}
		info.Date = &date
	}
	if info == (models.ProcedureInfo{}) {
		return nil, nil
	}
	return &info, nil
}

// ParseProcedureDate accepts YYYY-MM-DD or RFC 3339.
func ParseProcedureDate(raw string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("procedureDate %q is neither YYYY-MM-DD nor RFC 3339", raw)
	}
	return t.UTC(), nil
}
