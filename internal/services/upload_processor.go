package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/Lllllllleong/stickerflow/internal/extraction"
	"github.com/Lllllllleong/stickerflow/internal/models"
	"github.com/Lllllllleong/stickerflow/internal/progress"
)

// ObjectStore stores the raw upload and returns a durable locator for it.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Extractor turns raw image or PDF bytes into recognised stickers.
type Extractor interface {
	Extract(ctx context.Context, data []byte, mimeType string) ([]models.Sticker, error)
}

// LabelWriter appends one aggregated sticker row.
type LabelWriter interface {
	InsertLabel(ctx context.Context, row models.LabelRow) error
}

// RunRecorder keeps the informational status document of a run.
type RunRecorder interface {
	Start(ctx context.Context, runID string, run models.UploadRun) error
	UpdateStatus(ctx context.Context, runID, status string, fields map[string]interface{}) error
}

// ExportTrigger starts the downstream export once a run has completed.
type ExportTrigger interface {
	TriggerExport(ctx context.Context, args models.ExportWorkflowArgs) error
}

// Dependencies are the collaborators of an UploadProcessor. Store, Extractor
// and Writer are required; Recorder and Exporter may be nil.
type Dependencies struct {
	Store     ObjectStore
	Extractor Extractor
	Writer    LabelWriter
	Recorder  RunRecorder
	Exporter  ExportTrigger
}

// UploadProcessor sequences storage, extraction, aggregation and persistence
// for one upload, and reports progress while doing so.
type UploadProcessor struct {
	config UploadConfig
	deps   Dependencies
	runs   *RunRegistry
}

// NewUploadProcessor creates a new UploadProcessor instance.
func NewUploadProcessor(config UploadConfig, deps Dependencies) *UploadProcessor {
	return &UploadProcessor{config: config, deps: deps, runs: NewRunRegistry(config.RunRetention)}
}

// Reserve lets userID observe runID before uploading it. It fails with
// ErrRunForbidden when the run belongs to another user.
func (p *UploadProcessor) Reserve(runID, userID string) error {
	return p.runs.Reserve(runID, userID)
}

// Config returns the processor's configuration.
func (p *UploadProcessor) Config() UploadConfig {
	return p.config
}

var whitespacePattern = regexp.MustCompile(`\s+`)

// StorageKey is the object key an upload is stored under.
func StorageKey(req *models.UploadRequest) string {
	name := path.Base(strings.ReplaceAll(req.Filename, "\\", "/"))
	if name == "." || name == "/" || strings.TrimSpace(name) == "" {
		name = "upload"
	}
	name = whitespacePattern.ReplaceAllString(strings.TrimSpace(name), "_")
	return fmt.Sprintf("uploads/%s/%s", req.RunID, name)
}

// Process runs one upload to completion or failure. Exactly one terminal event
// is broadcast through notifier, and it is the last event of the run.
// Cancelling ctx does not stop a started run; only the configured RunTimeout
// bounds it. A run ID that is running or finished recently is refused with a
// RunConflict error and no event is broadcast for it.
func (p *UploadProcessor) Process(ctx context.Context, req *models.UploadRequest, notifier progress.Notifier) (*models.UploadResponse, error) {
	logCtx := slog.With("runId", req.RunID, "userId", req.UserID, "document", req.DocumentName)

	// --- 1. Claim the run ID ---
	if err := p.runs.Claim(req.RunID, req.UserID); err != nil {
		logCtx.Warn("Rejected upload with a run ID already in use.", "error", err)
		return nil, newProcessError(KindRunConflict, "run ID is already in use", err)
	}
	t := newTracker(ctx, req.RunID, notifier)

	// --- 2. Validate the request before any external call ---
	if strings.TrimSpace(req.UserID) == "" {
		return nil, p.reject(t, logCtx, newProcessError(KindUnauthenticated, "authentication required", nil))
	}
	media, err := InspectMedia(req.ContentType, req.Data)
	if err != nil {
		return nil, p.reject(t, logCtx, newProcessError(KindUnsupportedMediaType, "only image and PDF uploads are supported", err))
	}
	defer p.runs.Finish(req.RunID)
	if req.DocumentName == "" {
		req.DocumentName = req.Filename
	}

	runCtx := context.WithoutCancel(ctx)
	if p.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, p.config.RunTimeout)
		defer cancel()
	}

	logCtx.Info("Starting upload run.", "contentType", media.MIMEType, "bytes", len(req.Data), "pages", media.Pages)
	t.tick(0)
	p.recordStart(runCtx, logCtx, req, media)

	// --- 3. Store the raw upload ---
	key := StorageKey(req)
	var locator string
	err = runStage(runCtx, t, p.config.UploadRamp, func(ctx context.Context) error {
		var putErr error
		locator, putErr = p.deps.Store.Put(ctx, key, req.Data, media.MIMEType)
		return putErr
	})
	if err != nil {
		return nil, p.fail(runCtx, t, logCtx, req.RunID, newProcessError(KindStorageFailure, "failed to store upload", err))
	}
	t.tick(p.config.UploadRamp.To)
	logCtx.Info("Upload stored.", "locator", locator)
	p.recordStatus(runCtx, logCtx, req.RunID, models.StatusExtracting, map[string]interface{}{"fileKey": locator})

	// --- 4. Extract stickers ---
	var stickers []models.Sticker
	err = runStage(runCtx, t, p.config.ExtractRamp, func(ctx context.Context) error {
		var extractErr error
		stickers, extractErr = p.deps.Extractor.Extract(ctx, req.Data, media.MIMEType)
		return extractErr
	})
	if err != nil {
		if errors.Is(err, extraction.ErrMalformed) {
			return nil, p.fail(runCtx, t, logCtx, req.RunID, newProcessError(KindMalformedExtraction, "could not read stickers from the recognition result", err))
		}
		return nil, p.fail(runCtx, t, logCtx, req.RunID, newProcessError(KindExtractionFailure, "failed to extract stickers", err))
	}
	if stickers == nil {
		stickers = []models.Sticker{}
	}
	t.tick(p.config.ExtractRamp.To)

	// --- 5. Aggregate ---
	agg := Aggregate(stickers, p.config.KeyPolicy)
	logCtx.Info("Stickers extracted.", "stickers", len(stickers), "distinct", agg.Len())
	p.recordStatus(runCtx, logCtx, req.RunID, models.StatusPersisting, map[string]interface{}{"stickerCount": len(stickers)})

	// --- 6. Persist one row per distinct sticker ---
	written := 0
	err = runStage(runCtx, t, p.config.PersistRamp, func(ctx context.Context) error {
		for _, rec := range agg.Records() {
			if err := p.deps.Writer.InsertLabel(ctx, models.NewLabelRow(req, locator, rec)); err != nil {
				return fmt.Errorf("failed to insert row %d of %d: %w", written+1, agg.Len(), err)
			}
			written++
		}
		return nil
	})
	if err != nil {
		logCtx.Warn("Persistence aborted; rows already written are kept.", "written", written)
		return nil, p.fail(runCtx, t, logCtx, req.RunID, newProcessError(KindPersistenceFailure, "failed to save stickers", err))
	}

	// --- 7. Complete ---
	t.tick(100)
	t.finish(models.NewComplete(req.RunID, "Processing complete"))
	p.recordStatus(runCtx, logCtx, req.RunID, models.StatusComplete, map[string]interface{}{"rowCount": written})
	p.triggerExport(runCtx, logCtx, models.ExportWorkflowArgs{
		RunID:        req.RunID,
		DocumentName: req.DocumentName,
		UserID:       req.UserID,
		FileKey:      locator,
		RowCount:     written,
	})

	logCtx.Info("Upload run complete.", "rows", written)
	return &models.UploadResponse{
		Message:   "Image processed successfully",
		RunID:     req.RunID,
		FileKey:   locator,
		Extracted: stickers,
	}, nil
}

// reject ends a run that failed validation. Nothing has been recorded yet, so
// the run ID is released once the terminal event is out.
func (p *UploadProcessor) reject(t *tracker, logCtx *slog.Logger, perr *ProcessError) error {
	logCtx.Warn("Rejected upload.", "kind", perr.Kind, "error", perr)
	t.finish(models.NewFailure(t.runID, perr.Message))
	p.runs.Abandon(t.runID)
	return perr
}

// fail is the centralized error handler for a started run.
func (p *UploadProcessor) fail(ctx context.Context, t *tracker, logCtx *slog.Logger, runID string, perr *ProcessError) error {
	logCtx.Error("Upload run failed.", "kind", perr.Kind, "error", perr)
	t.finish(models.NewFailure(runID, perr.Message))
	p.recordStatus(ctx, logCtx, runID, models.StatusFailed, map[string]interface{}{
		"errorKind":    string(perr.Kind),
		"errorDetails": perr.Error(),
	})
	return perr
}

func (p *UploadProcessor) recordStart(ctx context.Context, logCtx *slog.Logger, req *models.UploadRequest, media MediaInfo) {
	if p.deps.Recorder == nil {
		return
	}
	hash := sha256.Sum256(req.Data)
	run := models.UploadRun{
		FileHash:     hex.EncodeToString(hash[:]),
		DocumentName: req.DocumentName,
		UserID:       req.UserID,
		ContentType:  media.MIMEType,
		Status:       models.StatusUploading,
		CreatedAt:    time.Now().UTC(),
	}
	if err := p.deps.Recorder.Start(ctx, req.RunID, run); err != nil {
		logCtx.Warn("Failed to record run start.", "error", err)
	}
}

// recordStatus is best-effort; the status document never decides the outcome
// of a run.
func (p *UploadProcessor) recordStatus(ctx context.Context, logCtx *slog.Logger, runID, status string, fields map[string]interface{}) {
	if p.deps.Recorder == nil {
		return
	}
	if err := p.deps.Recorder.UpdateStatus(ctx, runID, status, fields); err != nil {
		logCtx.Warn("Failed to update run status.", "status", status, "error", err)
	}
}

func (p *UploadProcessor) triggerExport(ctx context.Context, logCtx *slog.Logger, args models.ExportWorkflowArgs) {
	if p.deps.Exporter == nil {
		return
	}
	if err := p.deps.Exporter.TriggerExport(ctx, args); err != nil {
		logCtx.Warn("Failed to trigger export workflow.", "error", err)
	}
}
