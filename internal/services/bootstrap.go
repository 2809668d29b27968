package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/Lllllllleong/stickerflow/internal/gcp"
	"github.com/Lllllllleong/stickerflow/internal/postgres"
	"github.com/Lllllllleong/stickerflow/internal/progress"
	"github.com/Lllllllleong/stickerflow/internal/s3store"
)

// Runtime is a fully wired UploadProcessor together with the progress bus
// its observers subscribe to.
type Runtime struct {
	Config    UploadConfig
	Processor *UploadProcessor
	Bus       progress.Bus
	// IDTokens is nil when authentication is disabled or no audience is set.
	IDTokens *gcp.IDTokenVerifier

	closers []io.Closer
}

// NewRuntime loads the configuration from the environment and creates every
// client the configured backends need.
func NewRuntime(ctx context.Context) (*Runtime, error) {
	config, err := LoadUploadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return NewRuntimeFromConfig(ctx, *config)
}

// NewRuntimeFromConfig wires a Runtime for an explicit configuration.
func NewRuntimeFromConfig(ctx context.Context, config UploadConfig) (*Runtime, error) {
	rt := &Runtime{Config: config}
	var deps Dependencies

	fail := func(err error) (*Runtime, error) {
		_ = rt.Close()
		return nil, err
	}

	// --- 1. Object storage ---
	switch config.StorageBackend {
	case BackendS3:
		store, err := s3store.New(ctx, s3store.Config{Bucket: config.S3Bucket, Region: config.S3Region, Endpoint: config.S3Endpoint})
		if err != nil {
			return fail(fmt.Errorf("failed to create S3 store: %w", err))
		}
		deps.Store = store
	default:
		store, err := gcp.NewGCSStore(ctx, config.UploadBucket)
		if err != nil {
			return fail(fmt.Errorf("failed to create GCS store: %w", err))
		}
		rt.closers = append(rt.closers, store)
		deps.Store = store
	}

	// --- 2. Extraction ---
	vertexClient, err := gcp.NewVertexClient(ctx, config.ProjectID, config.VertexAIRegion, config.VertexModel)
	if err != nil {
		return fail(fmt.Errorf("failed to create vertex client: %w", err))
	}
	rt.closers = append(rt.closers, vertexClient)
	deps.Extractor = gcp.NewStickerExtractor(vertexClient)

	// --- 3. Persistence and run status ---
	needFirestore := config.PersistenceBackend == BackendFirestore || config.RunStatusEnabled
	if needFirestore {
		fsClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
		if err != nil {
			return fail(err)
		}
		rt.closers = append(rt.closers, fsClient)
		if config.PersistenceBackend == BackendFirestore {
			deps.Writer = gcp.NewLabelCollection(fsClient, config.LabelsCollection)
		}
		if config.RunStatusEnabled {
			deps.Recorder = gcp.NewRunStatusCollection(fsClient, config.UploadsCollection)
		}
	}
	if config.PersistenceBackend == BackendPostgres {
		db, err := postgres.Open(ctx, config.DatabaseURL)
		if err != nil {
			return fail(err)
		}
		rt.closers = append(rt.closers, db)
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return fail(err)
		}
		deps.Writer = postgres.NewLabelStore(db)
	}

	// --- 4. Export workflow ---
	if config.WorkflowID != "" {
		trigger, err := gcp.NewWorkflowTrigger(ctx, config.ProjectID, config.WorkflowLocation, config.WorkflowID)
		if err != nil {
			return fail(err)
		}
		rt.closers = append(rt.closers, trigger)
		deps.Exporter = trigger
	}

	// --- 5. Progress bus ---
	if config.ProgressBackend == BackendRedis {
		bus, err := progress.NewRedisBus(ctx, progress.RedisConfig{
			Addr:     config.RedisAddr,
			Password: config.RedisPassword,
			DB:       config.RedisDB,
		})
		if err != nil {
			return fail(fmt.Errorf("failed to connect progress bus: %w", err))
		}
		rt.Bus = bus
	} else {
		rt.Bus = progress.NewHub(progress.DefaultBuffer)
	}
	rt.closers = append(rt.closers, rt.Bus)

	if !config.AuthDisabled && config.AuthAudience != "" {
		rt.IDTokens = gcp.NewIDTokenVerifier(config.AuthAudience)
	}

	rt.Processor = NewUploadProcessor(config, deps)
	slog.Info("Upload processor initialized.",
		"storage", config.StorageBackend,
		"persistence", config.PersistenceBackend,
		"progress", config.ProgressBackend,
		"dedupPolicy", config.KeyPolicy,
		"exportWorkflow", config.WorkflowID != "",
	)
	return rt, nil
}

// Close releases every client in reverse creation order.
func (rt *Runtime) Close() error {
	var firstErr error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	rt.closers = nil
	return firstErr
}
