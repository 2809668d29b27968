package services

import (
	"fmt"
	"time"

	"github.com/Lllllllleong/stickerflow/internal/gcp"
)

// Storage, persistence and progress backends.
const (
	BackendGCS       = "gcs"
	BackendS3        = "s3"
	BackendFirestore = "firestore"
	BackendPostgres  = "postgres"
	BackendMemory    = "memory"
	BackendRedis     = "redis"
)

// UploadConfig holds all configuration for the upload processor service.
type UploadConfig struct {
	ProjectID      string
	VertexAIRegion string
	VertexModel    string

	StorageBackend string
	UploadBucket   string
	S3Bucket       string
	S3Region       string
	S3Endpoint     string

	PersistenceBackend string
	LabelsCollection   string
	UploadsCollection  string
	RunStatusEnabled   bool
	DatabaseURL        string

	ProgressBackend string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int

	KeyPolicy      KeyPolicy
	MaxUploadBytes int64
	RunTimeout     time.Duration
	RunRetention   time.Duration
	UploadRamp     RampConfig
	ExtractRamp    RampConfig
	PersistRamp    RampConfig

	WorkflowID       string
	WorkflowLocation string

	AuthDisabled bool
	AuthAudience string
}

// DefaultUploadConfig returns the settings used when nothing is configured.
// The ramps match the cadence observers were built against.
func DefaultUploadConfig() UploadConfig {
	return UploadConfig{
		VertexAIRegion:     "us-central1",
		StorageBackend:     BackendGCS,
		PersistenceBackend: BackendFirestore,
		LabelsCollection:   "product_labels",
		UploadsCollection:  "uploads",
		RunStatusEnabled:   true,
		ProgressBackend:    BackendMemory,
		KeyPolicy:          KeyByIdentifier,
		MaxUploadBytes:     10 << 20,
		RunTimeout:         5 * time.Minute,
		RunRetention:       DefaultRunRetention,
		UploadRamp:         RampConfig{From: 0, To: 40, Step: 5, Interval: 500 * time.Millisecond},
		ExtractRamp:        RampConfig{From: 40, To: 70, Step: 5, Interval: 1250 * time.Millisecond},
		PersistRamp:        RampConfig{From: 70, To: 95, Step: 5, Interval: 500 * time.Millisecond},
		WorkflowLocation:   "us-central1",
	}
}

// LoadUploadConfig loads and validates all necessary environment variables for this service.
func LoadUploadConfig() (*UploadConfig, error) {
	cfg := DefaultUploadConfig()

	cfg.ProjectID = gcp.GetEnv("PROJECT_ID", "")
	cfg.VertexAIRegion = gcp.GetEnv("VERTEX_AI_REGION", cfg.VertexAIRegion)
	cfg.VertexModel = gcp.GetEnv("VERTEX_MODEL", gcp.DefaultStickerModel)
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	cfg.StorageBackend = gcp.GetEnv("STORAGE_BACKEND", cfg.StorageBackend)
	cfg.UploadBucket = gcp.GetEnv("UPLOAD_BUCKET", "")
	cfg.S3Bucket = gcp.GetEnv("AWS_BUCKET_NAME", "")
	cfg.S3Region = gcp.GetEnv("AWS_REGION", "")
	cfg.S3Endpoint = gcp.GetEnv("AWS_ENDPOINT_URL", "")
	switch cfg.StorageBackend {
	case BackendGCS:
		if cfg.UploadBucket == "" {
			return nil, fmt.Errorf("UPLOAD_BUCKET environment variable must be set")
		}
	case BackendS3:
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("AWS_BUCKET_NAME environment variable must be set")
		}
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}

	cfg.PersistenceBackend = gcp.GetEnv("PERSISTENCE_BACKEND", cfg.PersistenceBackend)
	cfg.LabelsCollection = gcp.GetEnv("LABELS_COLLECTION", cfg.LabelsCollection)
	cfg.UploadsCollection = gcp.GetEnv("UPLOADS_COLLECTION", cfg.UploadsCollection)
	cfg.RunStatusEnabled = gcp.GetEnvBool("RUN_STATUS_ENABLED", cfg.RunStatusEnabled)
	cfg.DatabaseURL = gcp.GetEnv("DATABASE_URL", "")
	switch cfg.PersistenceBackend {
	case BackendFirestore:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable must be set")
		}
	default:
		return nil, fmt.Errorf("unknown PERSISTENCE_BACKEND %q", cfg.PersistenceBackend)
	}

	cfg.ProgressBackend = gcp.GetEnv("PROGRESS_BACKEND", cfg.ProgressBackend)
	cfg.RedisAddr = gcp.GetEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = gcp.GetEnv("REDIS_PASSWORD", "")
	cfg.RedisDB = gcp.GetEnvInt("REDIS_DB", 0)
	if cfg.ProgressBackend != BackendMemory && cfg.ProgressBackend != BackendRedis {
		return nil, fmt.Errorf("unknown PROGRESS_BACKEND %q", cfg.ProgressBackend)
	}

	policy, err := ParseKeyPolicy(gcp.GetEnv("DEDUP_KEY_POLICY", string(cfg.KeyPolicy)))
	if err != nil {
		return nil, err
	}
	cfg.KeyPolicy = policy

	cfg.MaxUploadBytes = int64(gcp.GetEnvInt("MAX_UPLOAD_BYTES", int(cfg.MaxUploadBytes)))
	cfg.RunTimeout = gcp.GetEnvDuration("RUN_TIMEOUT", cfg.RunTimeout)
	cfg.RunRetention = gcp.GetEnvDuration("RUN_RETENTION", cfg.RunRetention)
	cfg.UploadRamp.Interval = gcp.GetEnvDuration("UPLOAD_RAMP_INTERVAL", cfg.UploadRamp.Interval)
	cfg.ExtractRamp.Interval = gcp.GetEnvDuration("EXTRACT_RAMP_INTERVAL", cfg.ExtractRamp.Interval)
	cfg.PersistRamp.Interval = gcp.GetEnvDuration("PERSIST_RAMP_INTERVAL", cfg.PersistRamp.Interval)

	cfg.WorkflowID = gcp.GetEnv("WORKFLOW_ID", "")
	cfg.WorkflowLocation = gcp.GetEnv("WORKFLOW_LOCATION", cfg.WorkflowLocation)

	cfg.AuthDisabled = gcp.GetEnvBool("AUTH_DISABLED", false)
	cfg.AuthAudience = gcp.GetEnv("AUTH_AUDIENCE", "")

	return &cfg, nil
}
