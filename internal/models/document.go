package models

import "time"

// Upload run statuses recorded on the UploadRun document.
const (
	StatusUploading  = "UPLOADING"
	StatusExtracting = "EXTRACTING"
	StatusPersisting = "PERSISTING"
	StatusComplete   = "COMPLETE"
	StatusFailed     = "FAILED"
)

// UploadRun represents the status record of one processing run in Firestore.
// It is informational only; runs are never resumed from it.
type UploadRun struct {
	FileHash       string    `firestore:"fileHash,omitempty"`
	DocumentName   string    `firestore:"documentName,omitempty"`
	UserID         string    `firestore:"userId,omitempty"`
	ContentType    string    `firestore:"contentType,omitempty"`
	Status         string    `firestore:"status,omitempty"`
	ErrorKind      string    `firestore:"errorKind,omitempty"`
	ErrorDetails   string    `firestore:"errorDetails,omitempty"`
	StorageLocator string    `firestore:"fileKey,omitempty"`
	StickerCount   int       `firestore:"stickerCount,omitempty"`
	RowCount       int       `firestore:"rowCount,omitempty"`
	CreatedAt      time.Time `firestore:"createdAt,omitempty"`
}
