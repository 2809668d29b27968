package models

// These structs define the request-scoped input of an upload run and the JSON
// payloads returned to the HTTP caller.

// UploadRequest is everything one processing run needs. It lives only for the
// duration of that run.
type UploadRequest struct {
	RunID        string
	Data         []byte
	ContentType  string
	Filename     string
	DocumentName string
	UserID       string
	Procedure    *ProcedureInfo
}

// UploadResponse is returned when a run completes.
type UploadResponse struct {
	Message   string    `json:"message"`
	RunID     string    `json:"runId"`
	FileKey   string    `json:"fileKey"`
	Extracted []Sticker `json:"extracted"`
}

// ErrorResponse is returned when a run, or the request itself, fails.
type ErrorResponse struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
	Error   string `json:"error,omitempty"`
	RunID   string `json:"runId,omitempty"`
}

// ExportWorkflowArgs is the argument handed to the export workflow once a run
// has completed.
type ExportWorkflowArgs struct {
	RunID        string `json:"runId"`
	DocumentName string `json:"documentName"`
	UserID       string `json:"userId"`
	FileKey      string `json:"fileKey"`
	RowCount     int    `json:"rowCount"`
}
