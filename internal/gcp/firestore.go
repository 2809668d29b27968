package gcp

import (
	"context"
	"fmt"
	"sort"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/stickerflow/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
// It centralizes client creation for all services.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// LabelCollection appends product label rows to a Firestore collection.
type LabelCollection struct {
	client     *firestore.Client
	collection string
}

func NewLabelCollection(client *firestore.Client, collection string) *LabelCollection {
	return &LabelCollection{client: client, collection: collection}
}

// InsertLabel adds one row as a new document with a generated ID.
func (c *LabelCollection) InsertLabel(ctx context.Context, row models.LabelRow) error {
	if _, _, err := c.client.Collection(c.collection).Add(ctx, row); err != nil {
		return fmt.Errorf("failed to add label document: %w", err)
	}
	return nil
}

// RunStatusCollection keeps one status document per upload run, keyed by run ID.
type RunStatusCollection struct {
	client     *firestore.Client
	collection string
}

func NewRunStatusCollection(client *firestore.Client, collection string) *RunStatusCollection {
	return &RunStatusCollection{client: client, collection: collection}
}

// Start creates the status document for a run.
func (c *RunStatusCollection) Start(ctx context.Context, runID string, run models.UploadRun) error {
	if _, err := c.client.Collection(c.collection).Doc(runID).Set(ctx, run); err != nil {
		return fmt.Errorf("failed to create run document: %w", err)
	}
	return nil
}

// UpdateStatus sets the status field plus any extra fields on the run document.
func (c *RunStatusCollection) UpdateStatus(ctx context.Context, runID, status string, fields map[string]interface{}) error {
	updates := []firestore.Update{
		{Path: "status", Value: status},
	}
	paths := make([]string, 0, len(fields))
	for path := range fields {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		updates = append(updates, firestore.Update{Path: path, Value: fields[path]})
	}
	if _, err := c.client.Collection(c.collection).Doc(runID).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update run status to %s: %w", status, err)
	}
	return nil
}
