package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Lllllllleong/stickerflow/internal/api"
	"github.com/Lllllllleong/stickerflow/internal/models"
	"github.com/Lllllllleong/stickerflow/internal/progress"
	"github.com/Lllllllleong/stickerflow/internal/services"
)

type processOptions struct {
	documentName  string
	userID        string
	hospital      string
	doctor        string
	procedureName string
	procedureDate string
	billingNo     string
	noProgress    bool
}

func newProcessCmd() *cobra.Command {
	opts := &processOptions{}
	cmd := &cobra.Command{
		Use:   "process FILE",
		Short: "Store, extract and save the stickers in one image or PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd.Context(), args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.documentName, "document", "", "document name (defaults to the file name)")
	cmd.Flags().StringVar(&opts.userID, "user", os.Getenv("USER"), "user the rows are recorded for")
	cmd.Flags().StringVar(&opts.hospital, "hospital", "", "hospital of the procedure")
	cmd.Flags().StringVar(&opts.doctor, "doctor", "", "doctor of the procedure")
	cmd.Flags().StringVar(&opts.procedureName, "procedure", "", "procedure name")
	cmd.Flags().StringVar(&opts.procedureDate, "procedure-date", "", "procedure date, YYYY-MM-DD or RFC 3339")
	cmd.Flags().StringVar(&opts.billingNo, "billing-no", "", "billing number")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "do not render a progress bar")
	return cmd
}

func runProcess(ctx context.Context, path string, opts *processOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	procedure, err := opts.procedure()
	if err != nil {
		return err
	}

	rt, err := services.NewRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	req := &models.UploadRequest{
		RunID:        uuid.NewString(),
		Data:         data,
		ContentType:  detectContentType(path, data),
		Filename:     filepath.Base(path),
		DocumentName: opts.documentName,
		UserID:       opts.userID,
		Procedure:    procedure,
	}

	events, unsubscribe, err := rt.Bus.Subscribe(ctx, req.RunID)
	if err != nil {
		return fmt.Errorf("failed to subscribe to progress: %w", err)
	}
	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		renderProgress(events, opts.noProgress)
	}()

	res, procErr := rt.Processor.Process(ctx, req, progress.ForRun(rt.Bus, req.RunID))
	if !awaitRendered(rendered, terminalWait) {
		slog.Debug("Terminal progress event did not arrive in time.", "runId", req.RunID)
	}
	unsubscribe()
	<-rendered
	if procErr != nil {
		return procErr
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// terminalWait bounds how long the CLI waits for the terminal event after
// the run has returned. Events published through Redis arrive asynchronously.
const terminalWait = 2 * time.Second

// awaitRendered reports whether rendering finished within timeout.
func awaitRendered(rendered <-chan struct{}, timeout time.Duration) bool {
	select {
	case <-rendered:
		return true
	case <-time.After(timeout):
		return false
	}
}

// renderProgress draws the run's ticks until the terminal event or until the
// subscription is closed. It reports whether the terminal event was seen.
func renderProgress(events <-chan models.ProgressEvent, quiet bool) bool {
	var bar *progressbar.ProgressBar
	if !quiet {
		bar = progressbar.NewOptions(100,
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("processing"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprint(os.Stderr, "\n")
			}),
		)
	}
	for ev := range events {
		if bar != nil {
			switch ev.Kind {
			case models.EventProgress:
				_ = bar.Set(ev.Progress)
			case models.EventComplete:
				_ = bar.Finish()
			case models.EventError:
				bar.Describe("failed: " + ev.Message)
				_ = bar.Exit()
				fmt.Fprint(os.Stderr, "\n")
			}
		}
		if ev.Terminal() {
			return true
		}
	}
	return false
}

func (o *processOptions) procedure() (*models.ProcedureInfo, error) {
	info := models.ProcedureInfo{
		Hospital:      o.hospital,
		Doctor:        o.doctor,
		ProcedureName: o.procedureName,
		BillingNo:     o.billingNo,
	}
	if o.procedureDate != "" {
		date, err := api.ParseProcedureDate(o.procedureDate)
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

func detectContentType(path string, data []byte) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".webp":
		return "image/webp"
	case ".tif", ".tiff":
		return "image/tiff"
	}
	return http.DetectContentType(data)
}
