package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/nuntio/internal/common"
	"github.com/ternarybob/nuntio/internal/models"
	"github.com/ternarybob/nuntio/internal/services/events"
	"github.com/ternarybob/nuntio/internal/services/spreadsheet"
	"github.com/ternarybob/nuntio/internal/services/uploads"
)

// MobileColumn is the spreadsheet column carrying recipient phone
// numbers. Matching is case-insensitive.
const MobileColumn = "Mobile Number"

// ImageURLColumn optionally names a per-row image to attach.
const ImageURLColumn = "ImageURL"

// SubmitRequest carries one validated job submission. Paths point at
// files already staged by the upload service.
type SubmitRequest struct {
	NamelistPath string `validate:"required"`
	Template     string `validate:"required"`
	ImagePaths   []string
	DocumentPath string
	TargetURL    string `validate:"omitempty,url"`
}

// Task is the handle for one running automation task. The runner keeps
// a handle per job so lifecycle (start, completion, failure) stays
// observable instead of a detached goroutine.
type Task struct {
	JobID     string
	StartedAt time.Time

	mu     sync.RWMutex
	status models.JobStatus
	done   chan struct{}
}

// Status returns the task's current lifecycle state.
func (t *Task) Status() models.JobStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Done is closed when the task reaches a terminal state.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) setStatus(s models.JobStatus) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

// Runner validates submissions, allocates job IDs, and launches exactly
// one automation task per job. Tasks run to completion regardless of
// whether any stream is attached; there is no external cancellation.
type Runner struct {
	registry *events.Registry
	driver   Driver
	staging  *uploads.Service
	cfg      common.SenderConfig
	logger   arbor.ILogger
	validate *validator.Validate

	mu    sync.RWMutex
	tasks map[string]*Task
	wg    sync.WaitGroup
}

// NewRunner creates a job runner.
func NewRunner(registry *events.Registry, driver Driver, staging *uploads.Service, cfg common.SenderConfig, logger arbor.ILogger) *Runner {
	return &Runner{
		registry: registry,
		driver:   driver,
		staging:  staging,
		cfg:      cfg,
		logger:   logger,
		validate: validator.New(),
		tasks:    make(map[string]*Task),
	}
}

// Submit validates the request, allocates a job ID, publishes the
// acknowledgement line, and starts the automation task. It returns the
// job ID immediately without waiting for the task.
func (r *Runner) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if err := r.validate.Struct(req); err != nil {
		return "", fmt.Errorf("invalid submission: %w", err)
	}

	sheet, err := spreadsheet.Read(req.NamelistPath)
	if err != nil {
		return "", fmt.Errorf("failed to read recipient list: %w", err)
	}

	mobileCol, ok := sheet.FindColumn(MobileColumn)
	if !ok {
		return "", fmt.Errorf("missing %q column", MobileColumn)
	}
	imageCol, _ := sheet.FindColumn(ImageURLColumn)

	recipients, skipped := r.buildRecipients(sheet, mobileCol, imageCol, req.Template)
	if len(recipients) == 0 {
		return "", fmt.Errorf("no valid recipients after normalization (%d skipped)", len(skipped))
	}

	jobID := common.NewJobID()
	pub := r.registry.Publisher(jobID)
	pub.Infof("Job received")

	task := &Task{
		JobID:     jobID,
		StartedAt: time.Now(),
		status:    models.JobStatusRunning,
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	r.tasks[jobID] = task
	r.mu.Unlock()

	spec := RunSpec{
		JobID:        jobID,
		TargetURL:    req.TargetURL,
		Recipients:   recipients,
		ImagePaths:   req.ImagePaths,
		DocumentPath: req.DocumentPath,
	}

	r.wg.Add(1)
	common.SafeGo(r.logger, "job:"+jobID, func() {
		r.run(task, spec, pub, skipped)
	})

	r.logger.Info().
		Str("job_id", jobID).
		Int("recipients", len(recipients)).
		Int("skipped", len(skipped)).
		Msg("Send job started")

	return jobID, nil
}

// buildRecipients normalizes each row's phone value and expands the
// message template. Rows whose phone fails normalization are recorded
// and excluded; rows with an empty phone cell are silently dropped.
func (r *Runner) buildRecipients(sheet *spreadsheet.Sheet, mobileCol, imageCol, template string) ([]models.Recipient, []models.SkippedRow) {
	var recipients []models.Recipient
	var skipped []models.SkippedRow

	for i, row := range sheet.Rows {
		raw := strings.TrimSpace(row[mobileCol])
		if raw == "" {
			continue
		}

		rowIndex := i + 2 // 1-based, after the header row

		phone, ok := NormalizePhone(raw, r.cfg.DefaultCountryCode)
		if !ok {
			skipped = append(skipped, models.SkippedRow{Row: rowIndex, Raw: raw})
			continue
		}

		rec := models.Recipient{
			Row:     rowIndex,
			Phone:   phone,
			Raw:     raw,
			Values:  row,
			Message: ExpandTemplate(template, row),
		}
		if imageCol != "" {
			rec.ImageURL = strings.TrimSpace(row[imageCol])
		}
		recipients = append(recipients, rec)
	}

	return recipients, skipped
}

// run is the automation task body. It owns all publishing for its job
// after submission; every outcome, fatal errors included, ends with the
// terminal completion line.
func (r *Runner) run(task *Task, spec RunSpec, pub *events.Publisher, skipped []models.SkippedRow) {
	defer r.wg.Done()
	defer close(task.done)

	defer func() {
		if rec := recover(); rec != nil {
			pub.Errorf("Fatal error: %v", rec)
			task.setStatus(models.JobStatusFailed)
			pub.Infof("Process COMPLETED.")
		}
	}()

	if len(skipped) > 0 {
		first := skipped[0]
		pub.Warnf("Skipped %d invalid number(s); first failure at row %d: %q", len(skipped), first.Row, first.Raw)
	}

	// The task deliberately outlives the submitting HTTP request; a
	// client disconnect stops delivery, never the job.
	ctx := context.Background()

	r.stageRowImages(ctx, spec.Recipients, pub)

	failed, err := r.driver.Run(ctx, spec, pub)
	if err != nil {
		pub.Errorf("Fatal error: %v", err)
		task.setStatus(models.JobStatusFailed)
	} else {
		task.setStatus(models.JobStatusCompleted)
	}

	failedJSON, _ := json.Marshal(failed)
	pub.Infof("Failed numbers: %s", failedJSON)
	pub.Infof("Process COMPLETED.")

	r.logger.Info().
		Str("job_id", spec.JobID).
		Str("status", string(task.Status())).
		Int("failed", len(failed)).
		Dur("duration", time.Since(task.StartedAt)).
		Msg("Send job finished")
}

// stageRowImages downloads per-row image URLs into staging before the
// send loop. A failed download is a per-recipient warning, never fatal.
func (r *Runner) stageRowImages(ctx context.Context, recipients []models.Recipient, pub *events.Publisher) {
	if r.staging == nil {
		return
	}
	for i := range recipients {
		rec := &recipients[i]
		if rec.ImageURL == "" {
			continue
		}
		if !strings.HasPrefix(rec.ImageURL, "http://") && !strings.HasPrefix(rec.ImageURL, "https://") {
			// Trust local paths, e.g. a mounted volume
			rec.ImagePath = rec.ImageURL
			continue
		}
		path, err := r.staging.FetchRemote(ctx, rec.ImageURL)
		if err != nil {
			pub.Warnf("Failed to load per-row image for %s: %v", rec.Phone, err)
			continue
		}
		rec.ImagePath = path
		pub.Infof("Downloaded image for %s", rec.Phone)
	}
}

// Status returns a job's task state. ok is false for unknown job IDs.
func (r *Runner) Status(jobID string) (models.JobStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[jobID]
	if !ok {
		return "", false
	}
	return task.Status(), true
}

// Task returns the handle for a job's automation task.
func (r *Runner) Task(jobID string) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[jobID]
	return task, ok
}

// ActiveCount returns the number of tasks still running.
func (r *Runner) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, task := range r.tasks {
		if task.Status() == models.JobStatusRunning {
			count++
		}
	}
	return count
}

// Wait blocks until all tasks finish or the context expires.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for %d running job(s): %w", r.ActiveCount(), ctx.Err())
	}
}
