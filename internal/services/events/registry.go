package events

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/nuntio/internal/models"
)

// subscriberBuffer sizes each subscriber's delivery channel. The SSE and
// WebSocket consumers drain continuously, so the buffer only has to absorb
// short bursts from the automation task.
const subscriberBuffer = 1024

// Registry owns every job's append-only log and its live subscriber set
// for the lifetime of the process. It is constructed once at the
// composition root and injected into the submission and streaming
// handlers; there is no ambient global instance.
type Registry struct {
	mu     sync.RWMutex
	jobs   map[string]*jobRecord
	tap    func(jobID string, line models.LogLine)
	logger arbor.ILogger
}

// jobRecord is the per-job state: the ordered log and the current
// subscriber channels. The record lock serializes appends against
// subscribe/unsubscribe so replay never misses or duplicates a line.
type jobRecord struct {
	mu      sync.Mutex
	lines   []models.LogLine
	subs    map[uint64]chan models.LogLine
	nextSub uint64
}

// NewRegistry creates an empty job registry. Appended lines are mirrored
// to the given process logger as an observability side channel.
func NewRegistry(logger arbor.ILogger) *Registry {
	return &Registry{
		jobs:   make(map[string]*jobRecord),
		logger: logger,
	}
}

// getOrCreate returns the record for jobID, creating an empty log and
// subscriber set on first use. Idempotent.
func (r *Registry) getOrCreate(jobID string) *jobRecord {
	r.mu.RLock()
	rec, ok := r.jobs[jobID]
	r.mu.RUnlock()
	if ok {
		return rec
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok = r.jobs[jobID]; ok {
		return rec
	}
	rec = &jobRecord{subs: make(map[uint64]chan models.LogLine)}
	r.jobs[jobID] = rec
	return rec
}

// Append adds line to the job's log and fans it out to every current
// subscriber. A slow subscriber whose buffer is full is skipped for that
// line rather than blocking the publisher or the other subscribers.
func (r *Registry) Append(jobID string, line models.LogLine) {
	rec := r.getOrCreate(jobID)

	rec.mu.Lock()
	rec.lines = append(rec.lines, line)
	for id, ch := range rec.subs {
		select {
		case ch <- line:
		default:
			r.logger.Warn().
				Str("job_id", jobID).
				Int64("subscriber", int64(id)).
				Msg("Subscriber buffer full, skipping line")
		}
	}
	rec.mu.Unlock()

	r.mu.RLock()
	tap := r.tap
	r.mu.RUnlock()
	if tap != nil {
		tap(jobID, line)
	}

	r.mirror(jobID, line)
}

// SetTap installs a process-wide observer invoked for every appended
// line across all jobs. One tap at a time; used by the websocket mirror.
func (r *Registry) SetTap(tap func(jobID string, line models.LogLine)) {
	r.mu.Lock()
	r.tap = tap
	r.mu.Unlock()
}

// mirror copies a published line to the process log sink. This is a side
// channel only; delivery to subscribers never depends on it.
func (r *Registry) mirror(jobID string, line models.LogLine) {
	if r.logger == nil {
		return
	}
	if line.Kind == models.LogKindImage {
		r.logger.Info().
			Str("job_id", jobID).
			Str("image_type", line.ImageType).
			Int("bytes", len(line.Payload)).
			Msg("Job published image line")
		return
	}
	switch line.Level {
	case models.LevelError:
		r.logger.Error().Str("job_id", jobID).Msg(line.Payload)
	case models.LevelWarn:
		r.logger.Warn().Str("job_id", jobID).Msg(line.Payload)
	default:
		r.logger.Info().Str("job_id", jobID).Msg(line.Payload)
	}
}

// Attach returns the job's current backlog and a channel carrying every
// line published after the snapshot, plus an idempotent cancel function.
// Snapshot and registration happen under one lock so the caller sees an
// exact, gap-free continuation of the log.
func (r *Registry) Attach(jobID string) (backlog []models.LogLine, lines <-chan models.LogLine, cancel func()) {
	rec := r.getOrCreate(jobID)

	rec.mu.Lock()
	backlog = make([]models.LogLine, len(rec.lines))
	copy(backlog, rec.lines)

	id := rec.nextSub
	rec.nextSub++
	ch := make(chan models.LogLine, subscriberBuffer)
	rec.subs[id] = ch
	rec.mu.Unlock()

	var once sync.Once
	cancel = func() {
		once.Do(func() {
			rec.mu.Lock()
			delete(rec.subs, id)
			rec.mu.Unlock()
			close(ch)
		})
	}

	return backlog, ch, cancel
}

// Subscribe registers a listener without backlog replay.
func (r *Registry) Subscribe(jobID string) (<-chan models.LogLine, func()) {
	_, ch, cancel := r.Attach(jobID)
	return ch, cancel
}

// Snapshot returns a copy of the job's log in publish order.
func (r *Registry) Snapshot(jobID string) []models.LogLine {
	r.mu.RLock()
	rec, ok := r.jobs[jobID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]models.LogLine, len(rec.lines))
	copy(out, rec.lines)
	return out
}

// Exists reports whether jobID has a record in the registry.
func (r *Registry) Exists(jobID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.jobs[jobID]
	return ok
}

// SubscriberCount returns the number of live subscribers for a job.
func (r *Registry) SubscriberCount(jobID string) int {
	r.mu.RLock()
	rec, ok := r.jobs[jobID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return len(rec.subs)
}

// JobIDs returns all known job IDs, sorted for deterministic output.
func (r *Registry) JobIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.jobs))
	for id := range r.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Publisher returns a write handle bound to one job. The automation task
// holds this handle only; it never touches registry internals.
func (r *Registry) Publisher(jobID string) *Publisher {
	return &Publisher{registry: r, jobID: jobID}
}

// Publisher appends formatted lines to a single job's log.
type Publisher struct {
	registry *Registry
	jobID    string
}

// JobID returns the job this publisher writes to.
func (p *Publisher) JobID() string {
	return p.jobID
}

// Infof publishes an informational text line.
func (p *Publisher) Infof(format string, args ...interface{}) {
	p.registry.Append(p.jobID, models.NewTextLine(models.LevelInfo, fmt.Sprintf(format, args...)))
}

// Warnf publishes a warning text line.
func (p *Publisher) Warnf(format string, args ...interface{}) {
	p.registry.Append(p.jobID, models.NewTextLine(models.LevelWarn, fmt.Sprintf(format, args...)))
}

// Errorf publishes an error text line.
func (p *Publisher) Errorf(format string, args ...interface{}) {
	p.registry.Append(p.jobID, models.NewTextLine(models.LevelError, fmt.Sprintf(format, args...)))
}

// Successf publishes a success text line.
func (p *Publisher) Successf(format string, args ...interface{}) {
	p.registry.Append(p.jobID, models.NewTextLine(models.LevelSuccess, fmt.Sprintf(format, args...)))
}

// Image publishes a base64 image payload under the marker convention.
// imageType is "png" or "jpeg".
func (p *Publisher) Image(imageType, base64Data string) {
	marker := models.ImageMarkerPNG
	if imageType == "jpeg" || imageType == "jpg" {
		marker = models.ImageMarkerJPEG
	}
	p.registry.Append(p.jobID, models.NewImageLine(marker+base64Data))
}
