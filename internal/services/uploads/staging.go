package uploads

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/nuntio/internal/common"
)

// Service stages uploaded files under a scratch directory and fetches
// per-row remote images. Staged files are pure input scratch space; a
// cron janitor deletes anything older than the retention window.
type Service struct {
	dir       string
	retention time.Duration
	logger    arbor.ILogger
	cron      *cron.Cron
	client    *http.Client
}

// NewService creates the staging service and ensures its directory exists.
func NewService(cfg common.UploadsConfig, logger arbor.ILogger) (*Service, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "nuntio-uploads")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory %s: %w", dir, err)
	}

	s := &Service{
		dir:       dir,
		retention: cfg.RetentionDuration(),
		logger:    logger,
		client:    &http.Client{Timeout: 30 * time.Second},
	}

	schedule := cfg.CleanupSchedule
	if schedule == "" {
		schedule = "@hourly"
	}
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(schedule, s.cleanup); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}

	return s, nil
}

// Dir returns the staging directory path.
func (s *Service) Dir() string {
	return s.dir
}

// Start begins the periodic staging cleanup.
func (s *Service) Start() {
	s.cron.Start()
	s.logger.Info().
		Str("dir", s.dir).
		Dur("retention", s.retention).
		Msg("Upload staging janitor started")
}

// Stop halts the cleanup schedule and waits for a running sweep to finish.
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Save stages one multipart file part and returns its staged path.
func (s *Service) Save(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
	}
	defer src.Close()

	path := filepath.Join(s.dir, common.NewUploadName(filepath.Base(fh.Filename)))
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create staged file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write staged file: %w", err)
	}

	s.logger.Debug().Str("file", fh.Filename).Str("staged", path).Msg("Upload staged")
	return path, nil
}

// SaveReader stages arbitrary content under the given base name.
func (s *Service) SaveReader(name string, r io.Reader) (string, error) {
	path := filepath.Join(s.dir, common.NewUploadName(filepath.Base(name)))
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create staged file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, r); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write staged file: %w", err)
	}
	return path, nil
}

// FetchRemote downloads a per-row image URL into staging and returns the
// local path.
func (s *Service) FetchRemote(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("invalid image URL %s: %w", url, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download %s: HTTP %d", url, resp.StatusCode)
	}

	return s.SaveReader("row-image.png", resp.Body)
}

// cleanup deletes staged files older than the retention window.
func (s *Service) cleanup() {
	cutoff := time.Now().Add(-s.retention)
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn().Err(err).Str("dir", s.dir).Msg("Staging cleanup failed to list directory")
		return
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, entry.Name())); err == nil {
				removed++
			}
		}
	}

	if removed > 0 {
		s.logger.Info().Int("removed", removed).Str("dir", s.dir).Msg("Staging cleanup removed stale files")
	}
}

// CleanupNow runs one sweep immediately. Exposed for tests.
func (s *Service) CleanupNow() {
	s.cleanup()
}
