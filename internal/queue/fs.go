package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/slidewise/internal/domain"
	"github.com/timmy/slidewise/internal/logger"
)

// uploadTimeFormat is the timestamp embedded in inbound file names.
const uploadTimeFormat = "20060102150405"

var uploadTimestamp = regexp.MustCompile(`^\d{14}$`)

// FSConfig holds the directories of a filesystem-backed queue.
type FSConfig struct {
	InboundDir string // dropped documents; a file here is a pending job
	OutputDir  string // <id>.json artifacts of done jobs
	FailedDir  string // documents of failed jobs plus <id>.error.json
}

// FSQueue is a queue over a directory of dropped files.
// The processing state lives in memory for the duration of one job.
type FSQueue struct {
	cfg        FSConfig
	logger     *logger.Logger
	watcher    *Watcher
	mu         sync.Mutex
	processing map[string]*domain.Job
}

// doneRecord is the content of <output>/<id>.json: the artifact keys plus
// what a status lookup needs once the inbound file is gone.
type doneRecord struct {
	domain.ExplanationArtifact
	Filename    string    `json:"filename,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// failureRecord is the sidecar written next to a failed document.
type failureRecord struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	Error       string    `json:"error"`
	SubmittedAt time.Time `json:"submitted_at"`
	FailedAt    time.Time `json:"failed_at"`
}

// NewFSQueue creates the queue directories and returns the queue.
// Parameters:
//   - cfg: inbound, output and failed directories.
//   - log: logger for queue events.
//
// Returns:
//   - *FSQueue: ready queue.
//   - error: non-nil if a directory cannot be created.
func NewFSQueue(cfg FSConfig, log *logger.Logger) (*FSQueue, error) {
	if cfg.FailedDir == "" {
		cfg.FailedDir = filepath.Join(cfg.InboundDir, "failed")
	}
	for _, dir := range []string{cfg.InboundDir, cfg.OutputDir, cfg.FailedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create queue directory %s: %w", dir, err)
		}
	}
	return &FSQueue{
		cfg:        cfg,
		logger:     log,
		processing: make(map[string]*domain.Job),
	}, nil
}

// Watch starts an fsnotify watcher on the inbound directory. The returned
// watcher's Run must be started by the caller; Wake then fires on new files.
func (q *FSQueue) Watch(debounce time.Duration) (*Watcher, error) {
	w, err := NewWatcher(q.cfg.InboundDir, debounce, q.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to watch inbound directory: %w", err)
	}
	q.watcher = w
	return w, nil
}

// Wake implements Waker. It returns nil (never fires) when not watching.
func (q *FSQueue) Wake() <-chan struct{} {
	if q.watcher == nil {
		return nil
	}
	return q.watcher.Wake()
}

// parseInboundName extracts the job id and original file name from an inbound
// file named <name>_<yyyymmddHHMMSS>_<uuid>.<ext>. Other names use the whole
// file name as id and name.
func parseInboundName(name string) (id, filename string) {
	ext := filepath.Ext(name)
	parts := strings.Split(strings.TrimSuffix(name, ext), "_")
	if len(parts) >= 3 {
		rawID := parts[len(parts)-1]
		stamp := parts[len(parts)-2]
		if _, err := uuid.Parse(rawID); err == nil && uploadTimestamp.MatchString(stamp) {
			return rawID, strings.Join(parts[:len(parts)-2], "_") + ext
		}
	}
	return name, name
}

// inboundName builds the file name a submission is stored under.
func inboundName(filename, id string, at time.Time) string {
	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" {
		stem = "document"
	}
	return fmt.Sprintf("%s_%s_%s%s", stem, at.UTC().Format(uploadTimeFormat), id, ext)
}

// scan lists pending jobs in the inbound directory, skipping in-flight temp
// files and jobs currently being processed.
func (q *FSQueue) scan() ([]*domain.Job, error) {
	entries, err := os.ReadDir(q.cfg.InboundDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read inbound directory: %w", err)
	}

	jobs := make([]*domain.Job, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || hidden(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		id, filename := parseInboundName(entry.Name())
		if _, busy := q.processing[id]; busy {
			continue
		}
		if q.finished(id) {
			// Left over by a finalize that stopped before removing it.
			continue
		}
		jobs = append(jobs, &domain.Job{
			ID:          id,
			Filename:    filename,
			StorageKey:  entry.Name(),
			Status:      domain.JobStatusPending,
			SubmittedAt: info.ModTime().UTC(),
		})
	}
	return jobs, nil
}

// finished reports whether a done record exists for id.
func (q *FSQueue) finished(id string) bool {
	info, err := os.Stat(filepath.Join(q.cfg.OutputDir, id+".json"))
	return err == nil && info.Mode().IsRegular()
}

// PeekNext returns the oldest inbound file as a pending job.
func (q *FSQueue) PeekNext(ctx context.Context) (*domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs, err := q.scan()
	if err != nil {
		return nil, err
	}

	var next *domain.Job
	for _, job := range jobs {
		if next == nil || job.Before(next) {
			next = job
		}
	}
	return next, nil
}

// BeginProcessing marks the job as processing and hands out its document.
func (q *FSQueue) BeginProcessing(ctx context.Context, job *domain.Job) (domain.DocumentHandle, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if cur, busy := q.processing[job.ID]; busy {
		return domain.DocumentHandle{}, domain.InvalidStateError(job.ID, cur.Status, domain.JobStatusPending)
	}

	path := filepath.Join(q.cfg.InboundDir, job.StorageKey)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.DocumentHandle{}, fmt.Errorf("%w: %s", domain.ErrNotFound, job.ID)
		}
		return domain.DocumentHandle{}, fmt.Errorf("failed to stat inbound file: %w", err)
	}

	now := time.Now().UTC()
	started := *job
	started.Status = domain.JobStatusProcessing
	started.StartedAt = &now
	q.processing[job.ID] = &started

	job.Status = started.Status
	job.StartedAt = started.StartedAt

	return domain.NewDocumentHandle(job.ID, job.Filename, func(ctx context.Context) (io.ReadCloser, error) {
		f, err := os.Open(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrQueueInconsistency, job.StorageKey)
		}
		return f, err
	}), nil
}

// claim returns the in-memory processing record, or ErrInvalidState.
func (q *FSQueue) claim(job *domain.Job) (*domain.Job, error) {
	cur, ok := q.processing[job.ID]
	if !ok {
		return nil, domain.InvalidStateError(job.ID, job.Status, domain.JobStatusProcessing)
	}
	return cur, nil
}

// Finalize writes <output>/<id>.json, then removes the inbound file.
// The document is only removed once the record is in place; a leftover
// inbound file of a done job is skipped by PeekNext.
func (q *FSQueue) Finalize(ctx context.Context, job *domain.Job, artifact *domain.ExplanationArtifact) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	cur, err := q.claim(job)
	if err != nil {
		return err
	}

	record := doneRecord{
		ExplanationArtifact: *artifact,
		Filename:            cur.Filename,
		SubmittedAt:         cur.SubmittedAt,
	}
	tmp, err := writeJSONTemp(q.cfg.OutputDir, record)
	if err != nil {
		return &domain.PersistenceError{Op: "finalize", Err: err}
	}
	if err := os.Rename(tmp, filepath.Join(q.cfg.OutputDir, cur.ID+".json")); err != nil {
		os.Remove(tmp)
		return &domain.PersistenceError{Op: "finalize", Err: err}
	}
	if err := os.Remove(filepath.Join(q.cfg.InboundDir, cur.StorageKey)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.FromContext(ctx).WithError(err).Warn("Done job's inbound file could not be removed")
	}

	delete(q.processing, cur.ID)

	now := time.Now().UTC()
	job.Status = domain.JobStatusDone
	job.CompletedAt = &now
	return nil
}

// Fail moves the inbound file to the failed directory next to an error sidecar.
func (q *FSQueue) Fail(ctx context.Context, job *domain.Job, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	cur, err := q.claim(job)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	record := failureRecord{ID: cur.ID, Filename: cur.Filename, SubmittedAt: cur.SubmittedAt, FailedAt: now}
	if cause != nil {
		record.Error = cause.Error()
	}

	tmp, err := writeJSONTemp(q.cfg.FailedDir, record)
	if err != nil {
		return &domain.PersistenceError{Op: "fail", Err: err}
	}
	if err := os.Rename(tmp, filepath.Join(q.cfg.FailedDir, cur.ID+".error.json")); err != nil {
		os.Remove(tmp)
		return &domain.PersistenceError{Op: "fail", Err: err}
	}
	src := filepath.Join(q.cfg.InboundDir, cur.StorageKey)
	if err := os.Rename(src, filepath.Join(q.cfg.FailedDir, cur.StorageKey)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &domain.PersistenceError{Op: "fail", Err: err}
	}

	delete(q.processing, cur.ID)

	job.Status = domain.JobStatusFailed
	job.CompletedAt = &now
	job.ErrorMessage = record.Error
	return nil
}

// Submit writes the document into the inbound directory under a name that
// carries its id and upload time. The file appears atomically.
func (q *FSQueue) Submit(ctx context.Context, filename string, r io.Reader, size int64) (*domain.Job, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	name := inboundName(filename, id, now)

	tmp, err := os.CreateTemp(q.cfg.InboundDir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create upload file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write upload file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to write upload file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(q.cfg.InboundDir, name)); err != nil {
		return nil, fmt.Errorf("failed to publish upload file: %w", err)
	}

	return &domain.Job{
		ID:          id,
		Filename:    filepath.Base(filename),
		StorageKey:  name,
		Status:      domain.JobStatusPending,
		SubmittedAt: now,
	}, nil
}

// Lookup resolves a job by checking, in order, the in-memory processing set,
// the output directory, the failed directory and the inbound directory.
func (q *FSQueue) Lookup(ctx context.Context, id string) (*domain.JobView, error) {
	if !validID(id) {
		return nil, domain.ErrNotFound
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if cur, ok := q.processing[id]; ok {
		return &domain.JobView{ID: id, Status: cur.Status, Filename: cur.Filename, SubmittedAt: cur.SubmittedAt}, nil
	}

	if record, info, err := q.readDone(id); err == nil {
		completed := info.ModTime().UTC()
		filename := record.Filename
		if filename == "" {
			filename = record.LectureName
		}
		return &domain.JobView{
			ID:           id,
			Status:       domain.JobStatusDone,
			Filename:     filename,
			SubmittedAt:  record.SubmittedAt,
			CompletedAt:  &completed,
			Explanations: record.Explanations,
		}, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	var record failureRecord
	if info, err := readJSON(filepath.Join(q.cfg.FailedDir, id+".error.json"), &record); err == nil {
		completed := info.ModTime().UTC()
		return &domain.JobView{
			ID:           id,
			Status:       domain.JobStatusFailed,
			Filename:     record.Filename,
			SubmittedAt:  record.SubmittedAt,
			CompletedAt:  &completed,
			ErrorMessage: record.Error,
		}, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	jobs, err := q.scan()
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		if job.ID == id {
			return &domain.JobView{ID: id, Status: job.Status, Filename: job.Filename, SubmittedAt: job.SubmittedAt}, nil
		}
	}
	return nil, domain.ErrNotFound
}

// Artifact reads the stored artifact of a done job.
func (q *FSQueue) Artifact(ctx context.Context, id string) (*domain.ExplanationArtifact, error) {
	record, _, err := q.readDone(id)
	if err != nil {
		return nil, err
	}
	return &record.ExplanationArtifact, nil
}

func (q *FSQueue) readDone(id string) (*doneRecord, fs.FileInfo, error) {
	if !validID(id) {
		return nil, nil, domain.ErrNotFound
	}
	var record doneRecord
	info, err := readJSON(filepath.Join(q.cfg.OutputDir, id+".json"), &record)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, domain.ErrNotFound
		}
		return nil, nil, err
	}
	return &record, info, nil
}

// validID rejects ids that could escape the queue directories.
func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && id != "." && id != ".."
}

// writeJSONTemp encodes v into a hidden temp file in dir and returns its path.
func writeJSONTemp(dir string, v interface{}) (string, error) {
	tmp, err := os.CreateTemp(dir, ".tmp-*.json")
	if err != nil {
		return "", err
	}
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func readJSON(path string, v interface{}) (fs.FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if err := json.NewDecoder(f).Decode(v); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return info, nil
}

var _ Store = (*FSQueue)(nil)
