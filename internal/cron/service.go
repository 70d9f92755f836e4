package cron

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/aisbot/aisbot/internal/observability"
	"github.com/aisbot/aisbot/pkg/models"
)

// Config carries service construction parameters.
type Config struct {
	// StorePath is the jobs.json location.
	StorePath string

	Publisher Publisher
	Logger    *observability.Logger
	Metrics   *observability.Metrics
}

// Service owns the scheduled jobs: persistence, the cron runner, and the
// system-message publication when a job fires.
type Service struct {
	path      string
	publisher Publisher
	logger    *observability.Logger
	metrics   *observability.Metrics

	mu      sync.Mutex
	jobs    map[string]*Job
	entries map[string]cron.EntryID
	runner  *cron.Cron
	started bool
}

// NewService creates a cron service. Start loads the store and begins
// scheduling.
func NewService(cfg Config) *Service {
	return &Service{
		path:      cfg.StorePath,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		jobs:      map[string]*Job{},
		entries:   map[string]cron.EntryID{},
		runner:    cron.New(cron.WithParser(cronParser)),
	}
}

// Start loads persisted jobs and starts the runner. Jobs whose schedules no
// longer parse are kept in the store but not scheduled.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	jobs, err := loadJobs(s.path)
	if err != nil {
		return err
	}
	s.jobs = jobs

	for _, job := range jobs {
		if !job.Enabled {
			continue
		}
		if err := s.scheduleLocked(job); err != nil {
			s.logWarn(ctx, "cron job not schedulable", "job_id", job.ID, "error", err)
		}
	}
	s.runner.Start()
	s.started = true
	s.logInfo(ctx, "cron service started", "jobs", len(jobs), "store", s.path)
	return nil
}

// Stop halts the runner, letting an in-flight firing finish.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	stopCtx := s.runner.Stop()
	<-stopCtx.Done()
	s.started = false
}

// Add validates, persists, and (when enabled) schedules a job. Missing IDs
// and creation timestamps are filled in.
func (s *Service) Add(job Job) (*Job, error) {
	if strings.TrimSpace(job.Message) == "" {
		return nil, fmt.Errorf("cron: job message is required")
	}
	if _, err := job.Schedule.Spec(); err != nil {
		return nil, fmt.Errorf("cron: %w", err)
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Name == "" {
		job.Name = job.ID[:8]
	}
	if job.Channel == "" {
		job.Channel = "cli"
	}
	if job.ChatID == "" {
		job.ChatID = "cron"
	}
	if job.Created.IsZero() {
		job.Created = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return nil, fmt.Errorf("cron: job already exists: %s", job.ID)
	}
	stored := job
	s.jobs[stored.ID] = &stored
	if err := saveJobs(s.path, s.jobs); err != nil {
		delete(s.jobs, stored.ID)
		return nil, err
	}
	if stored.Enabled && s.started {
		if err := s.scheduleLocked(&stored); err != nil {
			return nil, err
		}
	}
	out := stored
	return &out, nil
}

// List returns jobs ordered by creation time.
func (s *Service) List() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		list = append(list, *job)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Created.Equal(list[j].Created) {
			return list[i].ID < list[j].ID
		}
		return list[i].Created.Before(list[j].Created)
	})
	return list
}

// Get returns one job by ID.
func (s *Service) Get(id string) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	out := *job
	return &out, true
}

// Remove unschedules and deletes a job.
func (s *Service) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return fmt.Errorf("cron: job not found: %s", id)
	}
	s.unscheduleLocked(id)
	delete(s.jobs, id)
	return saveJobs(s.path, s.jobs)
}

// Enable turns a job on and schedules it.
func (s *Service) Enable(id string) error {
	return s.setEnabled(id, true)
}

// Disable turns a job off and unschedules it.
func (s *Service) Disable(id string) error {
	return s.setEnabled(id, false)
}

func (s *Service) setEnabled(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("cron: job not found: %s", id)
	}
	if job.Enabled == enabled {
		return nil
	}
	job.Enabled = enabled
	if err := saveJobs(s.path, s.jobs); err != nil {
		job.Enabled = !enabled
		return err
	}
	if enabled && s.started {
		return s.scheduleLocked(job)
	}
	if !enabled {
		s.unscheduleLocked(id)
	}
	return nil
}

// RunNow fires a job immediately, regardless of schedule or enabled state.
func (s *Service) RunNow(ctx context.Context, id string) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("cron: job not found: %s", id)
	}
	snapshot := *job
	s.mu.Unlock()
	return s.fire(ctx, &snapshot)
}

// scheduleLocked registers a job with the runner. Callers hold s.mu.
func (s *Service) scheduleLocked(job *Job) error {
	spec, err := job.Schedule.Spec()
	if err != nil {
		return err
	}
	id := job.ID
	entry, err := s.runner.AddFunc(spec, func() {
		s.fireByID(id)
	})
	if err != nil {
		return fmt.Errorf("cron: schedule job %s: %w", id, err)
	}
	s.entries[id] = entry
	return nil
}

func (s *Service) unscheduleLocked(id string) {
	if entry, ok := s.entries[id]; ok {
		s.runner.Remove(entry)
		delete(s.entries, id)
	}
}

// fireByID runs on the runner goroutine when a schedule comes due.
func (s *Service) fireByID(id string) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok || !job.Enabled {
		s.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	job.LastRun = &now
	snapshot := *job
	if err := saveJobs(s.path, s.jobs); err != nil {
		s.logWarn(context.Background(), "cron store update failed", "job_id", id, "error", err)
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.fire(ctx, &snapshot); err != nil {
		s.logWarn(ctx, "cron job publish failed", "job_id", id, "error", err)
		if s.metrics != nil {
			s.metrics.RecordError("cron", "publish")
		}
	}
}

// fire publishes the job as a system inbound message. The chat_id carries
// the origin tuple so the loop routes the reply to the job's conversation.
func (s *Service) fire(ctx context.Context, job *Job) error {
	if s.publisher == nil {
		return fmt.Errorf("cron: no publisher configured")
	}
	msg := models.NewInboundMessage(
		models.ChannelSystem,
		"cron:"+job.ID,
		job.Channel+":"+job.ChatID,
		job.Message,
	)
	s.logInfo(ctx, "cron job fired", "job_id", job.ID, "name", job.Name)
	return s.publisher.PublishInbound(ctx, msg)
}

func (s *Service) logInfo(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(ctx, msg, args...)
	}
}

func (s *Service) logWarn(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(ctx, msg, args...)
	}
}
