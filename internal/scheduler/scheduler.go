package scheduler

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dahshury/clinic-whatsapp-bot/internal/calendar"
	"github.com/dahshury/clinic-whatsapp-bot/internal/i18n"
	"github.com/dahshury/clinic-whatsapp-bot/internal/observability/metrics"
	"github.com/dahshury/clinic-whatsapp-bot/internal/store"
	"github.com/dahshury/clinic-whatsapp-bot/pkg/logging"
)

// ReminderStore lists the reservations a reminder run covers.
type ReminderStore interface {
	ListForDate(ctx context.Context, date time.Time, includeCancelled bool) ([]store.Reservation, error)
}

// TemplateSender delivers the reminder template.
type TemplateSender interface {
	SendTemplate(ctx context.Context, waID, templateName, languageCode string, bodyParams []string) (string, error)
}

// Transcript records reminder sends in the conversation log.
type Transcript interface {
	Append(ctx context.Context, waID, role, message string) error
}

// SampleSink shares the process sample with other components.
type SampleSink interface {
	Store(ctx context.Context, cpuPercent, memoryBytes float64) error
}

// Config tunes the scheduler.
type Config struct {
	LockPath     string
	Location     *time.Location
	ReminderHour int
}

// Scheduler runs the recurring jobs: daily reminders, system metrics polling
// and an explicit GC. A pid lock keeps one scheduler per host.
type Scheduler struct {
	cron    *cron.Cron
	lock    *pidLock
	cfg     Config
	metrics *metrics.Metrics
	logger  *logging.Logger

	reservations ReminderStore
	sender       TemplateSender
	transcript   Transcript
	sampler      *procSampler
	sink         SampleSink

	running map[string]*sync.Mutex
}

// SetSampleSink forwards each system metrics poll to sink.
func (s *Scheduler) SetSampleSink(sink SampleSink) {
	s.sink = sink
}

func New(cfg Config, reservations ReminderStore, sender TemplateSender, transcript Transcript, m *metrics.Metrics, logger *logging.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.ReminderHour <= 0 || cfg.ReminderHour > 23 {
		cfg.ReminderHour = 19
	}
	if cfg.LockPath == "" {
		cfg.LockPath = "/tmp/clinic-scheduler.lock"
	}
	if m == nil {
		m = metrics.NewForTest()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		cron:         cron.New(cron.WithLocation(cfg.Location)),
		lock:         newPIDLock(cfg.LockPath),
		cfg:          cfg,
		metrics:      m,
		logger:       logger,
		reservations: reservations,
		sender:       sender,
		transcript:   transcript,
		sampler:      newProcSampler(),
		running:      make(map[string]*sync.Mutex),
	}
}

// Start acquires leadership and begins the cron loop. ErrNotLeader means a
// live scheduler already runs on this host; the caller should continue
// without one.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.lock.Acquire(); err != nil {
		return err
	}

	jobs := []struct {
		id   string
		spec string
		fn   func(context.Context)
	}{
		{"send_daily_reminders", fmt.Sprintf("0 %d * * *", s.cfg.ReminderHour), s.SendDailyReminders},
		{"poll_system_metrics", "@every 3m", s.PollSystemMetrics},
		{"explicit_gc", "@every 1h", s.ExplicitGC},
	}
	for _, job := range jobs {
		if _, err := s.cron.AddFunc(job.spec, s.guarded(ctx, job.id, job.fn)); err != nil {
			_ = s.lock.Release()
			return fmt.Errorf("scheduler: register %s: %w", job.id, err)
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "reminder_hour", s.cfg.ReminderHour, "tz", s.cfg.Location.String())
	return nil
}

// Stop halts the cron loop, waits for running jobs and drops leadership.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	if err := s.lock.Release(); err != nil {
		s.logger.Warn("scheduler lock release failed", "error", err)
	}
}

// guarded wraps a job with overlap skipping, panic recovery and error
// accounting.
func (s *Scheduler) guarded(ctx context.Context, jobID string, fn func(context.Context)) func() {
	mu := &sync.Mutex{}
	s.running[jobID] = mu
	return func() {
		if !mu.TryLock() {
			s.metrics.SchedulerJobMissed.WithLabelValues("overlap", jobID).Inc()
			s.logger.Warn("scheduler job still running, skipping", "job_id", jobID)
			return
		}
		defer mu.Unlock()
		defer func() {
			if r := recover(); r != nil {
				s.metrics.FunctionErrors.WithLabelValues(jobID).Inc()
				s.logger.Error("scheduler job panicked", "job_id", jobID, "panic", r)
			}
		}()
		fn(ctx)
	}
}

// SendDailyReminders messages every customer holding an active reservation
// tomorrow and logs the reminder as a secretary turn.
func (s *Scheduler) SendDailyReminders(ctx context.Context) {
	now := time.Now().In(s.cfg.Location)
	tomorrow := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.cfg.Location).AddDate(0, 0, 1)

	rows, err := s.reservations.ListForDate(ctx, tomorrow, false)
	if err != nil {
		s.metrics.FunctionErrors.WithLabelValues("send_daily_reminders").Inc()
		s.logger.Error("reminder fetch failed", "date", tomorrow.Format("2006-01-02"), "error", err)
		return
	}

	sent := 0
	for _, r := range rows {
		if r.Status != store.StatusActive {
			continue
		}
		slot12, err := calendar.NormalizeTime(r.TimeSlot, false)
		if err != nil {
			slot12 = r.TimeSlot
		}
		if _, err := s.sender.SendTemplate(ctx, r.WaID, "appointment_reminder", "ar", []string{slot12}); err != nil {
			s.metrics.FunctionErrors.WithLabelValues("send_daily_reminders").Inc()
			s.logger.Error("reminder send failed", "wa_id", r.WaID, "error", err)
			continue
		}
		text := i18n.Get("appointment_reminder", true, slot12)
		if err := s.transcript.Append(ctx, r.WaID, "secretary", text); err != nil {
			s.logger.Warn("reminder transcript append failed", "wa_id", r.WaID, "error", err)
		}
		sent++
	}
	s.logger.Info("daily reminders sent", "date", tomorrow.Format("2006-01-02"), "count", sent)
}

// PollSystemMetrics refreshes the process gauges and shares the sample.
func (s *Scheduler) PollSystemMetrics(ctx context.Context) {
	cpu, rss := s.sampler.Sample()
	s.metrics.ProcessCPUPercent.Set(cpu)
	s.metrics.ProcessMemoryBytes.Set(rss)
	if s.sink != nil {
		storeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.sink.Store(storeCtx, cpu, rss); err != nil {
			s.logger.Warn("system sample share failed", "error", err)
		}
	}
}

// ExplicitGC forces a collection and returns freed pages to the OS.
func (s *Scheduler) ExplicitGC(context.Context) {
	runtime.GC()
	debug.FreeOSMemory()
}
