package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dahshury/clinic-whatsapp-bot/internal/store"
)

type stubReminderStore struct {
	rows []store.Reservation
	err  error
}

func (s *stubReminderStore) ListForDate(_ context.Context, date time.Time, _ bool) ([]store.Reservation, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []store.Reservation
	for _, r := range s.rows {
		if r.Date.Equal(date) {
			out = append(out, r)
		}
	}
	return out, nil
}

type stubTemplateSender struct {
	mu    sync.Mutex
	sends []string // "waID|template|lang|param"
	fail  map[string]bool
}

func (s *stubTemplateSender) SendTemplate(_ context.Context, waID, template, lang string, params []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[waID] {
		return "", errors.New("send failed")
	}
	param := ""
	if len(params) > 0 {
		param = params[0]
	}
	s.sends = append(s.sends, fmt.Sprintf("%s|%s|%s|%s", waID, template, lang, param))
	return "wamid.TPL", nil
}

type stubTranscript struct {
	mu      sync.Mutex
	appends []string // "waID|role"
}

func (s *stubTranscript) Append(_ context.Context, waID, role, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appends = append(s.appends, waID+"|"+role)
	return nil
}

func tomorrowUTC() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

func TestSendDailyReminders(t *testing.T) {
	tomorrow := tomorrowUTC()
	reminderStore := &stubReminderStore{rows: []store.Reservation{
		{ID: 1, WaID: "966500000001", Date: tomorrow, TimeSlot: "11:00", Status: store.StatusActive},
		{ID: 2, WaID: "966500000002", Date: tomorrow, TimeSlot: "13:00", Status: store.StatusCancelled},
		{ID: 3, WaID: "966500000003", Date: tomorrow.AddDate(0, 0, 1), TimeSlot: "11:00", Status: store.StatusActive},
	}}
	sender := &stubTemplateSender{}
	transcript := &stubTranscript{}

	s := New(Config{Location: time.UTC, LockPath: filepath.Join(t.TempDir(), "lock")},
		reminderStore, sender, transcript, nil, nil)
	s.SendDailyReminders(context.Background())

	require.Len(t, sender.sends, 1)
	assert.Equal(t, "966500000001|appointment_reminder|ar|11:00 AM", sender.sends[0])
	assert.Equal(t, []string{"966500000001|secretary"}, transcript.appends)
}

func TestSendDailyRemindersContinuesPastFailures(t *testing.T) {
	tomorrow := tomorrowUTC()
	reminderStore := &stubReminderStore{rows: []store.Reservation{
		{ID: 1, WaID: "966500000001", Date: tomorrow, TimeSlot: "11:00", Status: store.StatusActive},
		{ID: 2, WaID: "966500000002", Date: tomorrow, TimeSlot: "13:00", Status: store.StatusActive},
	}}
	sender := &stubTemplateSender{fail: map[string]bool{"966500000001": true}}
	transcript := &stubTranscript{}

	s := New(Config{Location: time.UTC, LockPath: filepath.Join(t.TempDir(), "lock")},
		reminderStore, sender, transcript, nil, nil)
	s.SendDailyReminders(context.Background())

	require.Len(t, sender.sends, 1)
	assert.Contains(t, sender.sends[0], "966500000002")
}

func TestPollSystemMetricsSetsGauges(t *testing.T) {
	s := New(Config{Location: time.UTC, LockPath: filepath.Join(t.TempDir(), "lock")},
		&stubReminderStore{}, &stubTemplateSender{}, &stubTranscript{}, nil, nil)

	s.PollSystemMetrics(context.Background())
	// Second sample gives the CPU delta a baseline.
	s.PollSystemMetrics(context.Background())

	_, rss := s.sampler.Sample()
	assert.Greater(t, rss, 0.0)
}

type stubSink struct {
	mu      sync.Mutex
	samples int
	lastRSS float64
}

func (s *stubSink) Store(_ context.Context, _, rss float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples++
	s.lastRSS = rss
	return nil
}

func TestPollSystemMetricsSharesSample(t *testing.T) {
	s := New(Config{Location: time.UTC, LockPath: filepath.Join(t.TempDir(), "lock")},
		&stubReminderStore{}, &stubTemplateSender{}, &stubTranscript{}, nil, nil)
	sink := &stubSink{}
	s.SetSampleSink(sink)

	s.PollSystemMetrics(context.Background())

	assert.Equal(t, 1, sink.samples)
	assert.Greater(t, sink.lastRSS, 0.0)
}

func TestPIDLockExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sched.lock")

	a := newPIDLock(path)
	require.NoError(t, a.Acquire())

	b := newPIDLock(path)
	assert.ErrorIs(t, b.Acquire(), ErrNotLeader)

	require.NoError(t, a.Release())
	require.NoError(t, b.Acquire())
	require.NoError(t, b.Release())
}

func TestPIDLockReclaimsStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sched.lock")
	// A pid that cannot exist marks the lock stale.
	require.NoError(t, os.WriteFile(path, []byte("999999999\n"), 0o644))

	l := newPIDLock(path)
	require.NoError(t, l.Acquire())
	require.NoError(t, l.Release())
}

func TestGuardedSkipsOverlap(t *testing.T) {
	s := New(Config{Location: time.UTC, LockPath: filepath.Join(t.TempDir(), "lock")},
		&stubReminderStore{}, &stubTemplateSender{}, &stubTranscript{}, nil, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	job := s.guarded(context.Background(), "test_job", func(context.Context) {
		close(started)
		<-release
	})

	go job()
	<-started

	done := make(chan struct{})
	go func() {
		job() // skipped, returns immediately
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("overlapping job invocation blocked instead of skipping")
	}
	close(release)
}

func TestStartStopLifecycle(t *testing.T) {
	s := New(Config{Location: time.UTC, LockPath: filepath.Join(t.TempDir(), "sched.lock"), ReminderHour: 19},
		&stubReminderStore{}, &stubTemplateSender{}, &stubTranscript{}, nil, nil)

	require.NoError(t, s.Start(context.Background()))
	s.Stop()

	// Lock is free again after Stop.
	l := newPIDLock(s.cfg.LockPath)
	require.NoError(t, l.Acquire())
	require.NoError(t, l.Release())
}
