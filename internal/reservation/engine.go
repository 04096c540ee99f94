package reservation

import (
	"context"
	"regexp"
	"time"

	"github.com/dahshury/clinic-whatsapp-bot/internal/calendar"
	"github.com/dahshury/clinic-whatsapp-bot/internal/i18n"
	"github.com/dahshury/clinic-whatsapp-bot/internal/observability/metrics"
	"github.com/dahshury/clinic-whatsapp-bot/internal/store"
	"github.com/dahshury/clinic-whatsapp-bot/pkg/logging"
)

// Persona identifies who is acting: the LLM agent or a human operator.
type Persona string

const (
	PersonaAgent     Persona = "agent"
	PersonaSecretary Persona = "secretary"
)

// Result is the uniform envelope every engine operation returns. Domain
// failures live inside it; only infrastructure errors escape as Go errors.
type Result struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Message string         `json:"message,omitempty"`
}

func ok(data map[string]any, message string) Result {
	return Result{Success: true, Data: data, Message: message}
}

// ReservationStore is the slice of the persistence layer the engine writes
// through.
type ReservationStore interface {
	CreateWithCapacity(ctx context.Context, waID string, date time.Time, slot string, typ int, capacity int) (store.Reservation, error)
	MoveWithCapacity(ctx context.Context, id int64, date time.Time, slot string, typ int, capacity int) (store.Reservation, error)
	Reinstate(ctx context.Context, id int64, capacity int) (store.Reservation, error)
	Cancel(ctx context.Context, id int64) (store.Reservation, error)
	GetByID(ctx context.Context, id int64) (store.Reservation, error)
	ActiveCountsForDate(ctx context.Context, date time.Time) (map[string]int, error)
	ActiveFuture(ctx context.Context, waID string, nowDate time.Time, nowSlot string) ([]store.Reservation, error)
	FindCancelledExact(ctx context.Context, waID string, date time.Time, slot string) (store.Reservation, error)
	ListForDate(ctx context.Context, date time.Time, includeCancelled bool) ([]store.Reservation, error)
	ListForWaID(ctx context.Context, waID string) ([]store.Reservation, error)
	ListRange(ctx context.Context, from, to time.Time) ([]store.Reservation, error)
}

// VacationStore lists configured closed periods.
type VacationStore interface {
	List(ctx context.Context) ([]store.VacationPeriod, error)
}

// CustomerDirectory delegates customer upserts and renames to the registry.
type CustomerDirectory interface {
	Upsert(ctx context.Context, waID, name string) error
	Rename(ctx context.Context, waID, newName string) (oldName string, err error)
}

// Notifier receives domain events for realtime fan-out. A nil Notifier is
// silently skipped.
type Notifier interface {
	Broadcast(eventType string, data map[string]any, affected []string)
}

// Engine implements the reservation domain: availability, booking,
// modification, cancellation and undo.
type Engine struct {
	reservations ReservationStore
	vacations    VacationStore
	customers    CustomerDirectory
	schedule     *calendar.Schedule
	notifier     Notifier
	metrics      *metrics.Metrics
	logger       *logging.Logger

	agentMax     int
	secretaryMax int

	now func() time.Time
}

// Option customizes engine construction.
type Option func(*Engine)

// WithClock injects a deterministic clock for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithNotifier wires the realtime hub.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithCapacities overrides the per-persona slot capacities.
func WithCapacities(agent, secretary int) Option {
	return func(e *Engine) {
		if agent > 0 {
			e.agentMax = agent
		}
		if secretary > 0 {
			e.secretaryMax = secretary
		}
	}
}

func NewEngine(reservations ReservationStore, vacations VacationStore, customers CustomerDirectory, schedule *calendar.Schedule, m *metrics.Metrics, logger *logging.Logger, opts ...Option) *Engine {
	if schedule == nil {
		schedule = calendar.DefaultSchedule(nil)
	}
	if logger == nil {
		logger = logging.Default()
	}
	if m == nil {
		m = metrics.NewForTest()
	}
	e := &Engine{
		reservations: reservations,
		vacations:    vacations,
		customers:    customers,
		schedule:     schedule,
		metrics:      m,
		logger:       logger,
		agentMax:     5,
		secretaryMax: 6,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// localNow returns the current moment in the clinic timezone.
func (e *Engine) localNow() time.Time {
	loc := e.schedule.Location
	if loc == nil {
		loc = time.UTC
	}
	return e.now().In(loc)
}

func (e *Engine) today() time.Time {
	n := e.localNow()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, n.Location())
}

// capacityFor applies the stricter of the override and the persona cap.
func (e *Engine) capacityFor(persona Persona, override int) int {
	configured := e.agentMax
	if persona == PersonaSecretary {
		configured = e.secretaryMax
	}
	if override > 0 && override < configured {
		return override
	}
	return configured
}

func (e *Engine) broadcast(eventType string, res store.Reservation) {
	if e.notifier == nil {
		return
	}
	e.notifier.Broadcast(eventType, reservationData(res), []string{res.WaID})
}

var waIDPattern = regexp.MustCompile(`^[0-9]{8,15}$`)

// ValidWaID reports whether s is an E.164 number without the plus sign.
func ValidWaID(s string) bool {
	return waIDPattern.MatchString(s)
}

// reservationData renders a row for Result payloads and broadcast events.
func reservationData(r store.Reservation) map[string]any {
	slot12, _ := calendar.NormalizeTime(r.TimeSlot, false)
	data := map[string]any{
		"reservation_id": r.ID,
		"wa_id":          r.WaID,
		"gregorian_date": r.Date.Format("2006-01-02"),
		"time_slot":      slot12,
		"time_slot_24h":  r.TimeSlot,
		"type":           r.Type,
		"status":         r.Status,
	}
	if hijri, err := calendar.FormatDate(r.Date, true); err == nil {
		data["hijri_date"] = hijri
	}
	return data
}

// fail records a counted domain failure and wraps the i18n message.
func (e *Engine) fail(op, reason, key string, arabic bool, args ...any) Result {
	switch op {
	case "reserve":
		e.metrics.ReservationsFailed.Inc()
		e.metrics.ReservationsFailedBy.WithLabelValues(reason, op, "engine").Inc()
	case "modify":
		e.metrics.ModificationsFailed.Inc()
		e.metrics.ModificationsFailedBy.WithLabelValues(reason, op, "engine").Inc()
	case "cancel":
		e.metrics.CancellationsFailed.Inc()
		e.metrics.CancellationsFailedBy.WithLabelValues(reason, op, "engine").Inc()
	}
	return Result{Success: false, Message: i18n.Get(key, arabic, args...)}
}

// loadVacations fetches vacation periods as calendar values. Lookup errors
// degrade to "no vacations" with a log line; availability must not hard-fail
// on a read error.
func (e *Engine) loadVacations(ctx context.Context) []calendar.Vacation {
	if e.vacations == nil {
		return nil
	}
	periods, err := e.vacations.List(ctx)
	if err != nil {
		e.logger.Warn("vacation lookup failed", "error", err)
		return nil
	}
	out := make([]calendar.Vacation, 0, len(periods))
	for _, p := range periods {
		out = append(out, calendar.Vacation{ID: p.ID, Start: p.StartDate, End: p.EndDate, Title: p.Title})
	}
	return out
}
