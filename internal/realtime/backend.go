package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dahshury/clinic-whatsapp-bot/internal/calendar"
	"github.com/dahshury/clinic-whatsapp-bot/internal/conversation"
	"github.com/dahshury/clinic-whatsapp-bot/internal/customer"
	"github.com/dahshury/clinic-whatsapp-bot/internal/reservation"
	"github.com/dahshury/clinic-whatsapp-bot/internal/store"
)

// TextSender delivers secretary messages typed in the dashboard.
type TextSender interface {
	SendText(ctx context.Context, waID, text string) (string, error)
}

// StatsStore feeds the metrics_updated frame.
type StatsStore interface {
	CountByStatus(ctx context.Context) (map[string]int, error)
	ListRange(ctx context.Context, from, to time.Time) ([]store.Reservation, error)
}

// QueueStats reports inbound queue pressure.
type QueueStats interface {
	Depth(ctx context.Context) (length int, oldestAge float64, err error)
}

// ConversationLog is the transcript slice the dashboard reads and writes.
type ConversationLog interface {
	History(ctx context.Context, waID string) ([]store.ConversationMessage, error)
	Recent(ctx context.Context, limit int) ([]store.ConversationMessage, error)
	Append(ctx context.Context, waID, role, message string) error
}

// VacationStore manages vacation periods from the dashboard.
type VacationStore interface {
	List(ctx context.Context) ([]store.VacationPeriod, error)
	Create(ctx context.Context, start, end time.Time, title string) (store.VacationPeriod, error)
	Update(ctx context.Context, id int64, start, end time.Time, title string) (store.VacationPeriod, error)
	Delete(ctx context.Context, id int64) error
}

// OperatorBackend serves dashboard websocket operations against the live
// domain services. Operator actions run under the secretary persona.
type OperatorBackend struct {
	engine    *reservation.Engine
	customers *customer.Registry
	log       ConversationLog
	vacations VacationStore
	stats     StatsStore
	queue     QueueStats
	sender    TextSender
	sysCache  *SystemCache
	location  *time.Location
}

// SetSystemCache attaches the shared CPU/RSS sample cache.
func (b *OperatorBackend) SetSystemCache(c *SystemCache) {
	b.sysCache = c
}

func NewOperatorBackend(
	engine *reservation.Engine,
	customers *customer.Registry,
	log ConversationLog,
	vacations VacationStore,
	stats StatsStore,
	queue QueueStats,
	sender TextSender,
	location *time.Location,
) *OperatorBackend {
	if location == nil {
		location = time.UTC
	}
	return &OperatorBackend{
		engine:    engine,
		customers: customers,
		log:       log,
		vacations: vacations,
		stats:     stats,
		queue:     queue,
		sender:    sender,
		location:  location,
	}
}

// snapshotConversationLimit caps how much transcript the initial dashboard
// load carries; older messages come through get_document per customer.
const snapshotConversationLimit = 200

// Snapshot bundles the dashboard's initial state: the next two weeks of
// reservations, the latest conversation messages, the configured vacation
// periods and the current metrics sample.
func (b *OperatorBackend) Snapshot(ctx context.Context) (map[string]any, error) {
	now := time.Now().In(b.location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, b.location)

	rows, err := b.stats.ListRange(ctx, today, today.AddDate(0, 0, 14))
	if err != nil {
		return nil, fmt.Errorf("realtime: snapshot reservations: %w", err)
	}
	reservations := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		reservations = append(reservations, reservationRow(r))
	}

	recent, err := b.log.Recent(ctx, snapshotConversationLimit)
	if err != nil {
		return nil, fmt.Errorf("realtime: snapshot conversations: %w", err)
	}
	conversations := make([]map[string]any, 0, len(recent))
	for _, m := range recent {
		conversations = append(conversations, map[string]any{
			"wa_id":   m.WaID,
			"role":    m.Role,
			"message": m.Message,
			"date":    m.Date.Format("2006-01-02"),
			"time":    m.Time,
		})
	}

	periods, err := b.vacations.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("realtime: snapshot vacations: %w", err)
	}
	vacations := make([]map[string]any, 0, len(periods))
	for _, p := range periods {
		vacations = append(vacations, vacationRow(p))
	}

	return map[string]any{
		"reservations":  reservations,
		"conversations": conversations,
		"vacations":     vacations,
		"metrics":       b.LatestMetrics(ctx),
	}, nil
}

// Document is one customer's conversation history.
func (b *OperatorBackend) Document(ctx context.Context, waID string) (map[string]any, error) {
	if waID == "" {
		return nil, errors.New("realtime: wa_id is required")
	}
	history, err := b.log.History(ctx, waID)
	if err != nil {
		return nil, fmt.Errorf("realtime: conversation history: %w", err)
	}
	msgs := make([]map[string]any, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, map[string]any{
			"role":    m.Role,
			"message": m.Message,
			"date":    m.Date.Format("2006-01-02"),
			"time":    m.Time,
		})
	}
	return map[string]any{"wa_id": waID, "messages": msgs}, nil
}

// Customer is one customer's profile plus their reservation history.
func (b *OperatorBackend) Customer(ctx context.Context, waID string) (map[string]any, error) {
	if waID == "" {
		return nil, errors.New("realtime: wa_id is required")
	}
	c, err := b.customers.Get(ctx, waID)
	if err != nil {
		return nil, err
	}
	res, err := b.engine.CustomerReservations(ctx, waID, true, false)
	if err != nil {
		return nil, err
	}
	out := map[string]any{
		"wa_id":       c.WaID,
		"name":        c.Name,
		"is_blocked":  c.IsBlocked,
		"is_favorite": c.IsFavorite,
	}
	if c.Age != nil {
		out["age"] = *c.Age
	}
	if res.Data != nil {
		out["reservations"] = res.Data["reservations"]
	}
	return out, nil
}

func (b *OperatorBackend) ModifyReservation(ctx context.Context, args map[string]any) (map[string]any, error) {
	req := reservation.ModifyRequest{
		WaID:          asString(args["wa_id"]),
		ReservationID: asInt64(args["reservation_id"]),
		NewDate:       asString(args["new_date"]),
		NewTime:       asString(args["new_time_slot"]),
		NewName:       asString(args["new_name"]),
		Approximate:   asBool(args["approximate"]),
		Persona:       reservation.PersonaSecretary,
	}
	if v, ok := args["new_type"]; ok && v != nil {
		t := int(asInt64(v))
		req.NewType = &t
	}
	res, err := b.engine.Modify(ctx, req)
	if err != nil {
		return nil, err
	}
	return resultMap(res), nil
}

func (b *OperatorBackend) CancelReservation(ctx context.Context, args map[string]any) (map[string]any, error) {
	res, err := b.engine.Cancel(ctx, reservation.CancelRequest{
		WaID:          asString(args["wa_id"]),
		Date:          asString(args["date"]),
		ReservationID: asInt64(args["reservation_id"]),
	})
	if err != nil {
		return nil, err
	}
	return resultMap(res), nil
}

// SendSecretaryMessage delivers an operator message over WhatsApp and records
// it in the conversation log.
func (b *OperatorBackend) SendSecretaryMessage(ctx context.Context, waID, text string) error {
	if waID == "" || text == "" {
		return errors.New("realtime: wa_id and message are required")
	}
	if _, err := b.sender.SendText(ctx, waID, text); err != nil {
		return err
	}
	return b.log.Append(ctx, waID, conversation.RoleSecretary, text)
}

// UpdateVacation creates, updates or deletes a vacation period.
func (b *OperatorBackend) UpdateVacation(ctx context.Context, args map[string]any) (map[string]any, error) {
	id := asInt64(args["id"])
	if asBool(args["delete"]) {
		if id == 0 {
			return nil, errors.New("realtime: vacation id is required")
		}
		if err := b.vacations.Delete(ctx, id); err != nil {
			return nil, err
		}
		return map[string]any{"deleted_id": id}, nil
	}

	start, err := calendar.ParseDate(asString(args["start_date"]), false, b.location)
	if err != nil {
		return nil, fmt.Errorf("realtime: vacation start: %w", err)
	}
	end, err := calendar.ParseDate(asString(args["end_date"]), false, b.location)
	if err != nil {
		return nil, fmt.Errorf("realtime: vacation end: %w", err)
	}
	if end.Before(start) {
		return nil, errors.New("realtime: vacation ends before it starts")
	}

	var period store.VacationPeriod
	if id > 0 {
		period, err = b.vacations.Update(ctx, id, start, end, asString(args["title"]))
	} else {
		period, err = b.vacations.Create(ctx, start, end, asString(args["title"]))
	}
	if err != nil {
		return nil, err
	}
	return vacationRow(period), nil
}

// LatestMetrics summarizes live load for the dashboard ticker.
func (b *OperatorBackend) LatestMetrics(ctx context.Context) map[string]any {
	out := map[string]any{}
	if counts, err := b.stats.CountByStatus(ctx); err == nil {
		out["reservations_active"] = counts[store.StatusActive]
		out["reservations_cancelled"] = counts[store.StatusCancelled]
	}
	if b.queue != nil {
		if length, oldest, err := b.queue.Depth(ctx); err == nil {
			out["queue_length"] = length
			out["queue_oldest_age_seconds"] = oldest
		}
	}
	if b.sysCache != nil {
		if cpu, rss, err := b.sysCache.Load(ctx); err == nil {
			out["process_cpu_percent"] = cpu
			out["process_memory_bytes"] = rss
		}
	}
	return out
}

func reservationRow(r store.Reservation) map[string]any {
	slot12, err := calendar.NormalizeTime(r.TimeSlot, false)
	if err != nil {
		slot12 = r.TimeSlot
	}
	return map[string]any{
		"reservation_id": r.ID,
		"wa_id":          r.WaID,
		"gregorian_date": r.Date.Format("2006-01-02"),
		"time_slot":      slot12,
		"time_slot_24h":  r.TimeSlot,
		"type":           r.Type,
		"status":         r.Status,
	}
}

func vacationRow(p store.VacationPeriod) map[string]any {
	return map[string]any{
		"id":         p.ID,
		"start_date": p.StartDate.Format("2006-01-02"),
		"end_date":   p.EndDate.Format("2006-01-02"),
		"title":      p.Title,
	}
}

func resultMap(res reservation.Result) map[string]any {
	out := map[string]any{"success": res.Success, "message": res.Message}
	for k, v := range res.Data {
		out[k] = v
	}
	return out
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int:
		return int64(n)
	case int64:
		return n
	}
	return 0
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}
