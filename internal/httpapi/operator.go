package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dahshury/clinic-whatsapp-bot/internal/customer"
	"github.com/dahshury/clinic-whatsapp-bot/internal/reservation"
	"github.com/dahshury/clinic-whatsapp-bot/internal/store"
	"github.com/dahshury/clinic-whatsapp-bot/pkg/logging"
)

// ReservationOps is the slice of the reservation engine the REST surface
// uses. Operator calls run under the secretary persona.
type ReservationOps interface {
	Reserve(ctx context.Context, req reservation.ReserveRequest) (reservation.Result, error)
	Modify(ctx context.Context, req reservation.ModifyRequest) (reservation.Result, error)
	Cancel(ctx context.Context, req reservation.CancelRequest) (reservation.Result, error)
	UndoCancel(ctx context.Context, id int64, persona reservation.Persona, arabic bool) (reservation.Result, error)
	DateReservations(ctx context.Context, date string, hijri, includeCancelled, arabic bool) (reservation.Result, error)
	CustomerReservations(ctx context.Context, waID string, includeCancelled, arabic bool) (reservation.Result, error)
	GetAvailableSlots(ctx context.Context, req reservation.AvailabilityRequest) (reservation.Result, error)
}

// CustomerOps is the registry surface exposed to operators.
type CustomerOps interface {
	Get(ctx context.Context, waID string) (store.Customer, error)
	Search(ctx context.Context, q string, limit int) ([]store.Customer, error)
	Rename(ctx context.Context, waID, newName string) (string, error)
	SetAge(ctx context.Context, waID string, age *int) (store.Customer, error)
	SetFlags(ctx context.Context, waID string, blocked, favorite bool) (store.Customer, error)
}

// ConversationOps reads the append-only message log.
type ConversationOps interface {
	History(ctx context.Context, waID string) ([]store.ConversationMessage, error)
	Recent(ctx context.Context, limit int) ([]store.ConversationMessage, error)
	WordCounts(ctx context.Context, since time.Time, limit int) (map[string]int, error)
}

// VacationOps manages vacation periods.
type VacationOps interface {
	List(ctx context.Context) ([]store.VacationPeriod, error)
	Create(ctx context.Context, start, end time.Time, title string) (store.VacationPeriod, error)
	Update(ctx context.Context, id int64, start, end time.Time, title string) (store.VacationPeriod, error)
	Delete(ctx context.Context, id int64) error
}

// StatsOps feeds the dashboard summary.
type StatsOps interface {
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// QueueOps reports inbound queue depth.
type QueueOps interface {
	Depth(ctx context.Context) (length int, oldestAge float64, err error)
}

// OperatorHandler is the dashboard REST API.
type OperatorHandler struct {
	reservations  ReservationOps
	customers     CustomerOps
	conversations ConversationOps
	vacations     VacationOps
	stats         StatsOps
	queue         QueueOps
	location      *time.Location
	logger        *logging.Logger
}

func NewOperatorHandler(
	reservations ReservationOps,
	customers CustomerOps,
	conversations ConversationOps,
	vacations VacationOps,
	stats StatsOps,
	queue QueueOps,
	location *time.Location,
	logger *logging.Logger,
) *OperatorHandler {
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &OperatorHandler{
		reservations:  reservations,
		customers:     customers,
		conversations: conversations,
		vacations:     vacations,
		stats:         stats,
		queue:         queue,
		location:      location,
		logger:        logger,
	}
}

// Routes mounts the operator API.
func (h *OperatorHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/reservations", func(r chi.Router) {
		r.Get("/", h.listReservations)
		r.Post("/", h.createReservation)
		r.Get("/availability", h.availability)
		r.Put("/{id}", h.modifyReservation)
		r.Delete("/{id}", h.cancelReservation)
		r.Post("/{id}/reinstate", h.reinstateReservation)
	})
	r.Route("/customers", func(r chi.Router) {
		r.Get("/", h.searchCustomers)
		r.Get("/{waID}", h.getCustomer)
		r.Put("/{waID}", h.updateCustomer)
	})
	r.Route("/conversations", func(r chi.Router) {
		r.Get("/recent", h.recentConversations)
		r.Get("/{waID}", h.conversationHistory)
	})
	r.Route("/vacations", func(r chi.Router) {
		r.Get("/", h.listVacations)
		r.Post("/", h.createVacation)
		r.Put("/{id}", h.updateVacation)
		r.Delete("/{id}", h.deleteVacation)
	})
	r.Get("/dashboard", h.dashboard)

	return r
}

func (h *OperatorHandler) listReservations(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().In(h.location).Format("2006-01-02")
	}
	res, err := h.reservations.DateReservations(r.Context(), date,
		queryBool(r, "hijri"), queryBool(r, "include_cancelled"), queryBool(r, "ar"))
	h.writeResult(w, res, err)
}

func (h *OperatorHandler) availability(w http.ResponseWriter, r *http.Request) {
	res, err := h.reservations.GetAvailableSlots(r.Context(), reservation.AvailabilityRequest{
		Date:    r.URL.Query().Get("date"),
		Hijri:   queryBool(r, "hijri"),
		Arabic:  queryBool(r, "ar"),
		Persona: reservation.PersonaSecretary,
	})
	h.writeResult(w, res, err)
}

func (h *OperatorHandler) createReservation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		WaID         string `json:"wa_id"`
		CustomerName string `json:"customer_name"`
		Date         string `json:"date"`
		TimeSlot     string `json:"time_slot"`
		Type         int    `json:"type"`
		Hijri        bool   `json:"hijri"`
	}
	if !h.readJSON(w, r, &body) {
		return
	}
	res, err := h.reservations.Reserve(r.Context(), reservation.ReserveRequest{
		WaID:         body.WaID,
		CustomerName: body.CustomerName,
		Date:         body.Date,
		Time:         body.TimeSlot,
		Type:         body.Type,
		Hijri:        body.Hijri,
		Persona:      reservation.PersonaSecretary,
	})
	h.writeResult(w, res, err)
}

func (h *OperatorHandler) modifyReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		WaID        string `json:"wa_id"`
		NewDate     string `json:"new_date"`
		NewTimeSlot string `json:"new_time_slot"`
		NewName     string `json:"new_name"`
		NewType     *int   `json:"new_type"`
		Approximate bool   `json:"approximate"`
		Hijri       bool   `json:"hijri"`
	}
	if !h.readJSON(w, r, &body) {
		return
	}
	res, err := h.reservations.Modify(r.Context(), reservation.ModifyRequest{
		WaID:          body.WaID,
		ReservationID: id,
		NewDate:       body.NewDate,
		NewTime:       body.NewTimeSlot,
		NewName:       body.NewName,
		NewType:       body.NewType,
		Approximate:   body.Approximate,
		Hijri:         body.Hijri,
		Persona:       reservation.PersonaSecretary,
	})
	h.writeResult(w, res, err)
}

func (h *OperatorHandler) cancelReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.reservations.Cancel(r.Context(), reservation.CancelRequest{
		WaID:          r.URL.Query().Get("wa_id"),
		ReservationID: id,
	})
	h.writeResult(w, res, err)
}

func (h *OperatorHandler) reinstateReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.reservations.UndoCancel(r.Context(), id, reservation.PersonaSecretary, false)
	h.writeResult(w, res, err)
}

func (h *OperatorHandler) searchCustomers(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := h.customers.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(rows))
	for _, c := range rows {
		out = append(out, customerJSON(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": out})
}

func (h *OperatorHandler) getCustomer(w http.ResponseWriter, r *http.Request) {
	waID := chi.URLParam(r, "waID")
	c, err := h.customers.Get(r.Context(), waID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	res, err := h.reservations.CustomerReservations(r.Context(), waID, true, false)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := customerJSON(c)
	out["reservations"] = res.Data["reservations"]
	writeJSON(w, http.StatusOK, out)
}

func (h *OperatorHandler) updateCustomer(w http.ResponseWriter, r *http.Request) {
	waID := chi.URLParam(r, "waID")
	var body struct {
		Name       *string `json:"name"`
		Age        *int    `json:"age"`
		IsBlocked  *bool   `json:"is_blocked"`
		IsFavorite *bool   `json:"is_favorite"`
	}
	if !h.readJSON(w, r, &body) {
		return
	}

	if body.Name != nil {
		if _, err := h.customers.Rename(r.Context(), waID, *body.Name); err != nil {
			h.writeError(w, err)
			return
		}
	}
	if body.Age != nil {
		if _, err := h.customers.SetAge(r.Context(), waID, body.Age); err != nil {
			h.writeError(w, err)
			return
		}
	}
	c, err := h.customers.Get(r.Context(), waID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if body.IsBlocked != nil || body.IsFavorite != nil {
		blocked, favorite := c.IsBlocked, c.IsFavorite
		if body.IsBlocked != nil {
			blocked = *body.IsBlocked
		}
		if body.IsFavorite != nil {
			favorite = *body.IsFavorite
		}
		if c, err = h.customers.SetFlags(r.Context(), waID, blocked, favorite); err != nil {
			h.writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, customerJSON(c))
}

func (h *OperatorHandler) conversationHistory(w http.ResponseWriter, r *http.Request) {
	waID := chi.URLParam(r, "waID")
	msgs, err := h.conversations.History(r.Context(), waID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"wa_id": waID, "messages": messagesJSON(msgs)})
}

func (h *OperatorHandler) recentConversations(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	msgs, err := h.conversations.Recent(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messagesJSON(msgs)})
}

func (h *OperatorHandler) listVacations(w http.ResponseWriter, r *http.Request) {
	periods, err := h.vacations.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(periods))
	for _, p := range periods {
		out = append(out, vacationJSON(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"vacations": out})
}

type vacationBody struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Title     string `json:"title"`
}

func (h *OperatorHandler) parseVacationBody(w http.ResponseWriter, r *http.Request) (start, end time.Time, title string, ok bool) {
	var body vacationBody
	if !h.readJSON(w, r, &body) {
		return
	}
	var err error
	if start, err = time.ParseInLocation("2006-01-02", body.StartDate, h.location); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid start_date"})
		return
	}
	if end, err = time.ParseInLocation("2006-01-02", body.EndDate, h.location); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid end_date"})
		return
	}
	if end.Before(start) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "end_date precedes start_date"})
		return
	}
	return start, end, body.Title, true
}

func (h *OperatorHandler) createVacation(w http.ResponseWriter, r *http.Request) {
	start, end, title, ok := h.parseVacationBody(w, r)
	if !ok {
		return
	}
	p, err := h.vacations.Create(r.Context(), start, end, title)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, vacationJSON(p))
}

func (h *OperatorHandler) updateVacation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	start, end, title, ok := h.parseVacationBody(w, r)
	if !ok {
		return
	}
	p, err := h.vacations.Update(r.Context(), id, start, end, title)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vacationJSON(p))
}

func (h *OperatorHandler) deleteVacation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.vacations.Delete(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted_id": id})
}

// dashboard aggregates reservation totals, queue pressure and the trailing
// thirty days of conversation word frequencies.
func (h *OperatorHandler) dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	out := map[string]any{}

	counts, err := h.stats.CountByStatus(ctx)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out["reservations"] = map[string]any{
		"active":    counts[store.StatusActive],
		"cancelled": counts[store.StatusCancelled],
	}

	if h.queue != nil {
		if length, oldest, err := h.queue.Depth(ctx); err == nil {
			out["queue"] = map[string]any{"length": length, "oldest_age_seconds": oldest}
		}
	}

	since := time.Now().In(h.location).AddDate(0, 0, -30)
	if words, err := h.conversations.WordCounts(ctx, since, 25); err == nil {
		out["word_counts"] = words
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *OperatorHandler) writeResult(w http.ResponseWriter, res reservation.Result, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	status := http.StatusOK
	if !res.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resultJSON(res))
}

func (h *OperatorHandler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
		return
	}
	if errors.Is(err, customer.ErrInvalidWaID) || errors.Is(err, customer.ErrInvalidName) || errors.Is(err, customer.ErrInvalidAge) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	h.logger.Error("operator request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
}

func (h *OperatorHandler) readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func queryBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return v
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func resultJSON(res reservation.Result) map[string]any {
	out := map[string]any{"success": res.Success, "message": res.Message}
	for k, v := range res.Data {
		out[k] = v
	}
	return out
}

func customerJSON(c store.Customer) map[string]any {
	out := map[string]any{
		"wa_id":       c.WaID,
		"name":        c.Name,
		"is_blocked":  c.IsBlocked,
		"is_favorite": c.IsFavorite,
	}
	if c.Age != nil {
		out["age"] = *c.Age
	}
	return out
}

func vacationJSON(p store.VacationPeriod) map[string]any {
	return map[string]any{
		"id":         p.ID,
		"start_date": p.StartDate.Format("2006-01-02"),
		"end_date":   p.EndDate.Format("2006-01-02"),
		"title":      p.Title,
	}
}

func messagesJSON(msgs []store.ConversationMessage) []map[string]any {
	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, map[string]any{
			"wa_id":   m.WaID,
			"role":    m.Role,
			"message": m.Message,
			"date":    m.Date.Format("2006-01-02"),
			"time":    m.Time,
		})
	}
	return out
}
