package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dahshury/clinic-whatsapp-bot/internal/reservation"
	"github.com/dahshury/clinic-whatsapp-bot/internal/store"
)

type fakeReservationOps struct {
	lastReserve reservation.ReserveRequest
	lastModify  reservation.ModifyRequest
	lastCancel  reservation.CancelRequest
	result      reservation.Result
}

func (f *fakeReservationOps) Reserve(_ context.Context, req reservation.ReserveRequest) (reservation.Result, error) {
	f.lastReserve = req
	return f.result, nil
}

func (f *fakeReservationOps) Modify(_ context.Context, req reservation.ModifyRequest) (reservation.Result, error) {
	f.lastModify = req
	return f.result, nil
}

func (f *fakeReservationOps) Cancel(_ context.Context, req reservation.CancelRequest) (reservation.Result, error) {
	f.lastCancel = req
	return f.result, nil
}

func (f *fakeReservationOps) UndoCancel(context.Context, int64, reservation.Persona, bool) (reservation.Result, error) {
	return f.result, nil
}

func (f *fakeReservationOps) DateReservations(context.Context, string, bool, bool, bool) (reservation.Result, error) {
	return reservation.Result{Success: true, Data: map[string]any{"reservations": []any{}}}, nil
}

func (f *fakeReservationOps) CustomerReservations(context.Context, string, bool, bool) (reservation.Result, error) {
	return reservation.Result{Success: true, Data: map[string]any{"reservations": []any{}}}, nil
}

func (f *fakeReservationOps) GetAvailableSlots(context.Context, reservation.AvailabilityRequest) (reservation.Result, error) {
	return f.result, nil
}

type fakeCustomerOps struct {
	customers map[string]store.Customer
}

func (f *fakeCustomerOps) Get(_ context.Context, waID string) (store.Customer, error) {
	c, ok := f.customers[waID]
	if !ok {
		return store.Customer{}, store.ErrNotFound
	}
	return c, nil
}

func (f *fakeCustomerOps) Search(context.Context, string, int) ([]store.Customer, error) {
	var out []store.Customer
	for _, c := range f.customers {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeCustomerOps) Rename(_ context.Context, waID, newName string) (string, error) {
	c := f.customers[waID]
	old := c.Name
	c.Name = newName
	f.customers[waID] = c
	return old, nil
}

func (f *fakeCustomerOps) SetAge(_ context.Context, waID string, age *int) (store.Customer, error) {
	c := f.customers[waID]
	c.Age = age
	f.customers[waID] = c
	return c, nil
}

func (f *fakeCustomerOps) SetFlags(_ context.Context, waID string, blocked, favorite bool) (store.Customer, error) {
	c := f.customers[waID]
	c.IsBlocked, c.IsFavorite = blocked, favorite
	f.customers[waID] = c
	return c, nil
}

type fakeConversationOps struct{}

func (fakeConversationOps) History(_ context.Context, waID string) ([]store.ConversationMessage, error) {
	return []store.ConversationMessage{
		{WaID: waID, Role: "user", Message: "hello", Date: time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), Time: "09:00:00"},
	}, nil
}

func (fakeConversationOps) Recent(context.Context, int) ([]store.ConversationMessage, error) {
	return nil, nil
}

func (fakeConversationOps) WordCounts(context.Context, time.Time, int) (map[string]int, error) {
	return map[string]int{"hello": 3}, nil
}

type fakeVacationOps struct {
	periods []store.VacationPeriod
	nextID  int64
}

func (f *fakeVacationOps) List(context.Context) ([]store.VacationPeriod, error) {
	return f.periods, nil
}

func (f *fakeVacationOps) Create(_ context.Context, start, end time.Time, title string) (store.VacationPeriod, error) {
	f.nextID++
	p := store.VacationPeriod{ID: f.nextID, StartDate: start, EndDate: end, Title: title}
	f.periods = append(f.periods, p)
	return p, nil
}

func (f *fakeVacationOps) Update(_ context.Context, id int64, start, end time.Time, title string) (store.VacationPeriod, error) {
	for i, p := range f.periods {
		if p.ID == id {
			f.periods[i] = store.VacationPeriod{ID: id, StartDate: start, EndDate: end, Title: title}
			return f.periods[i], nil
		}
	}
	return store.VacationPeriod{}, store.ErrNotFound
}

func (f *fakeVacationOps) Delete(_ context.Context, id int64) error {
	for i, p := range f.periods {
		if p.ID == id {
			f.periods = append(f.periods[:i], f.periods[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

type fakeStatsOps struct{}

func (fakeStatsOps) CountByStatus(context.Context) (map[string]int, error) {
	return map[string]int{store.StatusActive: 4, store.StatusCancelled: 2}, nil
}

type fakeQueueOps struct{}

func (fakeQueueOps) Depth(context.Context) (int, float64, error) { return 1, 12.5, nil }

func newTestAPI(t *testing.T) (*fakeReservationOps, *fakeCustomerOps, *fakeVacationOps, http.Handler) {
	t.Helper()
	engine := &fakeReservationOps{result: reservation.Result{Success: true, Data: map[string]any{"reservation_id": int64(1)}}}
	customers := &fakeCustomerOps{customers: map[string]store.Customer{
		"966500000001": {WaID: "966500000001", Name: "Ahmad"},
	}}
	vacations := &fakeVacationOps{}
	op := NewOperatorHandler(engine, customers, fakeConversationOps{}, vacations, fakeStatsOps{}, fakeQueueOps{}, time.UTC, nil)
	router := New(&Config{Operator: op})
	return engine, customers, vacations, router
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	out := map[string]any{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestCreateReservationRunsAsSecretary(t *testing.T) {
	engine, _, _, router := newTestAPI(t)

	rec, out := do(t, router, http.MethodPost, "/api/reservations/",
		`{"wa_id":"966500000001","customer_name":"Ahmad","date":"2025-01-08","time_slot":"11:00","type":0}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, reservation.PersonaSecretary, engine.lastReserve.Persona)
	assert.Equal(t, "2025-01-08", engine.lastReserve.Date)
}

func TestModifyReservationPathID(t *testing.T) {
	engine, _, _, router := newTestAPI(t)

	rec, _ := do(t, router, http.MethodPut, "/api/reservations/42",
		`{"wa_id":"966500000001","new_time_slot":"13:00","approximate":true}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(42), engine.lastModify.ReservationID)
	assert.True(t, engine.lastModify.Approximate)

	rec, _ = do(t, router, http.MethodPut, "/api/reservations/zero", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelReservationByID(t *testing.T) {
	engine, _, _, router := newTestAPI(t)

	rec, _ := do(t, router, http.MethodDelete, "/api/reservations/7?wa_id=966500000001", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(7), engine.lastCancel.ReservationID)
	assert.Equal(t, "966500000001", engine.lastCancel.WaID)
}

func TestDomainFailureMapsTo422(t *testing.T) {
	engine, _, _, router := newTestAPI(t)
	engine.result = reservation.Result{Success: false, Message: "Time slot is fully booked"}

	rec, out := do(t, router, http.MethodPost, "/api/reservations/",
		`{"wa_id":"966500000001","customer_name":"Ahmad","date":"2025-01-08","time_slot":"11:00"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, false, out["success"])
}

func TestCustomerUpdateAndFetch(t *testing.T) {
	_, customers, _, router := newTestAPI(t)

	rec, out := do(t, router, http.MethodPut, "/api/customers/966500000001",
		`{"name":"Ahmad Ali","age":30,"is_favorite":true}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ahmad Ali", out["name"])
	assert.Equal(t, float64(30), out["age"])
	assert.Equal(t, true, out["is_favorite"])
	assert.Equal(t, "Ahmad Ali", customers.customers["966500000001"].Name)

	rec, _ = do(t, router, http.MethodGet, "/api/customers/999999999999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVacationLifecycle(t *testing.T) {
	_, _, vacations, router := newTestAPI(t)

	rec, out := do(t, router, http.MethodPost, "/api/vacations/",
		`{"start_date":"2025-02-01","end_date":"2025-02-07","title":"Eid"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Eid", out["title"])
	require.Len(t, vacations.periods, 1)

	rec, _ = do(t, router, http.MethodPost, "/api/vacations/",
		`{"start_date":"2025-02-07","end_date":"2025-02-01"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, router, http.MethodDelete, "/api/vacations/1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, vacations.periods)
}

func TestDashboardAggregates(t *testing.T) {
	_, _, _, router := newTestAPI(t)

	rec, out := do(t, router, http.MethodGet, "/api/dashboard", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	res := out["reservations"].(map[string]any)
	assert.Equal(t, float64(4), res["active"])
	assert.Equal(t, float64(2), res["cancelled"])
	queue := out["queue"].(map[string]any)
	assert.Equal(t, float64(1), queue["length"])
	words := out["word_counts"].(map[string]any)
	assert.Equal(t, float64(3), words["hello"])
}

func TestHealthEndpoint(t *testing.T) {
	_, _, _, router := newTestAPI(t)

	rec, out := do(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out["status"])
}
