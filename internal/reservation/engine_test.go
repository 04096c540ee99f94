package reservation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dahshury/clinic-whatsapp-bot/internal/calendar"
	"github.com/dahshury/clinic-whatsapp-bot/internal/store"
)

type fakeStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]store.Reservation
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[int64]store.Reservation)}
}

func (f *fakeStore) activeCount(date time.Time, slot string, excludeID int64) int {
	n := 0
	for _, r := range f.rows {
		if r.ID != excludeID && r.Status == store.StatusActive && r.Date.Equal(date) && r.TimeSlot == slot {
			n++
		}
	}
	return n
}

func (f *fakeStore) CreateWithCapacity(_ context.Context, waID string, date time.Time, slot string, typ int, capacity int) (store.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activeCount(date, slot, 0) >= capacity {
		return store.Reservation{}, store.ErrSlotFull
	}
	f.nextID++
	r := store.Reservation{ID: f.nextID, WaID: waID, Date: date, TimeSlot: slot, Type: typ, Status: store.StatusActive}
	f.rows[r.ID] = r
	return r, nil
}

func (f *fakeStore) MoveWithCapacity(_ context.Context, id int64, date time.Time, slot string, typ int, capacity int) (store.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok || r.Status != store.StatusActive {
		return store.Reservation{}, store.ErrNotFound
	}
	if f.activeCount(date, slot, id) >= capacity {
		return store.Reservation{}, store.ErrSlotFull
	}
	r.Date, r.TimeSlot, r.Type = date, slot, typ
	f.rows[id] = r
	return r, nil
}

func (f *fakeStore) Reinstate(_ context.Context, id int64, capacity int) (store.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok || r.Status != store.StatusCancelled {
		return store.Reservation{}, store.ErrNotFound
	}
	if f.activeCount(r.Date, r.TimeSlot, id) >= capacity {
		return store.Reservation{}, store.ErrSlotFull
	}
	r.Status = store.StatusActive
	f.rows[id] = r
	return r, nil
}

func (f *fakeStore) Cancel(_ context.Context, id int64) (store.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok || r.Status != store.StatusActive {
		return store.Reservation{}, store.ErrNotFound
	}
	r.Status = store.StatusCancelled
	f.rows[id] = r
	return r, nil
}

func (f *fakeStore) GetByID(_ context.Context, id int64) (store.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return store.Reservation{}, store.ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) ActiveCountsForDate(_ context.Context, date time.Time) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[string]int)
	for _, r := range f.rows {
		if r.Status == store.StatusActive && r.Date.Equal(date) {
			counts[r.TimeSlot]++
		}
	}
	return counts, nil
}

func (f *fakeStore) ActiveFuture(_ context.Context, waID string, nowDate time.Time, nowSlot string) ([]store.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Reservation
	for _, r := range f.rows {
		if r.WaID != waID || r.Status != store.StatusActive {
			continue
		}
		if r.Date.After(nowDate) || (r.Date.Equal(nowDate) && r.TimeSlot > nowSlot) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].TimeSlot < out[j].TimeSlot
	})
	return out, nil
}

func (f *fakeStore) FindCancelledExact(_ context.Context, waID string, date time.Time, slot string) (store.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.WaID == waID && r.Status == store.StatusCancelled && r.Date.Equal(date) && r.TimeSlot == slot {
			return r, nil
		}
	}
	return store.Reservation{}, store.ErrNotFound
}

func (f *fakeStore) ListForDate(_ context.Context, date time.Time, includeCancelled bool) ([]store.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Reservation
	for _, r := range f.rows {
		if r.Date.Equal(date) && (includeCancelled || r.Status == store.StatusActive) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) ListForWaID(_ context.Context, waID string) ([]store.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Reservation
	for _, r := range f.rows {
		if r.WaID == waID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) ListRange(_ context.Context, from, to time.Time) ([]store.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Reservation
	for _, r := range f.rows {
		if !r.Date.Before(from) && !r.Date.After(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeVacations struct {
	periods []store.VacationPeriod
}

func (f *fakeVacations) List(context.Context) ([]store.VacationPeriod, error) {
	return f.periods, nil
}

type fakeDirectory struct {
	mu    sync.Mutex
	names map[string]string
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{names: make(map[string]string)}
}

func (f *fakeDirectory) Upsert(_ context.Context, waID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.names[waID]; !ok || name != "" {
		f.names[waID] = name
	}
	return nil
}

func (f *fakeDirectory) Rename(_ context.Context, waID, newName string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	old := f.names[waID]
	f.names[waID] = newName
	return old, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeNotifier) Broadcast(eventType string, _ map[string]any, _ []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
}

func (f *fakeNotifier) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

// Monday 2025-01-06 09:00 UTC; slots that week are 11:00, 13:00, 15:00.
var testNow = time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Engine, *fakeStore, *fakeDirectory, *fakeNotifier, *fakeVacations) {
	t.Helper()
	fs := newFakeStore()
	dir := newFakeDirectory()
	vac := &fakeVacations{}
	notif := &fakeNotifier{}
	e := NewEngine(fs, vac, dir, calendar.DefaultSchedule(time.UTC), nil, nil,
		WithClock(func() time.Time { return testNow }),
		WithNotifier(notif),
	)
	return e, fs, dir, notif, vac
}

func TestReserveHappyPath(t *testing.T) {
	e, fs, dir, notif, _ := newTestEngine(t)

	res, err := e.Reserve(context.Background(), ReserveRequest{
		WaID: "966500000001", CustomerName: "Ada", Date: "2025-01-07", Time: "11:00 AM", Type: 0,
	})
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	assert.Equal(t, int64(1), res.Data["reservation_id"])
	assert.Equal(t, "2025-01-07", res.Data["gregorian_date"])
	assert.Equal(t, "11:00 AM", res.Data["time_slot"])
	assert.Equal(t, "11:00", res.Data["time_slot_24h"])
	assert.NotEmpty(t, res.Data["hijri_date"])

	row, err := fs.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, row.Status)
	assert.Equal(t, "Ada", dir.names["966500000001"])
	assert.Equal(t, []string{"created"}, notif.Events())
}

func TestReserveValidationOrder(t *testing.T) {
	e, _, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  ReserveRequest
	}{
		{"bad phone", ReserveRequest{WaID: "abc", CustomerName: "Ada", Date: "2025-01-07", Time: "11:00", Type: 0}},
		{"empty name", ReserveRequest{WaID: "966500000001", CustomerName: "  ", Date: "2025-01-07", Time: "11:00", Type: 0}},
		{"bad type", ReserveRequest{WaID: "966500000001", CustomerName: "Ada", Date: "2025-01-07", Time: "11:00", Type: 7}},
		{"bad date", ReserveRequest{WaID: "966500000001", CustomerName: "Ada", Date: "tomorrow", Time: "11:00", Type: 0}},
		{"past date", ReserveRequest{WaID: "966500000001", CustomerName: "Ada", Date: "2024-12-30", Time: "11:00", Type: 0}},
		{"off hours", ReserveRequest{WaID: "966500000001", CustomerName: "Ada", Date: "2025-01-07", Time: "09:00", Type: 0}},
		{"friday closed", ReserveRequest{WaID: "966500000001", CustomerName: "Ada", Date: "2025-01-10", Time: "11:00", Type: 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := e.Reserve(ctx, tc.req)
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.NotEmpty(t, res.Message)
		})
	}
}

func TestReserveSlotFull(t *testing.T) {
	e, _, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := e.Reserve(ctx, ReserveRequest{
			WaID: fmt.Sprintf("96650000000%d", i), CustomerName: "C", Date: "2025-01-07", Time: "11:00 AM", Type: 0,
		})
		require.NoError(t, err)
		require.True(t, res.Success, res.Message)
	}

	res, err := e.Reserve(ctx, ReserveRequest{
		WaID: "966500000099", CustomerName: "Zed", Date: "2025-01-07", Time: "11:00 AM", Type: 0,
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "fully booked")
}

func TestReserveReroutesToModify(t *testing.T) {
	e, fs, _, notif, _ := newTestEngine(t)
	ctx := context.Background()

	first, err := e.Reserve(ctx, ReserveRequest{
		WaID: "966500000001", CustomerName: "Ada", Date: "2025-01-07", Time: "11:00 AM", Type: 0,
	})
	require.NoError(t, err)
	require.True(t, first.Success)
	id := first.Data["reservation_id"].(int64)

	second, err := e.Reserve(ctx, ReserveRequest{
		WaID: "966500000001", CustomerName: "Ada", Date: "2025-01-08", Time: "02:00 PM", Type: 1,
	})
	require.NoError(t, err)
	require.True(t, second.Success, second.Message)
	assert.Equal(t, id, second.Data["reservation_id"])

	row, err := fs.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-08", row.Date.Format("2006-01-02"))
	assert.Equal(t, "14:00", row.TimeSlot)
	assert.Equal(t, 1, row.Type)

	rows, err := fs.ListForWaID(ctx, "966500000001")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, []string{"created", "updated"}, notif.Events())
}

func TestReserveReinstatesExactCancelledMatch(t *testing.T) {
	e, fs, _, notif, _ := newTestEngine(t)
	ctx := context.Background()

	res, err := e.Reserve(ctx, ReserveRequest{
		WaID: "966500000001", CustomerName: "Ada", Date: "2025-01-07", Time: "11:00 AM", Type: 0,
	})
	require.NoError(t, err)
	id := res.Data["reservation_id"].(int64)

	_, err = e.Cancel(ctx, CancelRequest{WaID: "966500000001", ReservationID: id})
	require.NoError(t, err)

	again, err := e.Reserve(ctx, ReserveRequest{
		WaID: "966500000001", CustomerName: "Ada", Date: "2025-01-07", Time: "11:00 AM", Type: 0,
	})
	require.NoError(t, err)
	require.True(t, again.Success, again.Message)
	assert.Equal(t, id, again.Data["reservation_id"])

	row, err := fs.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, row.Status)
	assert.Equal(t, []string{"created", "cancelled", "reinstated"}, notif.Events())
}

func TestModifyRequiresAField(t *testing.T) {
	e, _, _, _, _ := newTestEngine(t)

	res, err := e.Modify(context.Background(), ModifyRequest{WaID: "966500000001"})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestModifyReturnsOriginalData(t *testing.T) {
	e, _, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	first, err := e.Reserve(ctx, ReserveRequest{
		WaID: "966500000001", CustomerName: "Ada", Date: "2025-01-07", Time: "11:00 AM", Type: 0,
	})
	require.NoError(t, err)
	require.True(t, first.Success)

	res, err := e.Modify(ctx, ModifyRequest{
		WaID: "966500000001", NewTime: "01:00 PM", NewName: "Ada Lovelace",
	})
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "13:00", res.Data["time_slot_24h"])
	assert.Equal(t, "Ada Lovelace", res.Data["customer_name"])

	orig, ok := res.Data["original_data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "11:00", orig["time_slot_24h"])
	assert.Equal(t, "2025-01-07", orig["gregorian_date"])
	assert.Equal(t, "Ada", orig["customer_name"])
}

func TestModifyApproximatePicksNearestSlot(t *testing.T) {
	e, fs, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	// Fill 13:00 on 2025-01-08 to agent capacity.
	for i := 0; i < 5; i++ {
		_, err := fs.CreateWithCapacity(ctx, fmt.Sprintf("96651000000%d", i),
			time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC), "13:00", 0, 5)
		require.NoError(t, err)
	}

	first, err := e.Reserve(ctx, ReserveRequest{
		WaID: "966500000001", CustomerName: "Ada", Date: "2025-01-07", Time: "11:00 AM", Type: 0,
	})
	require.NoError(t, err)
	require.True(t, first.Success)

	res, err := e.Modify(ctx, ModifyRequest{
		WaID: "966500000001", NewDate: "2025-01-08", NewTime: "01:00 PM", Approximate: true,
	})
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	// 11:00 and 15:00 are equally close; the earlier slot wins.
	assert.Equal(t, "11:00", res.Data["time_slot_24h"])
	assert.Equal(t, "2025-01-08", res.Data["gregorian_date"])
}

func TestModifyExactFullWithoutApproximateFails(t *testing.T) {
	e, fs, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := fs.CreateWithCapacity(ctx, fmt.Sprintf("96651000000%d", i),
			time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC), "13:00", 0, 5)
		require.NoError(t, err)
	}
	first, err := e.Reserve(ctx, ReserveRequest{
		WaID: "966500000001", CustomerName: "Ada", Date: "2025-01-07", Time: "11:00 AM", Type: 0,
	})
	require.NoError(t, err)
	require.True(t, first.Success)

	res, err := e.Modify(ctx, ModifyRequest{
		WaID: "966500000001", NewDate: "2025-01-08", NewTime: "01:00 PM",
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "fully booked")
}

func TestCancelByDateThenUndo(t *testing.T) {
	e, fs, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	first, err := e.Reserve(ctx, ReserveRequest{
		WaID: "966500000001", CustomerName: "Ada", Date: "2025-01-07", Time: "11:00 AM", Type: 0,
	})
	require.NoError(t, err)
	require.True(t, first.Success)
	id := first.Data["reservation_id"].(int64)

	cancelled, err := e.Cancel(ctx, CancelRequest{WaID: "966500000001", Date: "2025-01-07"})
	require.NoError(t, err)
	require.True(t, cancelled.Success, cancelled.Message)
	assert.Equal(t, []int64{id}, cancelled.Data["cancelled_ids"])

	row, err := fs.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCancelled, row.Status)

	undone, err := e.UndoCancel(ctx, id, PersonaAgent, false)
	require.NoError(t, err)
	require.True(t, undone.Success, undone.Message)

	row, err = fs.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, row.Status)
	assert.Equal(t, "2025-01-07", row.Date.Format("2006-01-02"))
	assert.Equal(t, "11:00", row.TimeSlot)
	assert.Equal(t, 0, row.Type)
}

func TestCancelAllFuture(t *testing.T) {
	e, fs, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	for i, date := range []time.Time{
		time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC),
	} {
		_, err := fs.CreateWithCapacity(ctx, "966500000001", date, "11:00", i%2, 5)
		require.NoError(t, err)
	}
	// A past row must survive a blanket cancel.
	past, err := fs.CreateWithCapacity(ctx, "966500000001",
		time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), "11:00", 0, 5)
	require.NoError(t, err)

	res, err := e.Cancel(ctx, CancelRequest{WaID: "966500000001"})
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	assert.Len(t, res.Data["cancelled_ids"], 2)

	row, err := fs.GetByID(ctx, past.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, row.Status)
}

func TestCancelPastByIDRejected(t *testing.T) {
	e, fs, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	past, err := fs.CreateWithCapacity(ctx, "966500000001",
		time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), "11:00", 0, 5)
	require.NoError(t, err)

	res, err := e.Cancel(ctx, CancelRequest{WaID: "966500000001", ReservationID: past.ID})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestCancelOwnershipEnforced(t *testing.T) {
	e, fs, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	other, err := fs.CreateWithCapacity(ctx, "966500000002",
		time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC), "11:00", 0, 5)
	require.NoError(t, err)

	res, err := e.Cancel(ctx, CancelRequest{WaID: "966500000001", ReservationID: other.ID})
	require.NoError(t, err)
	assert.False(t, res.Success)

	row, err := fs.GetByID(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, row.Status)
}

func TestUndoReserve(t *testing.T) {
	e, fs, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	first, err := e.Reserve(ctx, ReserveRequest{
		WaID: "966500000001", CustomerName: "Ada", Date: "2025-01-07", Time: "11:00 AM", Type: 0,
	})
	require.NoError(t, err)
	id := first.Data["reservation_id"].(int64)

	res, err := e.UndoReserve(ctx, id, false)
	require.NoError(t, err)
	require.True(t, res.Success)

	row, err := fs.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCancelled, row.Status)
}

func TestGetAvailableSlots(t *testing.T) {
	e, fs, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := fs.CreateWithCapacity(ctx, fmt.Sprintf("96651000000%d", i),
			time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC), "11:00", 0, 5)
		require.NoError(t, err)
	}

	res, err := e.GetAvailableSlots(ctx, AvailabilityRequest{Date: "2025-01-07"})
	require.NoError(t, err)
	require.True(t, res.Success)

	slots := res.Data["time_slots"].([]map[string]any)
	require.Len(t, slots, 2)
	assert.Equal(t, "13:00", slots[0]["time_slot_24h"])
	assert.Equal(t, "01:00 PM", slots[0]["time_slot"])
	assert.Equal(t, "15:00", slots[1]["time_slot_24h"])
}

func TestGetAvailableSlotsSkipsElapsedToday(t *testing.T) {
	e, _, _, _, _ := newTestEngine(t)

	// Clock is 09:00; every Monday slot is still ahead.
	res, err := e.GetAvailableSlots(context.Background(), AvailabilityRequest{Date: "2025-01-06"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Len(t, res.Data["time_slots"], 3)
}

func TestGetAvailableSlotsOnVacation(t *testing.T) {
	e, _, _, _, vac := newTestEngine(t)
	vac.periods = []store.VacationPeriod{{
		ID:        1,
		StartDate: time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC),
		Title:     "Eid",
	}}

	res, err := e.GetAvailableSlots(context.Background(), AvailabilityRequest{Date: "2025-01-08"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Empty(t, res.Data["time_slots"])
	assert.NotNil(t, res.Data["vacation"])
}

func TestSearchAppointmentsClosestSlot(t *testing.T) {
	e, fs, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	// 2025-01-07 keeps only 15:00 free.
	for _, slot := range []string{"11:00", "13:00"} {
		for i := 0; i < 5; i++ {
			_, err := fs.CreateWithCapacity(ctx, fmt.Sprintf("9665%s0000%d", slot[:2], i),
				time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC), slot, 0, 5)
			require.NoError(t, err)
		}
	}

	res, err := e.SearchAppointments(ctx, SearchRequest{
		StartDate: "2025-01-07", TimeSlot: "11:00 AM", DaysForward: 1,
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	results := res.Data["results"].([]map[string]any)
	require.Len(t, results, 2)

	assert.Equal(t, "2025-01-07", results[0]["gregorian_date"])
	assert.Equal(t, "15:00", results[0]["time_slot_24h"])
	assert.Equal(t, false, results[0]["is_exact"])

	assert.Equal(t, "2025-01-08", results[1]["gregorian_date"])
	assert.Equal(t, "11:00", results[1]["time_slot_24h"])
	assert.Equal(t, true, results[1]["is_exact"])
}

func TestSearchAppointmentsJumpsPastVacation(t *testing.T) {
	e, _, _, _, vac := newTestEngine(t)
	vac.periods = []store.VacationPeriod{{
		ID:        1,
		StartDate: time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC),
		Title:     "Eid",
	}}

	res, err := e.SearchAppointments(context.Background(), SearchRequest{DaysForward: 2})
	require.NoError(t, err)
	require.True(t, res.Success)

	results := res.Data["results"].([]map[string]any)
	require.NotEmpty(t, results)
	// Today (Jan 6) is covered, so the scan starts at Jan 9.
	assert.Equal(t, "2025-01-09", results[0]["gregorian_date"])

	info, ok := res.Data["vacation_info"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "current", info["status"])
	assert.Equal(t, 0, info["days_until"])
}

func TestSearchAppointmentsSkipsFridays(t *testing.T) {
	e, _, _, _, _ := newTestEngine(t)

	res, err := e.SearchAppointments(context.Background(), SearchRequest{
		StartDate: "2025-01-10", DaysForward: 1, // Friday
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	results := res.Data["results"].([]map[string]any)
	require.Len(t, results, 1)
	assert.Equal(t, "2025-01-11", results[0]["gregorian_date"])
}
