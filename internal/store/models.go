package store

import "time"

// Reservation statuses and types.
const (
	StatusActive    = "active"
	StatusCancelled = "cancelled"

	TypeCheckUp  = 0
	TypeFollowUp = 1
)

// Queue item statuses.
const (
	QueuePending    = "pending"
	QueueProcessing = "processing"
	QueueDone       = "done"
	QueueFailed     = "failed"
)

// Customer is a WhatsApp identity known to the clinic.
type Customer struct {
	WaID          string
	Name          string
	Age           *int
	AgeRecordedAt *time.Time
	IsBlocked     bool
	IsFavorite    bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Reservation is one appointment row. Date is a civil date in the clinic
// timezone; TimeSlot is the 24h "HH:MM" slot start.
type Reservation struct {
	ID          int64
	WaID        string
	Date        time.Time
	TimeSlot    string
	Type        int
	Status      string
	CancelledAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ConversationMessage is one append-only log row.
type ConversationMessage struct {
	ID      int64
	WaID    string
	Role    string // user, assistant, secretary, tool
	Message string
	Date    time.Time
	Time    string // "HH:MM:SS"
}

// QueueItem is one durable inbound webhook payload.
type QueueItem struct {
	ID        int64
	MessageID string
	WaID      string
	Payload   []byte
	Status    string
	Attempts  int
	LockedAt  *time.Time
	CreatedAt time.Time
}

// VacationPeriod is an inclusive closed-date range.
type VacationPeriod struct {
	ID        int64
	StartDate time.Time
	EndDate   time.Time
	Title     string
}
