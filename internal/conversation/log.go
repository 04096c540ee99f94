package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dahshury/clinic-whatsapp-bot/internal/store"
)

// Roles accepted in the conversation log.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSecretary = "secretary"
	RoleTool      = "tool"
)

// Store is the slice of the persistence layer the log needs.
type Store interface {
	Append(ctx context.Context, msg store.ConversationMessage) error
	Retrieve(ctx context.Context, waID string) ([]store.ConversationMessage, error)
	RetrieveRecent(ctx context.Context, limit int) ([]store.ConversationMessage, error)
	WordCounts(ctx context.Context, since time.Time, limit int) (map[string]int, error)
}

// Log is the append-only conversation history, plus the per-customer locks
// that serialize LLM turns for the same wa_id.
type Log struct {
	repo     Store
	location *time.Location

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New builds a Log writing through s, timestamping in loc.
func New(s Store, loc *time.Location) *Log {
	if loc == nil {
		loc = time.UTC
	}
	return &Log{
		repo:     s,
		location: loc,
		locks:    make(map[string]*sync.Mutex),
	}
}

// UserLock returns the mutex serializing work for one customer. Locks are
// created lazily and never removed; the population is bounded by the
// customer base.
func (l *Log) UserLock(waID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[waID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[waID] = m
	}
	return m
}

// Append records one turn, timestamped now in the clinic timezone.
func (l *Log) Append(ctx context.Context, waID, role, message string) error {
	now := time.Now().In(l.location)
	return l.AppendAt(ctx, waID, role, message, now)
}

// AppendAt records one turn with an explicit timestamp.
func (l *Log) AppendAt(ctx context.Context, waID, role, message string, at time.Time) error {
	at = at.In(l.location)
	msg := store.ConversationMessage{
		WaID:    waID,
		Role:    role,
		Message: message,
		Date:    time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, l.location),
		Time:    at.Format("15:04:05"),
	}
	if err := l.repo.Append(ctx, msg); err != nil {
		return fmt.Errorf("conversation: append %s/%s: %w", waID, role, err)
	}
	return nil
}

// History returns the full ordered transcript for one customer.
func (l *Log) History(ctx context.Context, waID string) ([]store.ConversationMessage, error) {
	return l.repo.Retrieve(ctx, waID)
}

// Recent returns the newest turns across all customers.
func (l *Log) Recent(ctx context.Context, limit int) ([]store.ConversationMessage, error) {
	return l.repo.RetrieveRecent(ctx, limit)
}

// WordCounts aggregates word frequencies for the dashboard word cloud.
func (l *Log) WordCounts(ctx context.Context, since time.Time, limit int) (map[string]int, error) {
	return l.repo.WordCounts(ctx, since, limit)
}
