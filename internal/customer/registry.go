package customer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dahshury/clinic-whatsapp-bot/internal/store"
)

// Validation failures surfaced to callers.
var (
	ErrInvalidWaID = errors.New("customer: wa_id must be 8 to 15 digits")
	ErrInvalidName = errors.New("customer: name must not be empty")
	ErrInvalidAge  = errors.New("customer: age must be between 0 and 120")
)

// Store is the slice of the persistence layer the registry needs.
type Store interface {
	Get(ctx context.Context, waID string) (store.Customer, error)
	Upsert(ctx context.Context, waID, name string) (store.Customer, error)
	Rename(ctx context.Context, waID, name string) (store.Customer, error)
	SetAge(ctx context.Context, waID string, age *int) (store.Customer, error)
	SetFlags(ctx context.Context, waID string, blocked, favorite bool) (store.Customer, error)
	MergeWaID(ctx context.Context, oldWaID, newWaID string) error
	Search(ctx context.Context, q string, limit int) ([]store.Customer, error)
}

// Registry owns customer identity: creation, naming, age and wa_id merges.
type Registry struct {
	store Store
}

func NewRegistry(s Store) *Registry {
	return &Registry{store: s}
}

// ValidWaID reports whether s is a bare E.164 number, digits only, 8 to 15
// characters.
func ValidWaID(s string) bool {
	if len(s) < 8 || len(s) > 15 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// GetOrCreate loads the customer, creating the row on first contact. A
// non-empty name updates the stored one.
func (r *Registry) GetOrCreate(ctx context.Context, waID, name string) (store.Customer, error) {
	if !ValidWaID(waID) {
		return store.Customer{}, ErrInvalidWaID
	}
	c, err := r.store.Upsert(ctx, waID, strings.TrimSpace(name))
	if err != nil {
		return store.Customer{}, fmt.Errorf("customer: get or create %s: %w", waID, err)
	}
	return c, nil
}

// Upsert records the wa_id and name without returning the row.
func (r *Registry) Upsert(ctx context.Context, waID, name string) error {
	_, err := r.GetOrCreate(ctx, waID, name)
	return err
}

// Get loads a customer without creating it.
func (r *Registry) Get(ctx context.Context, waID string) (store.Customer, error) {
	if !ValidWaID(waID) {
		return store.Customer{}, ErrInvalidWaID
	}
	return r.store.Get(ctx, waID)
}

// Rename changes the display name and returns the previous one so callers
// can offer an undo.
func (r *Registry) Rename(ctx context.Context, waID, newName string) (oldName string, err error) {
	if !ValidWaID(waID) {
		return "", ErrInvalidWaID
	}
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return "", ErrInvalidName
	}
	prev, err := r.store.Get(ctx, waID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("customer: rename %s: %w", waID, err)
	}
	if errors.Is(err, store.ErrNotFound) {
		if _, err := r.store.Upsert(ctx, waID, newName); err != nil {
			return "", fmt.Errorf("customer: rename %s: %w", waID, err)
		}
		return "", nil
	}
	if _, err := r.store.Rename(ctx, waID, newName); err != nil {
		return "", fmt.Errorf("customer: rename %s: %w", waID, err)
	}
	return prev.Name, nil
}

// SetAge records the customer's age; a nil age clears it.
func (r *Registry) SetAge(ctx context.Context, waID string, age *int) (store.Customer, error) {
	if !ValidWaID(waID) {
		return store.Customer{}, ErrInvalidWaID
	}
	if age != nil && (*age < 0 || *age > 120) {
		return store.Customer{}, ErrInvalidAge
	}
	c, err := r.store.SetAge(ctx, waID, age)
	if err != nil {
		return store.Customer{}, fmt.Errorf("customer: set age %s: %w", waID, err)
	}
	return c, nil
}

// SetFlags updates the blocked/favorite markers.
func (r *Registry) SetFlags(ctx context.Context, waID string, blocked, favorite bool) (store.Customer, error) {
	if !ValidWaID(waID) {
		return store.Customer{}, ErrInvalidWaID
	}
	return r.store.SetFlags(ctx, waID, blocked, favorite)
}

// MergeWaID moves a customer's history to a new number. The rewrite spans
// customers, conversation and reservations in one transaction.
func (r *Registry) MergeWaID(ctx context.Context, oldWaID, newWaID string) error {
	if !ValidWaID(oldWaID) || !ValidWaID(newWaID) {
		return ErrInvalidWaID
	}
	if oldWaID == newWaID {
		return nil
	}
	if err := r.store.MergeWaID(ctx, oldWaID, newWaID); err != nil {
		return fmt.Errorf("customer: merge %s into %s: %w", oldWaID, newWaID, err)
	}
	return nil
}

// Search finds customers by partial name or number.
func (r *Registry) Search(ctx context.Context, q string, limit int) ([]store.Customer, error) {
	return r.store.Search(ctx, q, limit)
}
