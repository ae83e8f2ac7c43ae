// Package inventory tracks how many tickets of each tier are left.
package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kirinyoku/tix-wizard/internal/domain"
	"github.com/kirinyoku/tix-wizard/internal/storage"
)

// DefaultCap is the starting count of every seeded tier.
const DefaultCap = 20

// Defaults returns the seeded ticket tiers.
func Defaults() []domain.TicketTypeOption {
	return []domain.TicketTypeOption{
		{Name: domain.TypeRegular, Price: domain.FreePrice(), Remaining: DefaultCap},
		{Name: domain.TypeVIP, Price: domain.Dollars(50), Remaining: DefaultCap},
		{Name: domain.TypeVVIP, Price: domain.Dollars(150), Remaining: DefaultCap},
	}
}

// Store holds remaining counts per tier. Counts only ever go down.
type Store struct {
	mu      sync.RWMutex
	st      storage.Storage
	options []domain.TicketTypeOption
}

func NewStore(st storage.Storage) *Store {
	return &Store{st: st, options: Defaults()}
}

// SeedDefaults replaces the in-memory tiers with the defaults.
func (s *Store) SeedDefaults() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.options = Defaults()
}

// Load reads the persisted tiers. An absent or malformed slot is replaced
// by freshly seeded defaults, which are written back.
func (s *Store) Load(ctx context.Context) error {
	const op = "inventory.Store.Load"

	raw, ok, err := s.st.Get(ctx, storage.SlotInventory)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if ok {
		if opts, err := Decode(raw); err == nil {
			s.mu.Lock()
			s.options = opts
			s.mu.Unlock()
			return nil
		}
	}

	s.SeedDefaults()

	if err := s.Save(ctx); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// Save writes the current tiers to storage.
func (s *Store) Save(ctx context.Context) error {
	const op = "inventory.Store.Save"

	raw, err := s.Encode()
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if err := s.st.Set(ctx, storage.SlotInventory, raw); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// Encode returns the persisted form of the tiers.
func (s *Store) Encode() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, err := json.Marshal(s.options)
	if err != nil {
		return "", err
	}

	return string(b), nil
}

// Decode parses and checks a persisted tier list.
func Decode(raw string) ([]domain.TicketTypeOption, error) {
	var opts []domain.TicketTypeOption
	if err := json.Unmarshal([]byte(raw), &opts); err != nil {
		return nil, err
	}

	if len(opts) == 0 {
		return nil, fmt.Errorf("empty inventory")
	}

	seen := make(map[string]struct{}, len(opts))
	for _, o := range opts {
		if o.Name == "" {
			return nil, fmt.Errorf("ticket type without name")
		}
		if _, dup := seen[o.Name]; dup {
			return nil, fmt.Errorf("duplicate ticket type %q", o.Name)
		}
		if o.Remaining < 0 {
			return nil, fmt.Errorf("negative remaining for %q", o.Name)
		}
		seen[o.Name] = struct{}{}
	}

	return opts, nil
}

// Options returns a copy of the tiers in display order.
func (s *Store) Options() []domain.TicketTypeOption {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.TicketTypeOption, len(s.options))
	copy(out, s.options)
	return out
}

func (s *Store) Lookup(ticketType string) (domain.TicketTypeOption, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, o := range s.options {
		if o.Name == ticketType {
			return o, true
		}
	}

	return domain.TicketTypeOption{}, false
}

// Remaining returns the count left for ticketType, zero when unknown.
func (s *Store) Remaining(ticketType string) int {
	o, _ := s.Lookup(ticketType)
	return o.Remaining
}

// MaxSelectable is the largest quantity a single booking may take.
func (s *Store) MaxSelectable(ticketType string) int {
	return MaxSelectable(s.Remaining(ticketType))
}

// MaxSelectable caps a booking at MaxQuantity or what is left.
func MaxSelectable(remaining int) int {
	return max(0, min(domain.MaxQuantity, remaining))
}

// Selectable reports whether at least one ticket of the tier is left.
func (s *Store) Selectable(ticketType string) bool {
	return s.Remaining(ticketType) > 0
}

// Check reports whether amount tickets of ticketType could be taken.
func (s *Store) Check(ticketType string, amount int) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	o, ok := s.Lookup(ticketType)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, ticketType)
	}

	if amount > o.Remaining {
		return InsufficientError{Type: ticketType, Requested: amount, Remaining: o.Remaining}
	}

	return nil
}

// Decrement takes amount tickets of ticketType. It fails without change
// when fewer remain.
func (s *Store) Decrement(ticketType string, amount int) error {
	const op = "inventory.Store.Decrement"

	s.mu.Lock()
	defer s.mu.Unlock()

	if amount <= 0 {
		return fmt.Errorf("%s:%w", op, ErrInvalidAmount)
	}

	for i := range s.options {
		o := &s.options[i]
		if o.Name != ticketType {
			continue
		}

		if amount > o.Remaining {
			return fmt.Errorf("%s:%w", op, InsufficientError{Type: ticketType, Requested: amount, Remaining: o.Remaining})
		}

		o.Remaining = max(0, o.Remaining-amount)
		return nil
	}

	return fmt.Errorf("%s:%w: %q", op, ErrUnknownType, ticketType)
}
