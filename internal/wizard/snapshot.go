package wizard

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/kirinyoku/tix-wizard/internal/domain"
	"github.com/kirinyoku/tix-wizard/internal/storage"
	"github.com/kirinyoku/tix-wizard/internal/validation"
)

// Snapshot is the persisted position and draft pair.
type Snapshot struct {
	Position domain.Position
	Draft    domain.Draft
}

// EncodeSnapshot returns the currentStep and ticketData slot values.
func EncodeSnapshot(s Snapshot) (step, data string, err error) {
	b, err := json.Marshal(s.Draft)
	if err != nil {
		return "", "", err
	}
	return strconv.Itoa(int(s.Position)), string(b), nil
}

// DecodeSnapshot parses the currentStep and ticketData slot values. An
// empty step means SELECTION and empty data means an empty draft.
func DecodeSnapshot(step, data string) (Snapshot, error) {
	s := Snapshot{Position: domain.Selection, Draft: domain.EmptyDraft()}

	if step != "" {
		p, err := domain.ParsePosition(step)
		if err != nil {
			return Snapshot{}, err
		}
		s.Position = p
	}

	if data != "" {
		d := domain.EmptyDraft()
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			return Snapshot{}, fmt.Errorf("invalid ticket data: %w", err)
		}
		if d.Quantity < domain.MinQuantity || d.Quantity > domain.MaxQuantity {
			return Snapshot{}, fmt.Errorf("invalid ticket quantity %d", d.Quantity)
		}
		s.Draft = d
	}

	return s, nil
}

// slotValueLocked returns the current persisted form of slot.
func (m *Machine) slotValueLocked(slot string) (string, error) {
	switch slot {
	case storage.SlotCurrentStep:
		return strconv.Itoa(int(m.position)), nil
	case storage.SlotTicketData:
		b, err := json.Marshal(m.draft)
		return string(b), err
	case storage.SlotTicketForm:
		b, err := json.Marshal(m.form)
		return string(b), err
	case storage.SlotInventory:
		return m.inv.Encode()
	default:
		return "", fmt.Errorf("unknown slot %q", slot)
	}
}

// storageTimeout bounds a single snapshot read or write.
const storageTimeout = 5 * time.Second

// storageContext detaches storage I/O from the caller's cancellation. A
// state change made in memory is always written out, even when the
// request that caused it has gone away.
func storageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), storageTimeout)
}

// persist writes the given slots in one batch. Storage failures are logged
// and never returned: the session keeps running from memory.
func (m *Machine) persist(ctx context.Context, slots ...string) {
	ctx, cancel := storageContext(ctx)
	defer cancel()

	kv := make(map[string]string, len(slots))
	for _, slot := range slots {
		v, err := m.slotValueLocked(slot)
		if err != nil {
			m.logger.Error("failed to encode slot", "slot", slot, "error", err)
			return
		}
		kv[slot] = v
	}

	if err := m.st.SetMany(ctx, kv); err != nil {
		m.logger.Warn("failed to persist snapshot", "error", err)
	}
}

func (m *Machine) readSlot(ctx context.Context, slot string) string {
	v, ok, err := m.st.Get(ctx, slot)
	if err != nil {
		m.logger.Warn("failed to read slot", "slot", slot, "error", err)
		return ""
	}
	if !ok {
		return ""
	}
	return v
}

// Restore loads the persisted snapshot. Absent or malformed data starts a
// fresh wizard without reporting an error. A snapshot whose position is
// ahead of what its draft supports is clamped back and re-persisted.
func (m *Machine) Restore(ctx context.Context) domain.State {
	ctx, cancel := storageContext(ctx)
	defer cancel()

	m.mu.Lock()

	if err := m.inv.Load(ctx); err != nil {
		m.logger.Warn("failed to load inventory", "error", err)
	}

	snap, err := DecodeSnapshot(
		m.readSlot(ctx, storage.SlotCurrentStep),
		m.readSlot(ctx, storage.SlotTicketData),
	)
	if err != nil {
		m.logger.Debug("discarding malformed snapshot", "error", err)
		snap = Snapshot{Position: domain.Selection, Draft: domain.EmptyDraft()}
		if err := m.st.Delete(ctx, storage.SlotCurrentStep, storage.SlotTicketData); err != nil {
			m.logger.Warn("failed to erase snapshot", "error", err)
		}
	}

	form := domain.FormCache{}
	if raw := m.readSlot(ctx, storage.SlotTicketForm); raw != "" {
		if err := json.Unmarshal([]byte(raw), &form); err != nil {
			form = domain.FormCache{}
		}
	}
	if !validation.IsRemoteURL(form.ProfilePhotoURL) {
		form.ProfilePhotoURL = ""
	}

	draft := sanitizeDraft(snap.Draft)
	position := min(snap.Position, m.supportedPosition(draft))

	m.position = position
	m.draft = draft
	m.form = form

	if position != snap.Position || draft != snap.Draft {
		m.logger.Info("clamped inconsistent snapshot", "stored", snap.Position, "restored", position)
		m.persist(ctx, storage.SlotCurrentStep, storage.SlotTicketData)
	}

	st := m.stateLocked()
	m.mu.Unlock()

	m.finish("restore", st, nil)

	return st
}

// sanitizeDraft drops a photo reference that is not a remote URL.
func sanitizeDraft(d domain.Draft) domain.Draft {
	if d.ProfilePhotoURL != "" && !validation.IsRemoteURL(d.ProfilePhotoURL) {
		d.ProfilePhotoURL = ""
	}
	return d
}

// supportedPosition is the furthest step the draft's fields allow.
func (m *Machine) supportedPosition(d domain.Draft) domain.Position {
	if d.SelectedType == "" {
		return domain.Selection
	}
	if _, ok := m.inv.Lookup(d.SelectedType); !ok {
		return domain.Selection
	}

	errs := validation.Validate(domain.AttendeeDetails{
		FullName:        d.FullName,
		Email:           d.Email,
		ProfilePhotoURL: d.ProfilePhotoURL,
		SpecialRequest:  d.SpecialRequest,
	})
	if !errs.Empty() {
		return domain.Details
	}

	return domain.Ready
}
