// Package wizard implements the three-step booking flow: ticket selection,
// attendee details and the ready ticket.
//
// A Machine owns the step position and the accumulated draft of one
// session. Every state-changing operation writes the full snapshot to the
// injected storage before returning and then notifies subscribers. Photo
// upload and ticket export run outside the machine lock; their in-flight
// status is exposed through Busy.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kirinyoku/tix-wizard/internal/domain"
	"github.com/kirinyoku/tix-wizard/internal/export"
	"github.com/kirinyoku/tix-wizard/internal/inventory"
	"github.com/kirinyoku/tix-wizard/internal/metrics"
	"github.com/kirinyoku/tix-wizard/internal/storage"
	"github.com/kirinyoku/tix-wizard/internal/upload"
	"github.com/kirinyoku/tix-wizard/internal/validation"
)

// Exporter renders a ready ticket.
type Exporter interface {
	Export(ctx context.Context, t export.Ticket) (export.Artifact, error)
}

// Observer is called after every successful state change.
type Observer func(op string, st domain.State)

type Deps struct {
	Storage  storage.Storage
	Uploader upload.Gateway
	Exporter Exporter
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

type Machine struct {
	mu sync.Mutex

	st       storage.Storage
	inv      *inventory.Store
	uploader upload.Gateway
	exporter Exporter
	logger   *slog.Logger
	metrics  *metrics.Metrics

	position domain.Position
	draft    domain.Draft
	form     domain.FormCache

	// uploadGen identifies the latest upload; results of older ones are
	// discarded.
	uploadGen uint64

	uploading  atomic.Bool
	submitting atomic.Bool
	exporting  atomic.Bool

	obsMu     sync.RWMutex
	observers map[int]Observer
	nextObs   int
}

// New returns a machine at SELECTION with an empty draft. Call Restore
// before use to load any persisted snapshot.
func New(deps Deps) *Machine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	st := deps.Storage
	if st == nil {
		st = storage.NewMemory()
	}

	return &Machine{
		st:        st,
		inv:       inventory.NewStore(st),
		uploader:  deps.Uploader,
		exporter:  deps.Exporter,
		logger:    logger,
		metrics:   deps.Metrics,
		position:  domain.Selection,
		draft:     domain.EmptyDraft(),
		observers: make(map[int]Observer),
	}
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (m *Machine) Subscribe(fn Observer) func() {
	m.obsMu.Lock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = fn
	m.obsMu.Unlock()

	return func() {
		m.obsMu.Lock()
		delete(m.observers, id)
		m.obsMu.Unlock()
	}
}

func (m *Machine) notify(op string, st domain.State) {
	m.obsMu.RLock()
	defer m.obsMu.RUnlock()

	for _, fn := range m.observers {
		fn(op, st)
	}
}

// finish records the outcome of op and notifies observers on success.
func (m *Machine) finish(op string, st domain.State, err error) {
	m.metrics.Operation(op, err)
	if err == nil {
		m.notify(op, st)
	}
}

func (m *Machine) Busy() domain.Busy {
	return domain.Busy{
		Uploading:  m.uploading.Load(),
		Submitting: m.submitting.Load(),
		Exporting:  m.exporting.Load(),
	}
}

// Persistent reports whether state still reaches durable storage.
func (m *Machine) Persistent() bool {
	if p, ok := m.st.(interface{ Persistent() bool }); ok {
		return p.Persistent()
	}
	return true
}

func (m *Machine) State() domain.State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.stateLocked()
}

func (m *Machine) stateLocked() domain.State {
	return domain.State{
		Position:    m.position,
		Step:        int(m.position),
		Draft:       m.draft,
		Form:        m.form,
		Inventory:   m.inv.Options(),
		Busy:        m.Busy(),
		Persistent:  m.Persistent(),
		SubmitLabel: domain.SubmitLabel(m.draft.SelectedType),
	}
}

// ConfirmSelection books quantity tickets of ticketType and advances to
// DETAILS. On failure nothing changes.
func (m *Machine) ConfirmSelection(ctx context.Context, ticketType string, quantity int) (domain.State, error) {
	const op = "wizard.Machine.ConfirmSelection"

	m.mu.Lock()
	st, err := m.confirmSelectionLocked(ctx, ticketType, quantity)
	m.mu.Unlock()

	m.finish("confirm_selection", st, err)
	if err != nil {
		return domain.State{}, fmt.Errorf("%s:%w", op, err)
	}

	return st, nil
}

func (m *Machine) confirmSelectionLocked(ctx context.Context, ticketType string, quantity int) (domain.State, error) {
	if m.position != domain.Selection {
		return domain.State{}, ErrInvalidTransition
	}

	if quantity < domain.MinQuantity || quantity > domain.MaxQuantity {
		return domain.State{}, ErrInvalidQuantity
	}

	if err := m.inv.Check(ticketType, quantity); err != nil {
		switch {
		case errors.Is(err, inventory.ErrUnknownType):
			return domain.State{}, fmt.Errorf("%w: %q", ErrUnknownTicketType, ticketType)
		case errors.Is(err, inventory.ErrInsufficientCount):
			return domain.State{}, fmt.Errorf("%w: %w", ErrInsufficientInventory, err)
		default:
			return domain.State{}, err
		}
	}

	if err := m.inv.Decrement(ticketType, quantity); err != nil {
		return domain.State{}, fmt.Errorf("%w: %w", ErrInsufficientInventory, err)
	}

	m.draft.SelectedType = ticketType
	m.draft.Quantity = quantity
	m.position = domain.Details

	m.persist(ctx, storage.SlotCurrentStep, storage.SlotTicketData, storage.SlotInventory)

	m.logger.Debug("selection confirmed", "type", ticketType, "quantity", quantity)

	return m.stateLocked(), nil
}

// GoBack returns from DETAILS to SELECTION. The inventory taken by the
// earlier confirmation is not given back.
func (m *Machine) GoBack(ctx context.Context) (domain.State, error) {
	const op = "wizard.Machine.GoBack"

	m.mu.Lock()
	var (
		st  domain.State
		err error
	)
	if m.position != domain.Details {
		err = ErrInvalidTransition
	} else {
		m.position = domain.Selection
		m.persist(ctx, storage.SlotCurrentStep, storage.SlotTicketData)
		st = m.stateLocked()
	}
	m.mu.Unlock()

	m.finish("go_back", st, err)
	if err != nil {
		return domain.State{}, fmt.Errorf("%s:%w", op, err)
	}

	return st, nil
}

// SubmitDetails validates the attendee details and advances to READY.
// An empty ProfilePhotoURL falls back to the photo uploaded for the draft.
func (m *Machine) SubmitDetails(ctx context.Context, details domain.AttendeeDetails) (domain.State, error) {
	const op = "wizard.Machine.SubmitDetails"

	if !m.submitting.CompareAndSwap(false, true) {
		return domain.State{}, fmt.Errorf("%s:%w", op, ErrBusy)
	}
	defer m.submitting.Store(false)

	m.mu.Lock()
	st, err := m.submitDetailsLocked(ctx, details)
	m.mu.Unlock()

	m.finish("submit_details", st, err)
	if err != nil {
		return domain.State{}, fmt.Errorf("%s:%w", op, err)
	}

	return st, nil
}

func (m *Machine) submitDetailsLocked(ctx context.Context, details domain.AttendeeDetails) (domain.State, error) {
	if m.position != domain.Details {
		return domain.State{}, ErrInvalidTransition
	}

	if m.uploading.Load() {
		return domain.State{}, ErrUploadPending
	}

	if details.ProfilePhotoURL == "" {
		details.ProfilePhotoURL = m.draft.ProfilePhotoURL
	}

	if errs := validation.Validate(details); !errs.Empty() {
		return domain.State{}, &ValidationError{
			Fields:       errs,
			PhotoMissing: details.ProfilePhotoURL == "",
		}
	}

	n := validation.Normalize(details)
	m.draft.FullName = n.FullName
	m.draft.Email = n.Email
	m.draft.ProfilePhotoURL = n.ProfilePhotoURL
	m.draft.SpecialRequest = n.SpecialRequest
	m.position = domain.Ready

	m.persist(ctx, storage.SlotCurrentStep, storage.SlotTicketData)

	return m.stateLocked(), nil
}

// SaveForm caches raw details-form text so a reload can repopulate it.
// Only remote photo URLs are kept.
func (m *Machine) SaveForm(ctx context.Context, form domain.FormCache) (domain.State, error) {
	const op = "wizard.Machine.SaveForm"

	m.mu.Lock()
	var (
		st  domain.State
		err error
	)
	if m.position != domain.Details {
		err = ErrInvalidTransition
	} else {
		if !validation.IsRemoteURL(form.ProfilePhotoURL) {
			form.ProfilePhotoURL = m.form.ProfilePhotoURL
		}
		m.form = form
		m.persist(ctx, storage.SlotTicketForm)
		st = m.stateLocked()
	}
	m.mu.Unlock()

	m.finish("save_form", st, err)
	if err != nil {
		return domain.State{}, fmt.Errorf("%s:%w", op, err)
	}

	return st, nil
}

// UploadPhoto uploads image and records its URL in the draft. Starting a
// new upload supersedes any pending one, whose result is then discarded
// with ErrUploadSuperseded.
func (m *Machine) UploadPhoto(ctx context.Context, image []byte) (string, error) {
	const op = "wizard.Machine.UploadPhoto"

	m.mu.Lock()
	if m.position != domain.Details {
		m.mu.Unlock()
		m.metrics.Operation("upload_photo", ErrInvalidTransition)
		return "", fmt.Errorf("%s:%w", op, ErrInvalidTransition)
	}
	m.uploadGen++
	gen := m.uploadGen
	m.uploading.Store(true)
	st := m.stateLocked()
	m.mu.Unlock()

	m.notify("upload_started", st)

	start := time.Now()
	url, err := m.doUpload(ctx, image)
	elapsed := float64(time.Since(start).Milliseconds())

	m.mu.Lock()
	if gen != m.uploadGen {
		m.mu.Unlock()
		m.metrics.Upload(elapsed, "superseded")
		return "", fmt.Errorf("%s:%w", op, ErrUploadSuperseded)
	}

	m.uploading.Store(false)

	if err == nil && !validation.IsRemoteURL(url) {
		err = fmt.Errorf("upload returned non-remote url %q", url)
	}

	if err != nil {
		m.draft.ProfilePhotoURL = ""
		m.form.ProfilePhotoURL = ""
		m.persist(ctx, storage.SlotTicketData, storage.SlotTicketForm)
		st = m.stateLocked()
		m.mu.Unlock()

		m.logger.Warn("photo upload failed", "error", err)
		m.metrics.Upload(elapsed, "error")
		m.notify("upload_failed", st)
		return "", fmt.Errorf("%s:%w", op, &UploadError{Err: err})
	}

	m.draft.ProfilePhotoURL = url
	m.form.ProfilePhotoURL = url
	m.persist(ctx, storage.SlotTicketData, storage.SlotTicketForm)
	st = m.stateLocked()
	m.mu.Unlock()

	m.metrics.Upload(elapsed, "ok")
	m.notify("upload_photo", st)

	return url, nil
}

func (m *Machine) doUpload(ctx context.Context, image []byte) (string, error) {
	if m.uploader == nil {
		return "", &upload.ConfigError{Provider: "upload", Missing: []string{"UPLOAD_PROVIDER"}}
	}
	return m.uploader.Upload(ctx, image)
}

// Export renders the ready ticket. Failures leave the wizard in READY.
func (m *Machine) Export(ctx context.Context) (export.Artifact, error) {
	const op = "wizard.Machine.Export"

	if !m.exporting.CompareAndSwap(false, true) {
		return export.Artifact{}, fmt.Errorf("%s:%w", op, ErrBusy)
	}
	defer m.exporting.Store(false)

	m.mu.Lock()
	if m.position != domain.Ready {
		m.mu.Unlock()
		return export.Artifact{}, fmt.Errorf("%s:%w", op, ErrNotReady)
	}
	ticket := export.TicketFromDraft(m.draft)
	m.mu.Unlock()

	var (
		art export.Artifact
		err error
	)
	if m.exporter == nil {
		err = errors.New("no ticket exporter configured")
	} else {
		art, err = m.exporter.Export(ctx, ticket)
	}

	m.metrics.Export(err)
	if err != nil {
		m.logger.Warn("ticket export failed", "error", err)
		return export.Artifact{}, fmt.Errorf("%s:%w", op, &ExportError{Err: err})
	}

	return art, nil
}

// Reset clears the draft and returns to SELECTION ("book another").
// Inventory counts are kept; any pending upload is superseded.
func (m *Machine) Reset(ctx context.Context) domain.State {
	m.mu.Lock()
	m.uploadGen++
	m.uploading.Store(false)
	m.position = domain.Selection
	m.draft = domain.EmptyDraft()
	m.form = domain.FormCache{}

	sctx, cancel := storageContext(ctx)
	defer cancel()

	if err := m.st.Delete(sctx, storage.SlotCurrentStep, storage.SlotTicketData, storage.SlotTicketForm); err != nil {
		m.logger.Warn("failed to erase snapshot", "error", err)
	}

	st := m.stateLocked()
	m.mu.Unlock()

	m.finish("reset", st, nil)

	return st
}
