package wizard

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/kirinyoku/tix-wizard/internal/domain"
	"github.com/kirinyoku/tix-wizard/internal/export"
	"github.com/kirinyoku/tix-wizard/internal/inventory"
	"github.com/kirinyoku/tix-wizard/internal/storage"
	"github.com/kirinyoku/tix-wizard/internal/upload"
	"github.com/kirinyoku/tix-wizard/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const photoURL = "https://res.cloudinary.com/demo/image/upload/v1/ada.jpg"

func adaDetails() domain.AttendeeDetails {
	return domain.AttendeeDetails{
		FullName: "Ada Lovelace",
		Email:    "ada@example.com",
	}
}

type uploadResult struct {
	url string
	err error
}

// gatedUploader blocks each upload until its result is sent on the gate
// keyed by the image bytes.
type gatedUploader struct {
	started chan string
	gates   map[string]chan uploadResult
}

func newGatedUploader(keys ...string) *gatedUploader {
	g := &gatedUploader{started: make(chan string, len(keys)), gates: map[string]chan uploadResult{}}
	for _, k := range keys {
		g.gates[k] = make(chan uploadResult, 1)
	}
	return g
}

func (g *gatedUploader) Upload(_ context.Context, image []byte) (string, error) {
	g.started <- string(image)
	r := <-g.gates[string(image)]
	return r.url, r.err
}

func staticUploader(url string) upload.Gateway {
	return upload.GatewayFunc(func(context.Context, []byte) (string, error) {
		return url, nil
	})
}

type stubRenderer struct {
	err error
}

func (s stubRenderer) Render(context.Context, export.Ticket) ([]byte, error) {
	return []byte("png"), s.err
}

func newMachine(t *testing.T, st storage.Storage, up upload.Gateway) *Machine {
	t.Helper()

	m := New(Deps{
		Storage:  st,
		Uploader: up,
		Exporter: export.NewExporter(stubRenderer{}, nil),
	})
	m.Restore(context.Background())
	return m
}

func toDetails(t *testing.T, m *Machine, ticketType string, quantity int) {
	t.Helper()
	_, err := m.ConfirmSelection(context.Background(), ticketType, quantity)
	require.NoError(t, err)
}

func toReady(t *testing.T, m *Machine) {
	t.Helper()
	ctx := context.Background()

	toDetails(t, m, domain.TypeVVIP, 2)
	_, err := m.UploadPhoto(ctx, []byte("img"))
	require.NoError(t, err)
	_, err = m.SubmitDetails(ctx, adaDetails())
	require.NoError(t, err)
}

func TestRestoreFreshStartsAtSelection(t *testing.T) {
	m := newMachine(t, storage.NewMemory(), nil)

	st := m.State()
	assert.Equal(t, domain.Selection, st.Position)
	assert.Equal(t, 1, st.Step)
	assert.True(t, st.Draft.IsEmpty())
	assert.Equal(t, inventory.Defaults(), st.Inventory)
	assert.Equal(t, "Get My Free Ticket", st.SubmitLabel)
}

func TestConfirmSelectionDecrementsExactly(t *testing.T) {
	for _, tt := range []string{domain.TypeRegular, domain.TypeVIP, domain.TypeVVIP} {
		for q := domain.MinQuantity; q <= domain.MaxQuantity; q++ {
			m := newMachine(t, storage.NewMemory(), nil)

			st, err := m.ConfirmSelection(context.Background(), tt, q)
			require.NoError(t, err)

			assert.Equal(t, domain.Details, st.Position)
			assert.Equal(t, tt, st.Draft.SelectedType)
			assert.Equal(t, q, st.Draft.Quantity)
			assert.Equal(t, inventory.DefaultCap-q, m.inv.Remaining(tt))
		}
	}
}

func TestConfirmSelectionRejectsWithoutMutation(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	require.NoError(t, mem.Set(ctx, storage.SlotInventory, `[{"type":"VIP ACCESS","price":50,"remaining":2},{"type":"VVIP ACCESS","price":150,"remaining":0}]`))
	m := newMachine(t, mem, nil)
	before := m.State()

	tests := []struct {
		name     string
		typ      string
		quantity int
		want     error
	}{
		{"more than remaining", domain.TypeVIP, 3, ErrInsufficientInventory},
		{"sold out", domain.TypeVVIP, 1, ErrInsufficientInventory},
		{"zero quantity", domain.TypeVIP, 0, ErrInvalidQuantity},
		{"above max", domain.TypeVIP, 6, ErrInvalidQuantity},
		{"unknown type", "GOLD ACCESS", 1, ErrUnknownTicketType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.ConfirmSelection(ctx, tt.typ, tt.quantity)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, before, m.State())
		})
	}

	var ie inventory.InsufficientError
	_, err := m.ConfirmSelection(ctx, domain.TypeVIP, 3)
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, 2, ie.Remaining)
}

func TestConfirmSelectionOnlyFromSelection(t *testing.T) {
	m := newMachine(t, storage.NewMemory(), nil)
	toDetails(t, m, domain.TypeVIP, 1)

	_, err := m.ConfirmSelection(context.Background(), domain.TypeVIP, 1)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 19, m.inv.Remaining(domain.TypeVIP))
}

func TestGoBackKeepsInventoryDecrement(t *testing.T) {
	ctx := context.Background()
	m := newMachine(t, storage.NewMemory(), nil)
	toDetails(t, m, domain.TypeVIP, 3)

	st, err := m.GoBack(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Selection, st.Position)
	assert.Equal(t, 17, m.inv.Remaining(domain.TypeVIP))
	assert.Equal(t, domain.TypeVIP, st.Draft.SelectedType)

	toDetails(t, m, domain.TypeVIP, 2)
	assert.Equal(t, 15, m.inv.Remaining(domain.TypeVIP))

	_, err = m.GoBack(ctx)
	require.NoError(t, err)
	_, err = m.GoBack(ctx)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSubmitDetailsValidation(t *testing.T) {
	ctx := context.Background()
	m := newMachine(t, storage.NewMemory(), nil)
	toDetails(t, m, domain.TypeVIP, 1)

	_, err := m.SubmitDetails(ctx, domain.AttendeeDetails{FullName: "A1", Email: "bad"})
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{validation.FieldEmail, validation.FieldFullName, validation.FieldProfilePhoto}, ve.Fields.Fields())
	assert.ErrorIs(t, err, ErrPhotoMissing)
	assert.Equal(t, domain.Details, m.State().Position)

	_, err = m.SubmitDetails(ctx, domain.AttendeeDetails{FullName: "Ada", Email: "ada@example.com", ProfilePhotoURL: "data:image/png;base64,AA"})
	require.True(t, errors.As(err, &ve))
	assert.NotErrorIs(t, err, ErrPhotoMissing)
	assert.Equal(t, []string{validation.FieldProfilePhoto}, ve.Fields.Fields())
}

func TestSubmitDetailsNormalisesAndAdvances(t *testing.T) {
	ctx := context.Background()
	m := newMachine(t, storage.NewMemory(), staticUploader(photoURL))
	toDetails(t, m, domain.TypeVIP, 1)

	_, err := m.UploadPhoto(ctx, []byte("img"))
	require.NoError(t, err)

	st, err := m.SubmitDetails(ctx, domain.AttendeeDetails{
		FullName:       "  Ada Lovelace ",
		Email:          " ADA@Example.com",
		SpecialRequest: " aisle ",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.Ready, st.Position)
	assert.Equal(t, domain.Draft{
		SelectedType:    domain.TypeVIP,
		Quantity:        1,
		FullName:        "Ada Lovelace",
		Email:           "ada@example.com",
		ProfilePhotoURL: photoURL,
		SpecialRequest:  "aisle",
	}, st.Draft)
	assert.Equal(t, "Purchase VIP Ticket", st.SubmitLabel)

	_, err = m.SubmitDetails(ctx, adaDetails())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = m.GoBack(ctx)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUploadPendingBlocksSubmit(t *testing.T) {
	ctx := context.Background()
	up := newGatedUploader("a")
	m := newMachine(t, storage.NewMemory(), up)
	toDetails(t, m, domain.TypeVIP, 1)

	done := make(chan error, 1)
	go func() {
		_, err := m.UploadPhoto(ctx, []byte("a"))
		done <- err
	}()
	<-up.started

	assert.True(t, m.Busy().Uploading)
	_, err := m.SubmitDetails(ctx, domain.AttendeeDetails{FullName: "Ada", Email: "ada@example.com", ProfilePhotoURL: photoURL})
	assert.ErrorIs(t, err, ErrUploadPending)

	up.gates["a"] <- uploadResult{url: photoURL}
	require.NoError(t, <-done)
	assert.False(t, m.Busy().Uploading)

	_, err = m.SubmitDetails(ctx, adaDetails())
	require.NoError(t, err)
}

func TestUploadSupersededResultIsDiscarded(t *testing.T) {
	ctx := context.Background()
	up := newGatedUploader("old", "new")
	m := newMachine(t, storage.NewMemory(), up)
	toDetails(t, m, domain.TypeVIP, 1)

	oldDone := make(chan error, 1)
	go func() {
		_, err := m.UploadPhoto(ctx, []byte("old"))
		oldDone <- err
	}()
	require.Equal(t, "old", <-up.started)

	newDone := make(chan error, 1)
	go func() {
		_, err := m.UploadPhoto(ctx, []byte("new"))
		newDone <- err
	}()
	require.Equal(t, "new", <-up.started)

	up.gates["new"] <- uploadResult{url: "https://cdn.example.com/new.jpg"}
	require.NoError(t, <-newDone)

	up.gates["old"] <- uploadResult{url: "https://cdn.example.com/old.jpg"}
	assert.ErrorIs(t, <-oldDone, ErrUploadSuperseded)

	st := m.State()
	assert.Equal(t, "https://cdn.example.com/new.jpg", st.Draft.ProfilePhotoURL)
	assert.Equal(t, "https://cdn.example.com/new.jpg", st.Form.ProfilePhotoURL)
	assert.False(t, st.Busy.Uploading)
}

func TestResetDiscardsPendingUpload(t *testing.T) {
	ctx := context.Background()
	up := newGatedUploader("a")
	m := newMachine(t, storage.NewMemory(), up)
	toDetails(t, m, domain.TypeVIP, 1)

	done := make(chan error, 1)
	go func() {
		_, err := m.UploadPhoto(ctx, []byte("a"))
		done <- err
	}()
	<-up.started

	m.Reset(ctx)
	assert.False(t, m.Busy().Uploading)

	up.gates["a"] <- uploadResult{url: photoURL}
	assert.ErrorIs(t, <-done, ErrUploadSuperseded)
	assert.True(t, m.State().Draft.IsEmpty())
}

func TestUploadFailureLeavesPhotoUnset(t *testing.T) {
	ctx := context.Background()
	calls := 0
	var mu sync.Mutex
	flaky := upload.GatewayFunc(func(context.Context, []byte) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return photoURL, nil
		}
		return "", &upload.ServiceError{Status: 500, Message: "boom"}
	})

	m := newMachine(t, storage.NewMemory(), flaky)
	toDetails(t, m, domain.TypeVIP, 1)

	_, err := m.UploadPhoto(ctx, []byte("1"))
	require.NoError(t, err)

	_, err = m.UploadPhoto(ctx, []byte("2"))
	var ue *UploadError
	require.True(t, errors.As(err, &ue))
	var se *upload.ServiceError
	assert.True(t, errors.As(err, &se))

	st := m.State()
	assert.Equal(t, domain.Details, st.Position)
	assert.Empty(t, st.Draft.ProfilePhotoURL)
	assert.False(t, st.Busy.Uploading)
}

func TestUploadConfigurationError(t *testing.T) {
	m := newMachine(t, storage.NewMemory(), upload.NewCloudinary(upload.CloudinaryConfig{}, nil))
	toDetails(t, m, domain.TypeVIP, 1)

	_, err := m.UploadPhoto(context.Background(), []byte("img"))
	var ce *upload.ConfigError
	require.True(t, errors.As(err, &ce))
	var ue *UploadError
	assert.True(t, errors.As(err, &ue))
}

func TestUploadOnlyOnDetails(t *testing.T) {
	m := newMachine(t, storage.NewMemory(), staticUploader(photoURL))

	_, err := m.UploadPhoto(context.Background(), []byte("img"))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestResetThenRestoreIsEmpty(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	m := newMachine(t, mem, staticUploader(photoURL))
	toReady(t, m)
	_, err := m.GoBack(ctx)
	require.ErrorIs(t, err, ErrInvalidTransition)

	st := m.Reset(ctx)
	assert.Equal(t, domain.Selection, st.Position)
	assert.True(t, st.Draft.IsEmpty())
	assert.Equal(t, 18, m.inv.Remaining(domain.TypeVVIP))

	for _, slot := range []string{storage.SlotCurrentStep, storage.SlotTicketData, storage.SlotTicketForm} {
		_, ok, _ := mem.Get(ctx, slot)
		assert.False(t, ok, slot)
	}

	restored := newMachine(t, mem, nil).State()
	assert.Equal(t, domain.Selection, restored.Position)
	assert.True(t, restored.Draft.IsEmpty())
	assert.Equal(t, 18, restored.Inventory[2].Remaining)
}

func TestRestoreResumesPersistedSession(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	m := newMachine(t, mem, staticUploader(photoURL))
	toDetails(t, m, domain.TypeVIP, 4)
	_, err := m.SaveForm(ctx, domain.FormCache{FullName: "Ad", Email: "ada@", ProfilePhotoURL: "blob:local"})
	require.NoError(t, err)

	restored := newMachine(t, mem, nil).State()
	assert.Equal(t, domain.Details, restored.Position)
	assert.Equal(t, m.State().Draft, restored.Draft)
	assert.Equal(t, domain.FormCache{FullName: "Ad", Email: "ada@"}, restored.Form)
	assert.Equal(t, 16, restored.Inventory[1].Remaining)
}

func TestRestoreClampsInconsistentSnapshot(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		step string
		data string
		want domain.Position
	}{
		{"ready without details", "3", `{"type":"VIP ACCESS","numberOfTickets":"1"}`, domain.Details},
		{"details without type", "2", `{"type":null,"numberOfTickets":"1"}`, domain.Selection},
		{"unknown type", "2", `{"type":"GOLD ACCESS","numberOfTickets":"1"}`, domain.Selection},
		{"local photo", "3", `{"type":"VIP ACCESS","numberOfTickets":"1","fullName":"Ada","email":"a@b.co","profilePhoto":"data:image/png;base64,AA"}`, domain.Details},
		{"consistent ready", "3", `{"type":"VIP ACCESS","numberOfTickets":"1","fullName":"Ada","email":"a@b.co","profilePhoto":"https://x/y.png"}`, domain.Ready},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := storage.NewMemory()
			require.NoError(t, mem.SetMany(ctx, map[string]string{
				storage.SlotCurrentStep: tt.step,
				storage.SlotTicketData:  tt.data,
			}))

			st := newMachine(t, mem, nil).State()
			assert.Equal(t, tt.want, st.Position)

			step, _, _ := mem.Get(ctx, storage.SlotCurrentStep)
			assert.Equal(t, strconv.Itoa(int(tt.want)), step)
		})
	}
}

func TestRestoreDiscardsMalformedSnapshot(t *testing.T) {
	ctx := context.Background()

	for _, slots := range []map[string]string{
		{storage.SlotCurrentStep: "7", storage.SlotTicketData: `{"type":"VIP ACCESS","numberOfTickets":"1"}`},
		{storage.SlotCurrentStep: "2", storage.SlotTicketData: `{not json`},
		{storage.SlotCurrentStep: "2", storage.SlotTicketData: `{"type":"VIP ACCESS","numberOfTickets":"9"}`},
		{storage.SlotTicketForm: `[]`, storage.SlotInventory: `"nope"`},
	} {
		mem := storage.NewMemory()
		require.NoError(t, mem.SetMany(ctx, slots))

		st := newMachine(t, mem, nil).State()
		assert.Equal(t, domain.Selection, st.Position)
		assert.True(t, st.Draft.IsEmpty())
		assert.Equal(t, domain.FormCache{}, st.Form)
		assert.Equal(t, inventory.Defaults(), st.Inventory)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	snaps := []Snapshot{
		{Position: domain.Selection, Draft: domain.EmptyDraft()},
		{Position: domain.Details, Draft: domain.Draft{SelectedType: domain.TypeVIP, Quantity: 5}},
		{Position: domain.Ready, Draft: domain.Draft{
			SelectedType: domain.TypeVVIP, Quantity: 2, FullName: "Ada Lovelace",
			Email: "ada@example.com", ProfilePhotoURL: photoURL, SpecialRequest: "hi",
		}},
	}

	for _, s := range snaps {
		step, data, err := EncodeSnapshot(s)
		require.NoError(t, err)

		got, err := DecodeSnapshot(step, data)
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

type failingStorage struct{}

func (failingStorage) Get(context.Context, string) (string, bool, error) {
	return "", false, storage.ErrUnavailable
}
func (failingStorage) Set(context.Context, string, string) error { return storage.ErrUnavailable }
func (failingStorage) SetMany(context.Context, map[string]string) error {
	return storage.ErrUnavailable
}
func (failingStorage) Delete(context.Context, ...string) error { return storage.ErrUnavailable }

func TestStorageFailureDegradesSilently(t *testing.T) {
	ctx := context.Background()

	for name, st := range map[string]storage.Storage{
		"raw":      failingStorage{},
		"fallback": storage.NewFallback(failingStorage{}, nil, nil),
	} {
		t.Run(name, func(t *testing.T) {
			m := newMachine(t, st, staticUploader(photoURL))
			toReady(t, m)

			assert.Equal(t, domain.Ready, m.State().Position)
			m.Reset(ctx)
			assert.Equal(t, domain.Selection, m.State().Position)
		})
	}

	m := newMachine(t, storage.NewFallback(failingStorage{}, nil, nil), nil)
	assert.False(t, m.State().Persistent)
}

func TestEndToEndBooking(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	m := newMachine(t, mem, staticUploader("https://x/y.png"))

	st, err := m.ConfirmSelection(ctx, domain.TypeVVIP, 2)
	require.NoError(t, err)
	assert.Equal(t, 18, st.Inventory[2].Remaining)

	url, err := m.UploadPhoto(ctx, []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, "https://x/y.png", url)

	st, err = m.SubmitDetails(ctx, domain.AttendeeDetails{FullName: "Ada Lovelace", Email: "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.Ready, st.Position)

	raw, ok, _ := mem.Get(ctx, storage.SlotTicketData)
	require.True(t, ok)
	assert.JSONEq(t, `{
		"type":"VVIP ACCESS","numberOfTickets":"2","fullName":"Ada Lovelace",
		"email":"ada@example.com","profilePhoto":"https://x/y.png"
	}`, raw)

	art, err := m.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, "VVIP_ticket_Ada_Lovelace.png", art.FileName)
	assert.Equal(t, export.ContentTypePNG, art.ContentType)
}

func TestExportRequiresReady(t *testing.T) {
	m := newMachine(t, storage.NewMemory(), nil)

	_, err := m.Export(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestExportFailureStaysReady(t *testing.T) {
	m := New(Deps{
		Storage:  storage.NewMemory(),
		Uploader: staticUploader(photoURL),
		Exporter: export.NewExporter(stubRenderer{err: export.ErrPhotoFetch}, nil),
	})
	m.Restore(context.Background())
	toReady(t, m)

	_, err := m.Export(context.Background())
	var ee *ExportError
	require.True(t, errors.As(err, &ee))
	assert.ErrorIs(t, err, export.ErrPhotoFetch)
	assert.Equal(t, domain.Ready, m.State().Position)
	assert.False(t, m.Busy().Exporting)
}

type blockingExporter struct {
	started chan struct{}
	release chan struct{}
}

func (b blockingExporter) Export(context.Context, export.Ticket) (export.Artifact, error) {
	b.started <- struct{}{}
	<-b.release
	return export.Artifact{FileName: "x.png"}, nil
}

func TestConcurrentExportIsRejected(t *testing.T) {
	ctx := context.Background()
	ex := blockingExporter{started: make(chan struct{}, 1), release: make(chan struct{})}
	m := New(Deps{Storage: storage.NewMemory(), Uploader: staticUploader(photoURL), Exporter: ex})
	m.Restore(ctx)
	toReady(t, m)

	done := make(chan error, 1)
	go func() {
		_, err := m.Export(ctx)
		done <- err
	}()
	<-ex.started

	assert.True(t, m.Busy().Exporting)
	_, err := m.Export(ctx)
	assert.ErrorIs(t, err, ErrBusy)

	close(ex.release)
	require.NoError(t, <-done)
}

func TestSubscribeReceivesChanges(t *testing.T) {
	ctx := context.Background()
	m := newMachine(t, storage.NewMemory(), nil)

	var ops []string
	unsubscribe := m.Subscribe(func(op string, st domain.State) {
		ops = append(ops, op+":"+st.Position.String())
	})

	toDetails(t, m, domain.TypeVIP, 1)
	_, _ = m.ConfirmSelection(ctx, domain.TypeVIP, 1)
	_, err := m.GoBack(ctx)
	require.NoError(t, err)

	unsubscribe()
	m.Reset(ctx)

	assert.Equal(t, []string{"confirm_selection:DETAILS", "go_back:SELECTION"}, ops)
}

// ctxMemory is a healthy store that fails calls whose context is done.
type ctxMemory struct{ *storage.Memory }

func (c ctxMemory) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	return c.Memory.Get(ctx, key)
}

func (c ctxMemory) SetMany(ctx context.Context, kv map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.Memory.SetMany(ctx, kv)
}

func (c ctxMemory) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.Memory.Delete(ctx, keys...)
}

func TestCancelledRequestStillPersists(t *testing.T) {
	backend := ctxMemory{storage.NewMemory()}
	m := newMachine(t, storage.NewFallback(backend, nil, nil), nil)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.ConfirmSelection(cancelled, domain.TypeVIP, 3)
	require.NoError(t, err)
	assert.True(t, m.State().Persistent)

	ctx := context.Background()
	step, _, err := backend.Get(ctx, storage.SlotCurrentStep)
	require.NoError(t, err)
	assert.Equal(t, "2", step)

	_, err = m.GoBack(ctx)
	require.NoError(t, err)
	step, _, err = backend.Get(ctx, storage.SlotCurrentStep)
	require.NoError(t, err)
	assert.Equal(t, "1", step)

	// A fresh machine over the same backend sees the decrement.
	restored := newMachine(t, backend, nil)
	vip, ok := restored.inv.Lookup(domain.TypeVIP)
	require.True(t, ok)
	assert.Equal(t, 17, vip.Remaining)

	restored.Reset(cancelled)
	_, ok, err = backend.Get(ctx, storage.SlotCurrentStep)
	require.NoError(t, err)
	assert.False(t, ok)
}

// holdingStorage blocks SetMany while armed so an operation can be caught
// mid-flight.
type holdingStorage struct {
	*storage.Memory
	armed   chan struct{}
	entered chan struct{}
	release chan struct{}
}

func (h holdingStorage) SetMany(ctx context.Context, kv map[string]string) error {
	select {
	case <-h.armed:
		h.entered <- struct{}{}
		<-h.release
	default:
	}
	return h.Memory.SetMany(ctx, kv)
}

func TestConcurrentSubmitIsRejected(t *testing.T) {
	ctx := context.Background()
	st := holdingStorage{
		Memory:  storage.NewMemory(),
		armed:   make(chan struct{}, 1),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	m := newMachine(t, st, staticUploader(photoURL))
	toDetails(t, m, domain.TypeVVIP, 1)
	_, err := m.UploadPhoto(ctx, []byte("img"))
	require.NoError(t, err)

	st.armed <- struct{}{}
	done := make(chan error, 1)
	go func() {
		_, err := m.SubmitDetails(ctx, adaDetails())
		done <- err
	}()
	<-st.entered

	assert.True(t, m.Busy().Submitting)
	_, err = m.SubmitDetails(ctx, adaDetails())
	assert.ErrorIs(t, err, ErrBusy)

	close(st.release)
	require.NoError(t, <-done)
	assert.False(t, m.Busy().Submitting)
	assert.Equal(t, domain.Ready, m.State().Position)
}
