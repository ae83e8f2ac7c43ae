package httpgin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/tix-wizard/internal/events"
	"github.com/kirinyoku/tix-wizard/internal/metrics"
	"github.com/kirinyoku/tix-wizard/internal/service/session"
	"github.com/kirinyoku/tix-wizard/internal/storage"
	"github.com/kirinyoku/tix-wizard/internal/upload"
	"github.com/kirinyoku/tix-wizard/internal/wizard"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// IdempotencyStore remembers responses to keyed selection requests.
type IdempotencyStore interface {
	AcquireLock(ctx context.Context, key string, lockTTL time.Duration) (bool, error)
	SaveResult(ctx context.Context, key string, jsonPayload string) error
	GetResult(ctx context.Context, key string) (string, bool, error)
	Release(ctx context.Context, key string) error
}

// RateLimiter caps photo uploads per session.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

type RouterDeps struct {
	Sessions *session.Service
	// Idem and Limiter are optional.
	Idem          IdempotencyStore
	Limiter       RateLimiter
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
	MaxPhotoBytes int64
	SessionTTL    time.Duration
}

type handlers struct {
	RouterDeps
}

func NewRouter(deps RouterDeps, middlewares ...gin.HandlerFunc) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.MaxPhotoBytes <= 0 {
		deps.MaxPhotoBytes = upload.DefaultMaxBytes
	}

	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(deps.Logger), RequestIDMiddleware(), CORS(), MetricsMiddleware(deps.Metrics))
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	r.MaxMultipartMemory = deps.MaxPhotoBytes

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	h := &handlers{RouterDeps: deps}

	w := r.Group("/wizard", SessionMiddleware(deps.SessionTTL))
	{
		w.GET("", h.getState)
		w.GET("/inventory", h.getInventory)
		w.POST("/selection", h.postSelection)
		w.POST("/back", h.postBack)
		w.POST("/reset", h.postReset)
		w.POST("/book-another", h.postReset)
		w.PUT("/form", h.putForm)
		w.POST("/photo", h.postPhoto)
		w.POST("/details", h.postDetails)
		w.GET("/ticket", h.getTicket)
		w.GET("/events", h.getEvents)
	}

	return r
}

func (h *handlers) machine(c *gin.Context) (*wizard.Machine, bool) {
	m, err := h.Sessions.Machine(c.Request.Context(), sessionID(c))
	if err != nil {
		respondErr(c, err)
		return nil, false
	}
	return m, true
}

// --- Handlers with Swagger annotations ---

// @Summary  Get wizard state
// @Param    X-Session-ID  header  string  false  "Session ID"
// @Success  200  {object}  domain.State
// @Router   /wizard [get]
func (h *handlers) getState(c *gin.Context) {
	m, ok := h.machine(c)
	if !ok {
		return
	}
	writeState(c, m.State())
}

// @Summary  List ticket types with remaining counts
// @Param    X-Session-ID  header  string  false  "Session ID"
// @Success  200  {array}  InventoryItem
// @Router   /wizard/inventory [get]
func (h *handlers) getInventory(c *gin.Context) {
	m, ok := h.machine(c)
	if !ok {
		return
	}
	writeState(c, inventoryItems(m.State().Inventory))
}

// @Summary  Confirm ticket selection (idempotent)
// @Param    X-Session-ID     header  string            false  "Session ID"
// @Param    Idempotency-Key  header  string            false  "Idempotency key"
// @Param    req              body    SelectionRequest  true   "payload"
// @Success  200  {object}  domain.State
// @Failure  400  {object}  ErrorResponse  "unknown type / invalid quantity"
// @Failure  409  {object}  ErrorResponse  "not enough tickets / wrong step / idem in progress"
// @Router   /wizard/selection [post]
func (h *handlers) postSelection(c *gin.Context) {
	var req SelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	m, ok := h.machine(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()

	idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	var idemStorageKey string
	if h.Idem != nil && idemKey != "" {
		idemStorageKey = storage.KeyIdemSelection(sessionID(c), idemKey)

		if payload, ok, _ := h.Idem.GetResult(ctx, idemStorageKey); ok {
			c.Header("Idempotency-Key", idemKey)
			c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(payload))
			return
		}

		locked, err := h.Idem.AcquireLock(ctx, idemStorageKey, 60*time.Second)
		if err != nil {
			respondErr(c, err)
			return
		}
		if !locked {
			if payload, ok, _ := h.Idem.GetResult(ctx, idemStorageKey); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(payload))
				return
			}
			c.Header("Retry-After", "1")
			c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
			return
		}
	}

	st, err := m.ConfirmSelection(ctx, req.Type, req.Quantity)
	if err != nil {
		if idemStorageKey != "" {
			_ = h.Idem.Release(ctx, idemStorageKey)
		}
		respondErr(c, err)
		return
	}

	if idemStorageKey != "" {
		b, _ := json.Marshal(st)
		_ = h.Idem.SaveResult(ctx, idemStorageKey, string(b))
		c.Header("Idempotency-Key", idemKey)
	}

	c.JSON(http.StatusOK, st)
}

// @Summary  Go back from details to selection
// @Param    X-Session-ID  header  string  false  "Session ID"
// @Success  200  {object}  domain.State
// @Failure  409  {object}  ErrorResponse
// @Router   /wizard/back [post]
func (h *handlers) postBack(c *gin.Context) {
	m, ok := h.machine(c)
	if !ok {
		return
	}
	st, err := m.GoBack(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary  Reset the wizard (book another ticket)
// @Param    X-Session-ID  header  string  false  "Session ID"
// @Success  200  {object}  domain.State
// @Router   /wizard/reset [post]
func (h *handlers) postReset(c *gin.Context) {
	m, ok := h.machine(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, m.Reset(c.Request.Context()))
}

// @Summary  Cache raw details form input
// @Param    X-Session-ID  header  string       false  "Session ID"
// @Param    req           body    FormRequest  true   "payload"
// @Success  200  {object}  domain.State
// @Failure  409  {object}  ErrorResponse
// @Router   /wizard/form [put]
func (h *handlers) putForm(c *gin.Context) {
	var req FormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	m, ok := h.machine(c)
	if !ok {
		return
	}
	st, err := m.SaveForm(c.Request.Context(), req.toDomain())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary  Upload the attendee photo
// @Accept   multipart/form-data
// @Param    X-Session-ID  header    string  false  "Session ID"
// @Param    file          formData  file    true   "image"
// @Success  200  {object}  PhotoResponse
// @Failure  400  {object}  ErrorResponse  "not an image"
// @Failure  413  {object}  ErrorResponse  "too large"
// @Failure  429  {object}  ErrorResponse  "rate limited"
// @Failure  502  {object}  ErrorResponse  "upload service failed"
// @Failure  503  {object}  ErrorResponse  "upload not configured"
// @Router   /wizard/photo [post]
func (h *handlers) postPhoto(c *gin.Context) {
	ctx := c.Request.Context()

	if h.Limiter != nil {
		allowed, retry, err := h.Limiter.Allow(ctx, "photo:"+sessionID(c))
		if err != nil {
			h.Logger.Warn("rate limiter unavailable", "error", err)
		} else if !allowed {
			c.Header("Retry-After", strconv.Itoa(max(1, int(retry.Seconds()))))
			c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "too many uploads, retry later"})
			return
		}
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxPhotoBytes+1<<20)

	fh, err := c.FormFile("file")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			respondErr(c, upload.ErrPhotoTooLarge)
			return
		}
		badRequest(c, "missing file")
		return
	}
	if fh.Size > h.MaxPhotoBytes {
		respondErr(c, upload.ErrPhotoTooLarge)
		return
	}

	f, err := fh.Open()
	if err != nil {
		badRequest(c, "unreadable file")
		return
	}
	defer f.Close()

	image, err := io.ReadAll(f)
	if err != nil {
		badRequest(c, "unreadable file")
		return
	}

	m, ok := h.machine(c)
	if !ok {
		return
	}

	url, err := m.UploadPhoto(ctx, image)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, PhotoResponse{URL: url})
}

// @Summary  Submit attendee details
// @Param    X-Session-ID  header  string          false  "Session ID"
// @Param    req           body    DetailsRequest  true   "payload"
// @Success  200  {object}  domain.State
// @Failure  409  {object}  ErrorResponse  "upload pending / wrong step"
// @Failure  422  {object}  ErrorResponse  "field errors"
// @Router   /wizard/details [post]
func (h *handlers) postDetails(c *gin.Context) {
	var req DetailsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	m, ok := h.machine(c)
	if !ok {
		return
	}
	st, err := m.SubmitDetails(c.Request.Context(), req.toDomain())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary  Download the ticket image
// @Produce  png
// @Param    X-Session-ID  header  string  false  "Session ID"
// @Success  200  {file}    binary
// @Failure  409  {object}  ErrorResponse  "ticket not ready / export in progress"
// @Failure  500  {object}  ErrorResponse  "render failed"
// @Router   /wizard/ticket [get]
func (h *handlers) getTicket(c *gin.Context) {
	m, ok := h.machine(c)
	if !ok {
		return
	}
	art, err := m.Export(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.FileName))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, art.ContentType, art.Data)
}

// @Summary  Stream state changes
// @Produce  text/event-stream
// @Param    X-Session-ID  header  string  false  "Session ID"
// @Success  200  {object}  domain.State  "first event is the current state"
// @Router   /wizard/events [get]
func (h *handlers) getEvents(c *gin.Context) {
	m, ok := h.machine(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	id := sessionID(c)
	changes := make(chan events.Change, 16)
	go func() {
		err := h.Sessions.Subscribe(ctx, id, func(_ context.Context, ch events.Change) {
			select {
			case changes <- ch:
			default:
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			h.Logger.Warn("event subscription ended", "error", err)
		}
	}()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("state", m.State())
	c.Writer.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case ch := <-changes:
			c.SSEvent(ch.Op, ch.State)
			c.Writer.Flush()
		}
	}
}

// --- Helpers ---

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var (
		validationErr *wizard.ValidationError
		configErr     *upload.ConfigError
		uploadErr     *wizard.UploadError
		exportErr     *wizard.ExportError
	)

	switch {
	// details validation
	case errors.As(err, &validationErr):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:        "validation failed",
			Fields:       validationErr.Fields,
			PhotoMissing: validationErr.PhotoMissing,
		})
	// session
	case errors.Is(err, session.ErrInvalidID):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid session id"})
	// selection
	case errors.Is(err, wizard.ErrUnknownTicketType):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown ticket type"})
	case errors.Is(err, wizard.ErrInvalidQuantity):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: wizard.ErrInvalidQuantity.Error()})
	case errors.Is(err, wizard.ErrInsufficientInventory):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "not enough tickets remaining"})
	// step and concurrency
	case errors.Is(err, wizard.ErrInvalidTransition):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "not allowed at the current step"})
	case errors.Is(err, wizard.ErrUploadPending):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "photo upload still in progress"})
	case errors.Is(err, wizard.ErrUploadSuperseded):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "upload superseded by a newer one"})
	case errors.Is(err, wizard.ErrBusy):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "operation already in progress"})
	case errors.Is(err, wizard.ErrNotReady):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "ticket is not ready"})
	// upload
	case errors.As(err, &configErr):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: configErr.Error()})
	case errors.Is(err, upload.ErrPhotoTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "image is too large"})
	case errors.Is(err, upload.ErrInvalidImage):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "file is not a supported image"})
	case errors.As(err, &uploadErr):
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "failed to upload image"})
	// export
	case errors.As(err, &exportErr):
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to export ticket"})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}

	if c.Writer.Status() >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
}
