// Package export turns a completed ticket into a downloadable PNG.
package export

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kirinyoku/tix-wizard/internal/domain"
	"github.com/zeebo/blake3"
)

const ContentTypePNG = "image/png"

// Ticket is the data printed on an exported ticket.
type Ticket struct {
	Type           string `json:"type"`
	Quantity       int    `json:"quantity"`
	FullName       string `json:"fullName"`
	Email          string `json:"email"`
	PhotoURL       string `json:"photoUrl"`
	SpecialRequest string `json:"specialRequest"`
}

func TicketFromDraft(d domain.Draft) Ticket {
	return Ticket{
		Type:           d.SelectedType,
		Quantity:       d.Quantity,
		FullName:       d.FullName,
		Email:          d.Email,
		PhotoURL:       d.ProfilePhotoURL,
		SpecialRequest: d.SpecialRequest,
	}
}

// Artifact is a rendered ticket ready to be downloaded.
type Artifact struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Renderer rasterises a ticket to PNG bytes.
type Renderer interface {
	Render(ctx context.Context, t Ticket) ([]byte, error)
}

// Cache memoises renders by key. Implementations must call render at most
// once per key among concurrent callers.
type Cache interface {
	GetOrRender(ctx context.Context, key string, render func(ctx context.Context) ([]byte, error)) ([]byte, error)
}

var whitespace = regexp.MustCompile(`\s+`)

// FileName derives the download name:
// {type without " ACCESS"}_ticket_{name with whitespace runs as "_"}.png.
func FileName(t Ticket) string {
	ticketType := strings.Replace(t.Type, " ACCESS", "", 1)
	if ticketType == "" {
		ticketType = "REGULAR"
	}

	userName := whitespace.ReplaceAllString(t.FullName, "_")
	if userName == "" {
		userName = "attendee"
	}

	return fmt.Sprintf("%s_ticket_%s.png", ticketType, userName)
}

// QuantityLabel is the "Ticket for" value, "1" when unset.
func QuantityLabel(t Ticket) string {
	if t.Quantity <= 0 {
		return "1"
	}
	return strconv.Itoa(t.Quantity)
}

// CacheKey is a content digest of t.
func CacheKey(t Ticket) string {
	b, _ := json.Marshal(t)
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Exporter renders tickets, consulting an optional cache.
type Exporter struct {
	renderer Renderer
	cache    Cache
}

func NewExporter(renderer Renderer, cache Cache) *Exporter {
	return &Exporter{renderer: renderer, cache: cache}
}

func (e *Exporter) Export(ctx context.Context, t Ticket) (Artifact, error) {
	const op = "export.Exporter.Export"

	render := func(ctx context.Context) ([]byte, error) {
		return e.renderer.Render(ctx, t)
	}

	var (
		data []byte
		err  error
	)
	if e.cache != nil {
		data, err = e.cache.GetOrRender(ctx, CacheKey(t), render)
	} else {
		data, err = render(ctx)
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("%s:%w", op, err)
	}

	return Artifact{
		FileName:    FileName(t),
		ContentType: ContentTypePNG,
		Data:        data,
	}, nil
}
