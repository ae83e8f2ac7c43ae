package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/zeebo/blake3"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// EventInfo is the header printed on every ticket.
type EventInfo struct {
	Name     string
	Location string
	Date     string
}

// PhotoFetcher loads the attendee photo referenced by a ticket.
type PhotoFetcher interface {
	Fetch(ctx context.Context, url string) (image.Image, error)
}

var ErrPhotoFetch = errors.New("failed to fetch attendee photo")

// HTTPFetcher downloads photos over HTTP.
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

func NewHTTPFetcher(client *http.Client, maxBytes int64) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &HTTPFetcher{client: client, maxBytes: maxBytes}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPhotoFetch, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPhotoFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrPhotoFetch, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPhotoFetch, err)
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPhotoFetch, err)
	}

	return img, nil
}

// Layout, in 1x pixels.
const (
	canvasW     = 300
	canvasH     = 500
	margin      = 20
	photoSize   = 144
	photoBorder = 4
	cellW       = (canvasW - 2*margin) / 2
	cellH       = 36
	lineH       = 14
	charW       = 7
)

var (
	colorBackground = color.NRGBA{0x0E, 0x46, 0x4F, 0xFF}
	colorPanel      = color.NRGBA{0x08, 0x25, 0x2B, 0xFF}
	colorInset      = color.NRGBA{0x05, 0x22, 0x28, 0xFF}
	colorAccent     = color.NRGBA{0x24, 0xA0, 0xB5, 0xFF}
	colorText       = color.NRGBA{0xFF, 0xFF, 0xFF, 0xFF}
	colorMuted      = color.NRGBA{0x9C, 0xA3, 0xAF, 0xFF}
)

// ImageRenderer draws tickets with imaging and a fixed bitmap font.
type ImageRenderer struct {
	event EventInfo
	fetch PhotoFetcher
	scale int
}

// NewImageRenderer returns a renderer producing images at scale times the
// base layout size. A nil fetcher renders every ticket without a photo.
func NewImageRenderer(event EventInfo, fetch PhotoFetcher, scale int) *ImageRenderer {
	if scale < 1 {
		scale = 2
	}
	return &ImageRenderer{event: event, fetch: fetch, scale: scale}
}

func (r *ImageRenderer) Render(ctx context.Context, t Ticket) ([]byte, error) {
	const op = "export.ImageRenderer.Render"

	var photo image.Image
	if t.PhotoURL != "" && r.fetch != nil {
		img, err := r.fetch.Fetch(ctx, t.PhotoURL)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		photo = imaging.Fill(img, photoSize, photoSize, imaging.Center, imaging.Lanczos)
	}

	canvas := imaging.New(canvasW, canvasH, colorBackground)
	fill(canvas, image.Rect(margin/2, margin/2, canvasW-margin/2, canvasH-margin/2), colorPanel)
	outline(canvas, image.Rect(margin/2, margin/2, canvasW-margin/2, canvasH-margin/2), colorAccent, 1)

	y := 34
	textCentered(canvas, r.event.Name, y, colorText)
	y += lineH + 4
	textCentered(canvas, r.event.Location, y, colorMuted)
	y += lineH
	textCentered(canvas, r.event.Date, y, colorMuted)
	y += 12

	photoRect := image.Rect((canvasW-photoSize)/2, y+photoBorder, (canvasW+photoSize)/2, y+photoBorder+photoSize)
	outline(canvas, photoRect.Inset(-photoBorder), colorAccent, photoBorder)
	if photo != nil {
		draw.Draw(canvas, photoRect, photo, image.Point{}, draw.Over)
	} else {
		fill(canvas, photoRect, colorInset)
		textAt(canvas, "No photo", photoRect.Min.X+(photoSize-textWidth("No photo"))/2, photoRect.Min.Y+photoSize/2, colorMuted)
	}
	y = photoRect.Max.Y + photoBorder + 12

	grid := image.Rect(margin, y, canvasW-margin, y+2*cellH+4*lineH+16)
	outline(canvas, grid, colorAccent, 1)

	cells := []struct{ label, value string }{
		{"Name", t.FullName},
		{"Email", t.Email},
		{"Ticket Type", orDefault(t.Type, "VIP")},
		{"Ticket for", QuantityLabel(t)},
	}
	for i, c := range cells {
		cx := margin + (i%2)*cellW + 6
		cy := y + (i/2)*cellH + lineH
		textAt(canvas, c.label, cx, cy, colorMuted)
		textAt(canvas, truncate(c.value, (cellW-12)/charW), cx, cy+lineH, colorText)
	}

	ry := y + 2*cellH + lineH
	textAt(canvas, "Special request", margin+6, ry, colorMuted)
	box := image.Rect(margin+6, ry+4, canvasW-margin-6, grid.Max.Y-6)
	fill(canvas, box, colorInset)
	for i, line := range wrap(orDefault(t.SpecialRequest, "No special requests"), (box.Dx()-8)/charW, 3) {
		textAt(canvas, line, box.Min.X+4, box.Min.Y+lineH+i*lineH-2, colorText)
	}

	barcode(canvas, CacheKey(t), grid.Max.Y+12)

	out := image.Image(canvas)
	if r.scale > 1 {
		out = imaging.Resize(canvas, canvasW*r.scale, canvasH*r.scale, imaging.NearestNeighbor)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return buf.Bytes(), nil
}

func fill(dst draw.Image, r image.Rectangle, c color.Color) {
	draw.Draw(dst, r, image.NewUniform(c), image.Point{}, draw.Src)
}

func outline(dst draw.Image, r image.Rectangle, c color.Color, width int) {
	fill(dst, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width), c)
	fill(dst, image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y), c)
	fill(dst, image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y), c)
	fill(dst, image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y), c)
}

func textWidth(s string) int {
	return font.MeasureString(basicfont.Face7x13, s).Round()
}

func textAt(dst draw.Image, s string, x, y int, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func textCentered(dst draw.Image, s string, y int, c color.Color) {
	s = truncate(s, (canvasW-2*margin)/charW)
	textAt(dst, s, (canvasW-textWidth(s))/2, y, c)
}

func truncate(s string, maxChars int) string {
	r := []rune(s)
	if len(r) <= maxChars {
		return s
	}
	if maxChars <= 3 {
		return string(r[:maxChars])
	}
	return string(r[:maxChars-3]) + "..."
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// wrap splits s into at most maxLines lines of width chars, breaking on
// spaces where possible.
func wrap(s string, width, maxLines int) []string {
	var lines []string
	var cur strings.Builder

	flush := func() {
		lines = append(lines, cur.String())
		cur.Reset()
	}

	for _, word := range strings.Fields(s) {
		for len([]rune(word)) > width {
			if cur.Len() > 0 {
				flush()
			}
			r := []rune(word)
			lines = append(lines, string(r[:width]))
			word = string(r[width:])
		}
		if cur.Len() > 0 && len([]rune(cur.String()))+1+len([]rune(word)) > width {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
	}
	if cur.Len() > 0 {
		flush()
	}

	if len(lines) > maxLines {
		lines = lines[:maxLines]
		lines[maxLines-1] = truncate(lines[maxLines-1]+"...", width)
	}

	return lines
}

// barcode draws a decorative strip derived from seed, with digits beneath.
func barcode(dst draw.Image, seed string, y int) {
	sum := blake3.Sum256([]byte(seed))

	const barH = 28
	x := (canvasW - 128) / 2
	for _, b := range sum[:16] {
		for bit := 0; bit < 8; bit++ {
			w := 1
			if b&(1<<bit) != 0 {
				fill(dst, image.Rect(x, y, x+w, y+barH), colorText)
			}
			x += w
		}
	}

	var digits strings.Builder
	for i, b := range sum[16:28] {
		if i == 6 {
			digits.WriteByte(' ')
		}
		digits.WriteByte('0' + b%10)
	}
	textCentered(dst, digits.String(), y+barH+lineH, colorMuted)
}
