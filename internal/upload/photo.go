package upload

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

const (
	PhotoSize        = 400
	PhotoJPEGQuality = 85
	DefaultMaxBytes  = 10 << 20
)

// PreparePhoto decodes an uploaded image, applies its EXIF orientation,
// crops it to a centred PhotoSize square and re-encodes it as JPEG.
func PreparePhoto(data []byte, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	if len(data) == 0 {
		return nil, ErrInvalidImage
	}

	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrPhotoTooLarge, len(data), maxBytes)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	img = imaging.Fill(img, PhotoSize, PhotoSize, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(PhotoJPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode photo: %w", err)
	}

	return buf.Bytes(), nil
}
