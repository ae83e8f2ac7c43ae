// Package upload turns a locally selected image into a durable remote URL.
package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Gateway uploads image bytes and returns the public URL of the stored copy.
type Gateway interface {
	Upload(ctx context.Context, image []byte) (string, error)
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, image []byte) (string, error)

func (f GatewayFunc) Upload(ctx context.Context, image []byte) (string, error) {
	return f(ctx, image)
}

var (
	ErrInvalidImage  = errors.New("file is not a supported image")
	ErrPhotoTooLarge = errors.New("image is too large")
	ErrNoSecureURL   = errors.New("no secure URL received from upload service")
)

// ConfigError reports required settings that are missing. It is returned
// at the first upload attempt, before any network call.
type ConfigError struct {
	Provider string
	Missing  []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("missing %s configuration: %s", e.Provider, strings.Join(e.Missing, ", "))
}

// ServiceError is a failure reported by the remote upload service.
type ServiceError struct {
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("upload failed: %s (status %d)", e.Message, e.Status)
}

// Prepared wraps gw so every image is normalised by PreparePhoto first.
func Prepared(gw Gateway, maxBytes int64) Gateway {
	return GatewayFunc(func(ctx context.Context, image []byte) (string, error) {
		const op = "upload.Prepared"

		photo, err := PreparePhoto(image, maxBytes)
		if err != nil {
			return "", fmt.Errorf("%s:%w", op, err)
		}

		return gw.Upload(ctx, photo)
	})
}
