package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const DefaultCloudinaryAPIBase = "https://api.cloudinary.com/v1_1"

type CloudinaryConfig struct {
	CloudName    string
	UploadPreset string
	// APIBase overrides the API root, mainly for tests.
	APIBase string
	Timeout time.Duration
}

// Cloudinary uploads unsigned images with an upload preset.
type Cloudinary struct {
	cfg    CloudinaryConfig
	client *http.Client
}

func NewCloudinary(cfg CloudinaryConfig, client *http.Client) *Cloudinary {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultCloudinaryAPIBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Cloudinary{cfg: cfg, client: client}
}

type cloudinaryResponse struct {
	SecureURL string `json:"secure_url"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Cloudinary) checkConfig() error {
	var missing []string
	if c.cfg.CloudName == "" {
		missing = append(missing, "CLOUDINARY_CLOUD_NAME")
	}
	if c.cfg.UploadPreset == "" {
		missing = append(missing, "CLOUDINARY_UPLOAD_PRESET")
	}
	if len(missing) > 0 {
		return &ConfigError{Provider: "cloudinary", Missing: missing}
	}
	return nil
}

func (c *Cloudinary) endpoint() string {
	return fmt.Sprintf("%s/%s/image/upload", strings.TrimRight(c.cfg.APIBase, "/"), c.cfg.CloudName)
}

// Upload posts image as multipart form data and returns its secure_url.
func (c *Cloudinary) Upload(ctx context.Context, image []byte) (string, error) {
	const op = "upload.Cloudinary.Upload"

	if err := c.checkConfig(); err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("file", "photo.jpg")
	if err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}
	if _, err := part.Write(image); err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}
	if err := w.WriteField("upload_preset", c.cfg.UploadPreset); err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}
	if err := w.WriteField("cloud_name", c.cfg.CloudName); err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), &body)
	if err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}

	var out cloudinaryResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := "Unknown error"
		if decodeErr == nil && out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return "", fmt.Errorf("%s:%w", op, &ServiceError{Status: resp.StatusCode, Message: msg})
	}

	if decodeErr != nil {
		return "", fmt.Errorf("%s: decode response: %w", op, decodeErr)
	}

	if out.SecureURL == "" {
		return "", fmt.Errorf("%s:%w", op, ErrNoSecureURL)
	}

	return out.SecureURL, nil
}
