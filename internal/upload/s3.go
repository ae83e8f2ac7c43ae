package upload

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3Config describes an S3-compatible bucket (AWS S3, Cloudflare R2, MinIO)
// whose objects are publicly readable under PublicBaseURL.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
	KeyPrefix       string
}

// S3 stores photos as objects. The client is built lazily on first use so
// that missing settings surface at upload time, not at startup.
type S3 struct {
	cfg S3Config

	once     sync.Once
	uploader *manager.Uploader
	initErr  error
}

func NewS3(cfg S3Config) *S3 {
	if cfg.Region == "" {
		cfg.Region = "auto"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "profiles/"
	}
	return &S3{cfg: cfg}
}

func (g *S3) checkConfig() error {
	var missing []string
	if g.cfg.Bucket == "" {
		missing = append(missing, "S3_BUCKET")
	}
	if g.cfg.PublicBaseURL == "" {
		missing = append(missing, "S3_PUBLIC_BASE_URL")
	}
	if (g.cfg.AccessKeyID == "") != (g.cfg.SecretAccessKey == "") {
		missing = append(missing, "S3_ACCESS_KEY_ID/S3_SECRET_ACCESS_KEY")
	}
	if len(missing) > 0 {
		return &ConfigError{Provider: "s3", Missing: missing}
	}
	return nil
}

func (g *S3) init(ctx context.Context) error {
	g.once.Do(func() {
		if err := g.checkConfig(); err != nil {
			g.initErr = err
			return
		}

		opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(g.cfg.Region)}
		if g.cfg.AccessKeyID != "" {
			opts = append(opts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(g.cfg.AccessKeyID, g.cfg.SecretAccessKey, ""),
			))
		}

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			g.initErr = fmt.Errorf("load aws config: %w", err)
			return
		}

		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if g.cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(g.cfg.Endpoint)
				o.UsePathStyle = true
			}
		})

		g.uploader = manager.NewUploader(client)
	})

	return g.initErr
}

// ObjectURL is the public URL of key.
func (g *S3) ObjectURL(key string) string {
	return strings.TrimRight(g.cfg.PublicBaseURL, "/") + "/" + strings.TrimPrefix(key, "/")
}

func (g *S3) Upload(ctx context.Context, image []byte) (string, error) {
	const op = "upload.S3.Upload"

	if err := g.init(ctx); err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}

	key := g.cfg.KeyPrefix + uuid.NewString() + ".jpg"

	_, err := g.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(g.cfg.Bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(image),
		ContentType:  aws.String("image/jpeg"),
		CacheControl: aws.String("public, max-age=31536000"),
	})
	if err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}

	return g.ObjectURL(key), nil
}
