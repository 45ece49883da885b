package minio

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"adcampaign-controlplane/pkg/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Client = fx.Module("minio.client", fx.Provide(NewPresigner))

// Presigner turns a stored object path into a short-lived download URL.
// An empty URL means no object storage is configured.
type Presigner interface {
	PresignGet(ctx context.Context, objectPath string) (string, error)
}

type nopPresigner struct{}

func (nopPresigner) PresignGet(context.Context, string) (string, error) { return "", nil }

// Nop is used when MINIO.ENDPOINT is empty and in tests.
var Nop Presigner = nopPresigner{}

type presigner struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

func NewPresigner(c *config.Config) (Presigner, error) {
	if c.Minio.Endpoint == "" {
		zap.L().Info("MinIO disabled, image responses carry no download url")
		return Nop, nil
	}

	client, err := minio.New(c.Minio.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Minio.AccessKey, c.Minio.SecretKey, ""),
		Secure: c.Minio.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(context.Background(), c.Minio.BucketName)
	if err != nil {
		zap.L().Error("failed to check if bucket exists", zap.String("bucket", c.Minio.BucketName), zap.Error(err))
		return nil, err
	}
	zap.L().Info("MinIO client initialized", zap.String("endpoint", c.Minio.Endpoint), zap.Bool("bucketExists", exists))

	return &presigner{client: client, bucket: c.Minio.BucketName, expiry: c.Minio.URLExpiry}, nil
}

func (p *presigner) PresignGet(ctx context.Context, objectPath string) (string, error) {
	u, err := p.client.PresignedGetObject(ctx, p.bucket, objectPath, p.expiry, url.Values{})
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
