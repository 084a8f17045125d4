// utils/r2.go
package utils

import (
	"context"
	"fmt"
	"strings"
	"time"

	"box-mining-service/config"
	"box-mining-service/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// PresignTTL is how long a presigned template image URL stays valid.
const PresignTTL = time.Hour

// AssetStore resolves template image references stored as R2 object keys.
type AssetStore struct {
	presign    *s3.PresignClient
	bucket     string
	cdnBaseURL string
}

// NewAssetStore builds an R2-backed resolver. Without R2 credentials it only knows the CDN base URL.
func NewAssetStore(ctx context.Context, r2 config.R2Config) (*AssetStore, error) {
	store := &AssetStore{bucket: r2.Bucket, cdnBaseURL: strings.TrimRight(r2.CDNBaseURL, "/")}
	if !r2.Enabled() {
		return store, nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			r2.AccessKeyID, r2.AccessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", r2.AccountID)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
	store.presign = s3.NewPresignClient(client)
	return store, nil
}

// ResolveImageURL returns absolute URLs unchanged, prefers the public CDN for object keys,
// and falls back to a presigned GET when only R2 credentials are configured.
func (a *AssetStore) ResolveImageURL(ctx context.Context, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || isAbsoluteURL(ref) {
		return ref
	}
	key := strings.TrimLeft(ref, "/")
	if a.cdnBaseURL != "" {
		return fmt.Sprintf("%s/%s", a.cdnBaseURL, key)
	}
	if a.presign == nil {
		return ref
	}

	req, err := a.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(PresignTTL))
	if err != nil {
		logger.Warn("presign template image failed", zap.String("key", key), zap.Error(err))
		return ref
	}
	return req.URL
}

func isAbsoluteURL(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
