package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	gonanoid "github.com/matoous/go-nanoid/v2"
	cfg "github.com/postpilot/autopilot/configs"
)

// StorageService stores generated images in Cloudflare R2 so posts never
// reference short-lived provider URLs.
type StorageService struct {
	config cfg.Config
	client *http.Client
}

func NewStorageService(cfg cfg.Config) *StorageService {
	return &StorageService{
		config: cfg,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (s *StorageService) r2Client(ctx context.Context) (*s3.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(s.config.R2.AccessKey, s.config.R2.SecretKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", s.config.R2.AccountID))
	}), nil
}

// Upload stores the bytes under a fresh key and returns the public URL.
func (s *StorageService) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	suffix, err := gonanoid.New(16)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("generated/%s.png", suffix)

	client, err := s.r2Client(ctx)
	if err != nil {
		return "", err
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.config.R2.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}

	if _, err := client.PutObject(ctx, input); err != nil {
		slog.Info(err.Error())
		return "", err
	}

	return fmt.Sprintf("%s/%s", s.config.R2.PublicURL, key), nil
}

// MirrorURL downloads an image from a provider URL and re-uploads it.
func (s *StorageService) MirrorURL(ctx context.Context, srcURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", srcURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image download returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}

	return s.Upload(ctx, data, contentType)
}
