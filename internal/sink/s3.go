package sink

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Sink uploads the payload as a single object. The session ID, source URL
// and digest are stored as object metadata.
type S3Sink struct {
	Bucket   string
	Key      string
	uploader uploader
}

func parseS3URL(rawURL string) (string, string, error) {
	trimmed := strings.TrimPrefix(rawURL, "s3://")
	parts := strings.SplitN(trimmed, "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid S3 URL %q: missing bucket", rawURL)
	}
	if len(parts) < 2 || parts[1] == "" || strings.HasSuffix(parts[1], "/") {
		return "", "", fmt.Errorf("invalid S3 URL %q: missing object key", rawURL)
	}
	return parts[0], parts[1], nil
}

func getS3Client(ctx context.Context) (*s3.Client, error) {
	profile := os.Getenv("AWS_PROFILE")
	if profile == "" {
		profile = "default"
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithSharedConfigProfile(profile), config.WithRetryMode("adaptive"))
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.DisableLogOutputChecksumValidationSkipped = true
	}), nil
}

func NewS3Sink(ctx context.Context, rawURL string) (*S3Sink, error) {
	bucket, key, err := parseS3URL(rawURL)
	if err != nil {
		return nil, err
	}
	client, err := getS3Client(ctx)
	if err != nil {
		return nil, err
	}
	up := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = manager.DefaultUploadPartSize
		u.Concurrency = 4
	})
	return &S3Sink{Bucket: bucket, Key: key, uploader: up}, nil
}

func (s *S3Sink) Write(ctx context.Context, p Payload) (string, error) {
	metadata := map[string]string{}
	if p.SessionID != "" {
		metadata["rangeget-session"] = p.SessionID
	}
	if p.SHA256 != "" {
		metadata["sha256"] = p.SHA256
	}
	if p.SourceURL != "" {
		metadata["source-url"] = p.SourceURL
	}
	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.Bucket),
		Key:           aws.String(s.Key),
		Body:          bytes.NewReader(p.Data),
		ContentLength: aws.Int64(int64(len(p.Data))),
		Metadata:      metadata,
	})
	if err != nil {
		return "", fmt.Errorf("error uploading to s3://%s/%s: %w", s.Bucket, s.Key, err)
	}
	log.Debug().Str("op", "sink/s3").Str("session", p.SessionID).Msgf("uploaded %d bytes to %s", len(p.Data), out.Location)
	return fmt.Sprintf("s3://%s/%s", s.Bucket, s.Key), nil
}
