package sink

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/oszuidwest/zwfm-vadrecorder/internal/export"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/util"
)

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint        string // Custom S3 endpoint (empty for AWS)
	Region          string // Signing region; "auto" suits most S3-compatible stores
	Bucket          string // Bucket name
	Prefix          string // Key prefix for archived utterances
	AccessKeyID     string
	SecretAccessKey string
}

// IsConfigured reports whether enough settings are present to upload.
func (c *S3Config) IsConfigured() bool {
	return util.IsConfigured(c.Bucket, c.AccessKeyID, c.SecretAccessKey)
}

// S3Archiver uploads delivered artifacts to an S3-compatible bucket.
type S3Archiver struct {
	cfg    S3Config
	client *s3.Client
}

// NewS3Archiver returns an archiver for cfg.
func NewS3Archiver(cfg S3Config) (*S3Archiver, error) {
	if !cfg.IsConfigured() {
		return nil, fmt.Errorf("S3 is not configured")
	}
	return &S3Archiver{cfg: cfg, client: newS3Client(&cfg)}, nil
}

func newS3Client(cfg *S3Config) *s3.Client {
	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = creds
			o.Region = region
		},
	}
	if cfg.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	return s3.New(s3.Options{}, options...)
}

// Key returns the object key for an artifact: prefix/YYYY-MM-DD/<id>.<ext>.
func (a *S3Archiver) Key(art *export.Artifact) string {
	day := art.StartedAt.UTC().Format(time.DateOnly)
	return path.Join(a.cfg.Prefix, day, art.UtteranceID+path.Ext(art.Filename))
}

// Archive implements export.Archiver.
func (a *S3Archiver) Archive(ctx context.Context, art *export.Artifact) (string, error) {
	f, err := os.Open(art.Path)
	if err != nil {
		return "", util.WrapError("open artifact", err)
	}
	defer util.SafeCloseFunc(f, "artifact")()

	key := a.Key(art)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.cfg.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(art.Size),
		ContentType:   aws.String(art.ContentType),
		Metadata: map[string]string{
			"utterance-id": art.UtteranceID,
			"duration-ms":  strconv.FormatInt(art.Duration.Milliseconds(), 10),
			"close-reason": string(art.Reason),
		},
	})
	if err != nil {
		return "", util.WrapError("upload to S3", err)
	}

	slog.Info("archived utterance", "id", art.UtteranceID, "bucket", a.cfg.Bucket, "key", key)
	return "s3://" + a.cfg.Bucket + "/" + key, nil
}

// Check verifies bucket access by uploading and deleting a small object.
func (a *S3Archiver) Check(ctx context.Context) error {
	key := path.Join(a.cfg.Prefix, fmt.Sprintf("connection-test-%d.txt", time.Now().UnixNano()))
	content := []byte("zwfm-vadrecorder connection test")

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
	})
	if err != nil {
		return util.WrapError("upload test file", err)
	}

	_, err = a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		slog.Warn("failed to delete test file", "key", key, "error", err)
	}
	return nil
}
