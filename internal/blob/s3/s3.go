// Package s3 stores post images in an S3 bucket.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/ButyrinIA/lostfound/internal/blob"
)

type Options struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint overrides the AWS endpoint, e.g. for MinIO.
	Endpoint     string
	UsePathStyle bool
	// PublicBaseURL, when set, is used instead of presigned URLs.
	PublicBaseURL string
	PresignTTL    time.Duration
}

type Store struct {
	client  *awss3.Client
	presign *awss3.PresignClient
	opts    Options
	logger  *zap.Logger
}

func New(ctx context.Context, opts Options, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Bucket == "" {
		return nil, errors.New("s3 bucket is not configured")
	}
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = 15 * time.Minute
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})
	return &Store{
		client:  client,
		presign: awss3.NewPresignClient(client),
		opts:    opts,
		logger:  logger,
	}, nil
}

func (s *Store) Put(ctx context.Context, path string, body io.Reader, size int64, contentType string, onProgress blob.ProgressFunc) (blob.Ref, error) {
	pr := blob.NewProgressReader(body, size, onProgress)
	_, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(s.opts.Bucket),
		Key:           aws.String(path),
		Body:          pr,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		s.logger.Error("s3_put_failed", zap.String("key", path), zap.Error(err))
		return "", fmt.Errorf("failed to upload object: %w", err)
	}
	pr.Done()
	return blob.Ref(path), nil
}

func (s *Store) DownloadURL(ctx context.Context, ref blob.Ref) (string, error) {
	if s.opts.PublicBaseURL != "" {
		return strings.TrimRight(s.opts.PublicBaseURL, "/") + "/" + string(ref), nil
	}
	req, err := s.presign.PresignGetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(string(ref)),
	}, awss3.WithPresignExpires(s.opts.PresignTTL))
	if err != nil {
		return "", fmt.Errorf("failed to presign object: %w", err)
	}
	return req.URL, nil
}

func (s *Store) Open(ctx context.Context, ref blob.Ref) (io.ReadCloser, string, error) {
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(string(ref)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, "", blob.ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to get object: %w", err)
	}
	return out.Body, aws.ToString(out.ContentType), nil
}

func (s *Store) Delete(ctx context.Context, ref blob.Ref) error {
	_, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(string(ref)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}
