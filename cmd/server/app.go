package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ButyrinIA/lostfound/internal/blob"
	blobpebble "github.com/ButyrinIA/lostfound/internal/blob/pebble"
	blobs3 "github.com/ButyrinIA/lostfound/internal/blob/s3"
	"github.com/ButyrinIA/lostfound/internal/config"
	"github.com/ButyrinIA/lostfound/internal/logs"
	"github.com/ButyrinIA/lostfound/internal/storage"
	"github.com/ButyrinIA/lostfound/internal/storage/memory"
	"github.com/ButyrinIA/lostfound/internal/storage/postgres"
)

// loadConfig reads --config and applies the --storage override.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	storageType, _ := cmd.Flags().GetString("storage")

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if storageType != "" {
		cfg.Storage.Type = storageType
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid --storage override: %w", err)
		}
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logs.New(cfg.Log.Level, cfg.Log.Development)
}

func openBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Backend, error) {
	switch cfg.Storage.Type {
	case "postgres":
		logger.Info("storage_init", zap.String("type", "postgres"))
		return postgres.New(ctx, cfg.Postgres.DSN, logger)
	case "memory":
		logger.Info("storage_init", zap.String("type", "memory"))
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Storage.Type)
	}
}

// closer is implemented by blob stores holding local resources.
type closer interface {
	Close() error
}

func openBlobs(ctx context.Context, cfg *config.Config, logger *zap.Logger) (blob.Store, error) {
	switch cfg.Blob.Backend {
	case "s3":
		s3cfg := cfg.Blob.S3
		return blobs3.New(ctx, blobs3.Options{
			Bucket:          s3cfg.Bucket,
			Region:          s3cfg.Region,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
			Endpoint:        s3cfg.Endpoint,
			UsePathStyle:    s3cfg.UsePathStyle,
			PublicBaseURL:   s3cfg.PublicBaseURL,
			PresignTTL:      s3cfg.PresignTTL.Duration(),
		}, logger)
	case "pebble":
		return blobpebble.Open(blobpebble.Options{
			Path:    cfg.Blob.PebblePath,
			BaseURL: strings.TrimRight(cfg.Server.PublicURL, "/") + "/blobs",
		}, logger)
	default:
		return nil, fmt.Errorf("unknown blob backend: %s", cfg.Blob.Backend)
	}
}
