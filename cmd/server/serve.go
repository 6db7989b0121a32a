package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ButyrinIA/lostfound/internal/authz"
	"github.com/ButyrinIA/lostfound/internal/identity"
	"github.com/ButyrinIA/lostfound/internal/imaging"
	"github.com/ButyrinIA/lostfound/internal/metrics"
	"github.com/ButyrinIA/lostfound/internal/post"
	"github.com/ButyrinIA/lostfound/internal/profanity"
	"github.com/ButyrinIA/lostfound/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringSlice("admin", nil, "subject ids granted admin on startup (memory storage only)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	seed, _ := cmd.Flags().GetStringSlice("admin")
	if len(seed) > 0 && cfg.Storage.Type == "memory" {
		for _, id := range seed {
			if err := backend.SetAdmin(ctx, id, true); err != nil {
				return err
			}
			logger.Info("admin_seeded", zap.String("subject_id", id))
		}
	}

	blobs, err := openBlobs(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if c, ok := blobs.(closer); ok {
		defer c.Close()
	}

	m := metrics.New()
	cache, err := authz.NewCache(backend, authz.Options{
		TTL:      cfg.Admin.CacheTTL.Duration(),
		Size:     cfg.Admin.CacheSize,
		Observer: m,
	}, logger.Named("authz"))
	if err != nil {
		return err
	}

	posts := post.NewService(post.Deps{
		Identity:   identity.ContextProvider{},
		Authz:      cache,
		Classifier: profanity.Default(),
		Normalizer: imaging.New(imaging.Options{
			MaxDimension:   cfg.Images.MaxDimension,
			Quality:        cfg.Images.Quality,
			GIFPassThrough: int64(cfg.Images.GIFPassThrough),
			MaxPixels:      cfg.Images.MaxPixels,
		}, logger.Named("imaging")),
		Blobs:   blobs,
		Store:   backend,
		Metrics: m,
		Logger:  logger.Named("post"),
	}, post.Options{
		MaxImageSize: int64(cfg.Posts.MaxImageSize),
		Prefix:       cfg.Blob.Prefix,
		FeedLimit:    cfg.Posts.FeedLimit,
	})

	srv := server.New(cfg, server.Deps{
		Posts:    posts,
		Admins:   backend,
		Cache:    cache,
		Verifier: identity.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.AllowedDomain),
		Blobs:    blobs,
		Metrics:  m,
		Logger:   logger.Named("http"),
	})
	logger.Info("server_starting",
		zap.String("port", cfg.Server.Port),
		zap.String("storage", cfg.Storage.Type),
		zap.String("blob_backend", cfg.Blob.Backend),
		zap.Stringer("max_image_size", cfg.Posts.MaxImageSize))
	return srv.Run(ctx)
}
