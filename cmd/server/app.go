package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/File-Sharing-BondBridg/Asset-Service/internal/blobstore"
	"github.com/File-Sharing-BondBridg/Asset-Service/internal/configuration"
	"github.com/File-Sharing-BondBridg/Asset-Service/internal/logging"
	natsclient "github.com/File-Sharing-BondBridg/Asset-Service/internal/nats"
	"github.com/File-Sharing-BondBridg/Asset-Service/internal/previews"
	"github.com/File-Sharing-BondBridg/Asset-Service/internal/ratelimit"
	"github.com/File-Sharing-BondBridg/Asset-Service/internal/retention"
	"github.com/File-Sharing-BondBridg/Asset-Service/internal/scan"
	"github.com/File-Sharing-BondBridg/Asset-Service/internal/services"
	"github.com/File-Sharing-BondBridg/Asset-Service/internal/storage"
)

// app holds every long-lived dependency of the service.
type app struct {
	cfg *configuration.Config
	log logging.Logger

	db      *sql.DB
	repo    storage.Repository
	blobs   blobstore.BlobStore
	nats    *natsclient.Client
	pool    *previews.Pool
	assets  *services.AssetService
	sweeper *retention.Sweeper
	limiter ratelimit.Store
}

func newApp(ctx context.Context, cfg *configuration.Config, log logging.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}
	if err := a.init(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	cfg := a.cfg

	if err := a.openMetadata(ctx); err != nil {
		return err
	}
	if err := a.openBlobs(ctx); err != nil {
		return err
	}

	if cfg.NATSURL != "" {
		client, err := natsclient.Connect(cfg.NATSURL, cfg.Tracing.ServiceName)
		if err != nil {
			if cfg.Thumbnail.Mode == "nats" {
				return err
			}
			a.log.Warn(ctx, "NATS unavailable, events disabled", "error", err)
		} else {
			a.nats = client
		}
	}

	opts := services.Options{
		Repo:   a.repo,
		Blobs:  a.blobs,
		Logger: a.log,
		Constraints: services.Constraints{
			MaxSizeBytes:     cfg.Upload.MaxSizeBytes,
			AllowedMimeTypes: cfg.Upload.AllowedMimeTypes,
		},
		Deriver:          previews.NewGenerator(a.blobs, cfg.Thumbnail.Box, cfg.Thumbnail.Quality, cfg.Thumbnail.MaxPixels),
		VerifyOnDownload: cfg.Storage.VerifyOnDownload,
		BatchParallelism: cfg.Upload.BatchParallelism,
	}
	switch cfg.Thumbnail.Mode {
	case "pool":
		a.pool = previews.NewPool(cfg.Thumbnail.Workers, cfg.Thumbnail.QueueSize, a.log)
		opts.Dispatcher = a.pool
	case "nats":
		opts.Dispatcher = a.nats
	}
	if a.nats != nil {
		nc := a.nats
		opts.Events = nc
		opts.HealthChecks = append(opts.HealthChecks, services.HealthCheck{
			Name: "nats",
			Ping: func(context.Context) error { return nc.Ping() },
		})
	}
	if cfg.CLAMAVURL != "" {
		clam := scan.NewClamAV(cfg.CLAMAVURL)
		opts.Scanner = clam
		opts.HealthChecks = append(opts.HealthChecks, services.HealthCheck{
			Name: "clamav",
			Ping: func(context.Context) error { return clam.Ping() },
		})
	}
	a.assets = services.NewAssetService(opts)

	var locker retention.Locker
	if a.db != nil {
		locker = storage.NewAdvisoryLocker(a.db, storage.SweepLockKey)
		a.limiter = ratelimit.NewPostgresStore(a.db)
	} else {
		a.limiter = ratelimit.NewMemoryStore()
	}
	a.sweeper = retention.NewSweeper(a.repo, a.assets, retention.Options{
		Locker:    locker,
		BatchSize: cfg.Retention.BatchSize,
		Logger:    a.log,
	})
	return nil
}

func (a *app) openMetadata(ctx context.Context) error {
	switch a.cfg.Storage.Metadata {
	case "postgres":
		db, err := storage.Connect(ctx, a.cfg.Database.ConnectionString())
		if err != nil {
			return err
		}
		a.db = db
		if err := storage.Migrate(ctx, db); err != nil {
			return err
		}
		a.repo = storage.NewPostgresStorage(db)
	case "file":
		repo, err := storage.NewFileStorage(a.cfg.Storage.MetadataFile)
		if err != nil {
			return err
		}
		a.repo = repo
	default:
		a.repo = storage.NewMemoryStorage()
	}
	a.log.Info(ctx, "metadata store ready", "backend", a.cfg.Storage.Metadata)
	return nil
}

func (a *app) openBlobs(ctx context.Context) error {
	switch a.cfg.Storage.Backend {
	case "minio":
		m := a.cfg.MinIO
		store, err := blobstore.NewMinioStore(m.Endpoint, m.AccessKey, m.SecretKey, m.BucketName, m.UseSSL)
		if err != nil {
			return err
		}
		a.blobs = store
	default:
		a.blobs = blobstore.NewLocalStore(a.cfg.Storage.LocalRoot)
	}
	if err := a.blobs.EnsureLocation(ctx); err != nil {
		return fmt.Errorf("prepare %s storage: %w", a.cfg.Storage.Backend, err)
	}
	a.log.Info(ctx, "byte store ready", "backend", a.cfg.Storage.Backend)
	return nil
}

// close releases resources in reverse order of acquisition. Safe on a
// partially initialized app.
func (a *app) close() {
	if a.pool != nil {
		a.pool.Stop()
	}
	if a.nats != nil {
		a.nats.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Error(context.Background(), "failed to close database", "error", err)
		}
	}
}
