// Command sync copies every stored submission into the configured external
// store once and exits. It exits non-zero when any collection failed.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/parcelaid/backend/internal/config"
	"github.com/parcelaid/backend/internal/logging"
	"github.com/parcelaid/backend/internal/repository"
	"github.com/parcelaid/backend/internal/storage"
	"github.com/parcelaid/backend/internal/syncjob"
)

func main() {
	timeout := flag.Duration("timeout", 2*time.Minute, "overall deadline for the run")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Setup(os.Stderr, "INFO")
		logging.Fatal("invalid configuration", "error", err)
	}
	logging.Setup(os.Stderr, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	os.Exit(run(ctx, cfg))
}

func run(ctx context.Context, cfg *config.Config) int {
	var store repository.RecordStore
	switch cfg.StoreBackend {
	case "postgres":
		pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			return 1
		}
		defer pool.Close()
		store = repository.NewPgRecordStore(pool)
	case "file":
		store = repository.NewFileRecordStore(storage.NewLocalStorage(cfg.DataDir))
	case "s3":
		remote, err := storage.NewS3Storage(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix)
		if err != nil {
			slog.Error("failed to configure s3 storage", "error", err)
			return 1
		}
		store = repository.NewFileRecordStore(remote)
	default:
		slog.Error("sync needs a persistent store", "store", cfg.StoreBackend)
		return 2
	}

	target, err := syncjob.NewTarget(ctx, syncjob.TargetConfig{
		Kind:        cfg.SyncTarget,
		MongoURI:    cfg.MongoURI,
		Database:    cfg.SyncDatabase,
		TablePrefix: cfg.SyncTablePrefix,
		Region:      cfg.AWSRegion,
	})
	if errors.Is(err, syncjob.ErrDisabled) {
		slog.Error("no sync target configured (set SYNC_TARGET or MONGODB_URI)")
		return 2
	}
	if err != nil {
		slog.Error("sync target unavailable", "error", err)
		return 1
	}
	defer func() {
		if err := target.Close(context.Background()); err != nil {
			slog.Error("close sync target", "error", err)
		}
	}()

	report, _ := syncjob.NewJob(store, target, cfg.SyncInterval).RunOnce(ctx)
	return exitCode(report)
}

// exitCode is 1 when any collection in report failed.
func exitCode(report syncjob.Report) int {
	for _, r := range report {
		if r.Err != nil {
			return 1
		}
	}
	return 0
}
