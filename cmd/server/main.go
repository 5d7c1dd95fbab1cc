package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/parcelaid/backend/internal/config"
	"github.com/parcelaid/backend/internal/handler"
	"github.com/parcelaid/backend/internal/logging"
	"github.com/parcelaid/backend/internal/repository"
	"github.com/parcelaid/backend/internal/service"
	"github.com/parcelaid/backend/internal/storage"
	"github.com/parcelaid/backend/internal/syncjob"
	"github.com/parcelaid/backend/pkg/auth"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup(os.Stdout, "INFO")
		logging.Fatal("invalid configuration", "error", err)
	}
	logging.Setup(os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore := openStore(ctx, cfg)
	defer closeStore()

	if cfg.SessionSecret == config.DevSessionSecret {
		slog.Warn("SESSION_SECRET is not set; using the development secret")
	}
	if cfg.AdminID == "" || cfg.AdminPassword == "" {
		slog.Warn("ADMIN_ID or ADMIN_PASSWORD is not set; admin login is disabled")
	}
	sessionSecret := auth.SessionSecretBytes(cfg.SessionSecret)

	submissionService := service.NewSubmissionService(store)
	adminService := service.NewAdminService(store, service.AdminCredentials{
		ID:       cfg.AdminID,
		Password: cfg.AdminPassword,
	})

	h := handler.New(store, cfg.FrontendURL)
	submissionHandler := handler.NewSubmissionHandler(submissionService)
	adminHandler := handler.NewAdminHandler(adminService, handler.AdminConfig{
		SessionSecret: sessionSecret,
		SecureCookies: cfg.SecureCookies,
	})

	// 書き込み系とログインのみレート制限する
	rl := handler.NewRateLimiter(cfg.RateLimitPerMinute, cfg.TrustedProxyCount)
	defer rl.Close()
	limited := func(f http.HandlerFunc) http.Handler { return rl.Middleware(f) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", h.Health)

	mux.Handle("POST /api/donate", limited(submissionHandler.Donate))
	mux.HandleFunc("GET /api/donate/count", submissionHandler.DonationCount)
	mux.Handle("POST /api/volunteer", limited(submissionHandler.Volunteer))
	mux.Handle("POST /api/newsletter", limited(submissionHandler.Newsletter))
	mux.Handle("POST /api/contact", limited(submissionHandler.Contact))

	mux.Handle("POST /admin/login", limited(adminHandler.Login))
	mux.HandleFunc("POST /admin/logout", adminHandler.Logout)
	if cfg.AdminDataRequireSession {
		mux.Handle("GET /admin/data", auth.RequireAdmin(sessionSecret)(http.HandlerFunc(adminHandler.Data)))
	} else {
		slog.Warn("ADMIN_DATA_REQUIRE_SESSION=false; /admin/data is readable without login")
		mux.HandleFunc("GET /admin/data", adminHandler.Data)
	}

	// 静的フロントエンド（ディレクトリがある場合のみ）
	if info, err := os.Stat(cfg.PublicDir); err == nil && info.IsDir() {
		mux.Handle("GET /", http.FileServer(http.Dir(cfg.PublicDir)))
	} else {
		slog.Info("static files disabled", "public_dir", cfg.PublicDir)
	}

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler.RequestLogger(handler.SecurityHeaders(cfg.SecureCookies)(h.CORS(mux))),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", server.Addr, "store", cfg.StoreBackend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal("server error", "error", err)
		}
	}()

	// 外部ストアの準備は HTTP の受付開始後に行う
	var syncWG sync.WaitGroup
	target := startSync(ctx, cfg, store, &syncWG)

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	syncWG.Wait()
	if target != nil {
		if err := target.Close(shutdownCtx); err != nil {
			slog.Error("close sync target", "error", err)
		}
	}
}

// openStore builds the RecordStore selected by STORE_BACKEND. The returned
// func releases its resources.
func openStore(ctx context.Context, cfg *config.Config) (repository.RecordStore, func()) {
	switch cfg.StoreBackend {
	case "memory":
		slog.Warn("using in-memory store; submissions are lost on restart")
		return repository.NewMemoryRecordStore(), func() {}
	case "postgres":
		pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logging.Fatal("failed to connect to database", "error", err)
		}
		return repository.NewPgRecordStore(pool), pool.Close
	case "s3":
		remote, err := storage.NewS3Storage(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix)
		if err != nil {
			logging.Fatal("failed to configure s3 storage", "bucket", cfg.S3Bucket, "error", err)
		}
		store := repository.NewFileRecordStore(remote)
		if err := store.EnsureFiles(ctx); err != nil {
			logging.Fatal("failed to initialise s3 objects", "bucket", cfg.S3Bucket, "error", err)
		}
		return store, func() {}
	default:
		store := repository.NewFileRecordStore(storage.NewLocalStorage(cfg.DataDir))
		if err := store.EnsureFiles(ctx); err != nil {
			logging.Fatal("failed to initialise data files", "dir", cfg.DataDir, "error", err)
		}
		return store, func() {}
	}
}

// startSync は定期同期ジョブをバックグラウンドで起動する。
// 同期が無効、またはターゲットの設定が不正な場合は nil を返す。
// 外部ストアに到達できないだけならジョブは起動し、各実行で再試行する。
func startSync(ctx context.Context, cfg *config.Config, store repository.RecordStore, wg *sync.WaitGroup) syncjob.Target {
	target, err := syncjob.NewTarget(ctx, syncjob.TargetConfig{
		Kind:        cfg.SyncTarget,
		MongoURI:    cfg.MongoURI,
		Database:    cfg.SyncDatabase,
		TablePrefix: cfg.SyncTablePrefix,
		Region:      cfg.AWSRegion,
	})
	if errors.Is(err, syncjob.ErrDisabled) {
		slog.Info("sync disabled")
		return nil
	}
	if err != nil {
		slog.Error("invalid sync target configuration; sync disabled", "error", err)
		return nil
	}

	job := syncjob.NewJob(store, target, cfg.SyncInterval)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if p, ok := target.(interface{ Ping(context.Context) error }); ok {
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if err := p.Ping(pingCtx); err != nil {
				slog.Warn("sync target not reachable yet; will retry on each run", "error", err)
			}
			cancel()
		}
		job.Run(ctx)
	}()
	return target
}
