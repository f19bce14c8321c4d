// Package app wires the daemon together: config, embedded platform,
// conversation store, pipelines, and the HTTP server.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"chatterly/internal/retention"
	"chatterly/pkg/api"
	"chatterly/pkg/banner"
	"chatterly/pkg/config"
	"chatterly/pkg/directory"
	"chatterly/pkg/ingest"
	"chatterly/pkg/logger"
	"chatterly/pkg/platform/local"
	"chatterly/pkg/send"
	"chatterly/pkg/session"
	"chatterly/pkg/store"
	"chatterly/pkg/summary"
)

// App encapsulates the daemon components and lifecycle.
type App struct {
	cfg     *config.Config
	version string

	platform *local.Local
	store    *store.Store
	sessions *session.Holder
	ingestor *ingest.Ingestor

	srv *http.Server
}

// New initializes resources that need no running context: the embedded
// platform and the reconciliation components. Call Run to start the HTTP
// server and block until shutdown.
func New(cfg *config.Config, version string) (*App, error) {
	pf, err := local.Open(local.Options{
		DBPath:        cfg.Storage.DBPath,
		UploadDir:     cfg.Storage.UploadDir,
		PublicBaseURL: cfg.Server.PublicBaseURL,
		NatsURL:       cfg.Feed.NatsURL,
	})
	if err != nil {
		return nil, fmt.Errorf("open platform: %w", err)
	}

	return &App{
		cfg:      cfg,
		version:  version,
		platform: pf,
		store:    store.New(),
		sessions: &session.Holder{},
	}, nil
}

// Run starts the retention scheduler and the HTTP server, blocking until
// ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	notices := api.NewNoticeHub()
	summaries := summary.New(a.store, a.platform)
	a.ingestor = ingest.New(a.store, a.platform, summaries)
	sender := send.New(a.store, a.platform, summaries, func(channelID string, err error) {
		notices.Publish(channelID, err.Error())
	})
	dir := directory.New(a.platform, a.store)

	stopRetention, err := retention.Start(ctx, a.cfg, a.platform)
	if err != nil {
		return err
	}
	defer stopRetention()

	handler := api.NewRouter(api.Deps{
		BaseCtx:   ctx,
		Store:     a.store,
		Platform:  a.platform,
		Sessions:  a.sessions,
		Send:      sender,
		Ingest:    a.ingestor,
		Directory: dir,
		Notices:   notices,
		UploadDir: a.cfg.Storage.UploadDir,
		RateRPS:   a.cfg.RateLimit.RPS,
		RateBurst: a.cfg.RateLimit.Burst,
	})

	banner.Print(a.cfg, a.version)

	a.srv = &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_listening", "addr", a.srv.Addr)
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return a.shutdown()
	case err := <-errCh:
		_ = a.shutdown()
		return err
	}
}

func (a *App) shutdown() error {
	logger.Info("shutting_down")
	if a.ingestor != nil {
		a.ingestor.Close()
	}
	if a.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.srv.Shutdown(ctx); err != nil {
			logger.Error("http_shutdown_failed", "error", err)
		}
	}
	if err := a.platform.Close(); err != nil {
		return fmt.Errorf("close platform: %w", err)
	}
	logger.Info("shutdown_complete")
	return nil
}
