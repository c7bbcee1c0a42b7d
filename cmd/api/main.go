package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"xentro.org/internal/authn"
	"xentro.org/internal/feed"
	"xentro.org/internal/httpapi"
	"xentro.org/internal/mail"
	"xentro.org/internal/notify"
	"xentro.org/internal/obs"
	"xentro.org/internal/platform"
	"xentro.org/internal/ratelimit"
)

var version = "0.3.1"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("XENTRO_COMMIT"))

	var (
		store platform.Store
		pg    *platform.PGStore
	)
	if dsn := os.Getenv("XENTRO_PG_DSN"); dsn != "" {
		var err error
		pg, err = platform.OpenPG(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		store = pg
	} else {
		// demo mode: everything lives in memory
		store = platform.NewInMemory()
		log.Println("XENTRO_PG_DSN not set, using in-memory store")
	}

	stream := feed.New()
	streamCtx, stopStream := context.WithCancel(context.Background())
	go stream.Run(streamCtx)
	notifier := notify.New(store.Notifications(), stream)

	workflow := platform.NewWorkflow(store,
		platform.WithMailer(mail.LogMailer{}),
		platform.WithNotifier(notifier),
		platform.WithBaseURL(os.Getenv("XENTRO_BASE_URL")),
	)

	resolver := authn.NewResolver(store, authn.NewSessionCache(authn.DefaultCacheTTL))

	rp := httpapi.ReadyProbe{}
	if pg != nil {
		rp.DB = pg.DB()
	}
	api := httpapi.New(httpapi.Config{
		ReadyProbe: rp,
		Version:    version,
		Store:      store,
		Workflow:   workflow,
		Resolver:   resolver,
		Notifier:   notifier,
		Stream:     stream,
		Limiter:    ratelimit.NewLimiter(),
	})

	addr := os.Getenv("XENTRO_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second, // SSE connections write slowly
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting xentro-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	stopStream()
	if pg != nil {
		_ = pg.Close()
	}
	log.Println("Stopped")
}
