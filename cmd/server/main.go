// Package main is the entry point for the notevault server.
//
// notevault keeps every note in one JSON document stored in an
// S3-compatible bucket, falling back to a local file when the bucket is
// unreachable. Configuration comes from CLI flags and environment
// variables; --no-s3 swaps the remote backend for an in-process fake so
// the full online path runs without cloud credentials.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
	"github.com/kuitang/notevault/internal/api"
	"github.com/kuitang/notevault/internal/config"
	"github.com/kuitang/notevault/internal/obs"
	"github.com/kuitang/notevault/internal/ratelimit"
	"github.com/kuitang/notevault/internal/s3client"
	"github.com/kuitang/notevault/internal/session"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "notevault: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	noS3 := flag.Bool("no-s3", false, "Use in-process fake S3 storage (no cloud credentials needed)")
	addr := flag.String("addr", "", "Listen address (default :8080, overrides LISTEN_ADDR env var)")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}

	obs.Init()
	log := obs.Pkg("main")

	cfg, err := config.LoadConfig(*noS3, *addr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	opts := session.Options{
		LocalPath: cfg.LocalFile,
		ObjectKey: cfg.ObjectKey,
		S3:        cfg.S3Config(),
	}
	if cfg.NoS3 {
		stopFake, err := startFakeS3(&opts)
		if err != nil {
			return fmt.Errorf("start fake s3: %w", err)
		}
		defer stopFake()
		log.Info("running with in-process fake S3", "endpoint", opts.S3.Endpoint)
	}
	sess := session.New(opts)

	limiter := ratelimit.NewRateLimiter(cfg.RateLimitConfig)
	defer limiter.Stop()

	mux := http.NewServeMux()
	api.NewHandler(sess, cfg.APIKey).RegisterRoutes(mux)
	handler := api.Recovery(api.RequestLogging(ratelimit.Middleware(limiter)(mux)))

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.ListenAddr, "local_file", cfg.LocalFile)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// startFakeS3 serves gofakes3 on a loopback port and points the session's
// client factory at it. Buckets are created on demand so POST /setup can
// name any bucket and still go online.
func startFakeS3(opts *session.Options) (func(), error) {
	backend := s3mem.New()
	faker := gofakes3.New(backend)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	server := &http.Server{Handler: faker.Server()}
	go func() {
		_ = server.Serve(listener)
	}()

	opts.S3.Endpoint = "http://" + listener.Addr().String()
	opts.S3.UsePathStyle = true
	if opts.S3.AccessKeyID == "" {
		opts.S3.AccessKeyID = "notevault"
		opts.S3.SecretAccessKey = "notevault"
	}
	opts.NewClient = func(ctx context.Context, cfg s3client.Config) (*s3client.Client, error) {
		exists, err := backend.BucketExists(cfg.BucketName)
		if err != nil {
			return nil, err
		}
		if !exists {
			if err := backend.CreateBucket(cfg.BucketName); err != nil {
				return nil, err
			}
		}
		return s3client.New(ctx, cfg)
	}

	return func() { _ = server.Close() }, nil
}
