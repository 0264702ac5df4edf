// Copyright 2025 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/novatechflow/minikaf/pkg/broker"
	"github.com/novatechflow/minikaf/pkg/cache"
	"github.com/novatechflow/minikaf/pkg/metadata"
	"github.com/novatechflow/minikaf/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// app holds the wired broker components.
type app struct {
	cfg      brokerConfig
	registry *prometheus.Registry
	metrics  *broker.Metrics
	health   *broker.ArchiveHealth
	dir      *metadata.Directory
	store    *storage.LogStore
	archiver *storage.Archiver
	table    *broker.DispatchTable
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger()
	var path string
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	cfg, err := loadConfig(path, logger)
	if err != nil {
		logger.Error("load config failed", "error", err)
		os.Exit(1)
	}
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("broker startup failed", "error", err)
		os.Exit(1)
	}
	if cfg.MetricsAddr != "" {
		startMetricsServer(ctx, cfg.MetricsAddr, a, logger)
	}
	srv := &broker.Server{
		Addr:    cfg.KafkaAddr,
		Handler: a.table,
		Logger:  logger,
		Metrics: a.metrics,
	}
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("broker server error", "error", err)
		os.Exit(1)
	}
	srv.Wait()
}

func newApp(ctx context.Context, cfg brokerConfig, logger *slog.Logger) (*app, error) {
	var client storage.S3Client
	if cfg.Archive.enabled() {
		var err error
		if client, err = buildArchiveClient(ctx, cfg.Archive, logger); err != nil {
			return nil, err
		}
	}
	return assembleApp(ctx, cfg, client, logger), nil
}

// assembleApp wires the broker around an optional archive client.
func assembleApp(ctx context.Context, cfg brokerConfig, client storage.S3Client, logger *slog.Logger) *app {
	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = broker.NewMetrics(a.registry)

	var logCache *cache.LogCache
	if cfg.CacheBytes > 0 {
		logCache = cache.NewLogCache(cfg.CacheBytes)
	}
	storeCfg := storage.LogStoreConfig{
		Root:   cfg.LogDirs,
		Cache:  logCache,
		Logger: logger.With("component", "log_store"),
	}

	if client != nil {
		a.health = broker.NewArchiveHealth(broker.ArchiveHealthConfig{Logger: logger})
		storeCfg.OnAppend = func(ctx context.Context, topic string, partition int32, result storage.AppendResult) {
			a.archiver.HandleAppend(ctx, topic, partition, result)
		}
		a.store = storage.NewLogStore(storeCfg)
		a.archiver = storage.NewArchiver(storage.ArchiverConfig{
			Client: client,
			Store:  a.store,
			Prefix: cfg.Archive.Prefix,
			Logger: logger.With("component", "archiver"),
			OnS3Op: func(op string, d time.Duration, err error) {
				a.metrics.ObserveS3Op(op, d, err)
				a.health.Observe(op, d, err)
			},
		})
		if cfg.Archive.Restore {
			restored, err := a.archiver.Restore(ctx)
			if err != nil {
				logger.Warn("archive restore incomplete", "error", err, "restored", restored)
			} else {
				logger.Info("archive restore finished", "restored", restored)
			}
		}
	} else {
		a.store = storage.NewLogStore(storeCfg)
	}

	a.dir = metadata.Load(cfg.LogDirs, logger.With("component", "metadata"))
	a.metrics.SetTopics(len(a.dir.Topics()))
	for _, f := range a.dir.FeatureLevels() {
		logger.Info("feature level", "name", f.Name, "level", f.Level)
	}
	for _, t := range a.dir.Topics() {
		logger.Debug("topic loaded", "topic", t.Name, "id", t.ID.String(), "partitions", len(a.dir.Partitions(t.ID)))
	}

	a.table = broker.NewDispatchTable(a.dir, a.store, broker.Options{
		Logger:        logger.With("component", "dispatch"),
		Metrics:       a.metrics,
		TraceRequests: cfg.TraceKafka,
	})
	return a
}

func buildArchiveClient(ctx context.Context, cfg archiveConfig, logger *slog.Logger) (storage.S3Client, error) {
	if cfg.Memory {
		logger.Info("using in-memory archive", "property", "archive.memory=true")
		return storage.NewMemoryS3Client(), nil
	}
	accessKey := os.Getenv("MINIKAF_S3_ACCESS_KEY")
	secretKey := os.Getenv("MINIKAF_S3_SECRET_KEY")
	sessionToken := os.Getenv("MINIKAF_S3_SESSION_TOKEN")
	base := storage.S3Config{
		Bucket:          cfg.Bucket,
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		ForcePathStyle:  cfg.PathStyle,
		AccessKeyID:     accessKey,
		SecretAccessKey: secretKey,
		SessionToken:    sessionToken,
		KMSKeyARN:       cfg.KMSKeyARN,
	}
	client, err := storage.NewS3Client(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("create archive client: %w", err)
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure archive bucket %s: %w", cfg.Bucket, err)
	}
	logger.Info("using S3 archive", "bucket", cfg.Bucket, "region", cfg.Region, "endpoint", cfg.Endpoint, "force_path_style", cfg.PathStyle, "kms_configured", cfg.KMSKeyARN != "", "credentials_provided", accessKey != "" && secretKey != "")

	if cfg.ReadBucket == "" && cfg.ReadRegion == "" && cfg.ReadEndpoint == "" {
		return client, nil
	}
	readCfg := base
	if cfg.ReadBucket != "" {
		readCfg.Bucket = cfg.ReadBucket
	}
	if cfg.ReadRegion != "" {
		readCfg.Region = cfg.ReadRegion
	}
	if cfg.ReadEndpoint != "" {
		readCfg.Endpoint = cfg.ReadEndpoint
	}
	readClient, err := storage.NewS3Client(ctx, readCfg)
	if err != nil {
		logger.Error("failed to create read archive client; using write client", "error", err, "bucket", readCfg.Bucket)
		return client, nil
	}
	logger.Info("using S3 archive read replica", "bucket", readCfg.Bucket, "region", readCfg.Region, "endpoint", readCfg.Endpoint)
	return newDualS3Client(client, readClient), nil
}

func (a *app) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		state := "disabled"
		if a.health != nil {
			state = string(a.health.Status().State)
		}
		if !a.health.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "not ready archive=%s\n", state)
			return
		}
		fmt.Fprintf(w, "ready archive=%s\n", state)
	})
	return mux
}

func startMetricsServer(ctx context.Context, addr string, a *app, logger *slog.Logger) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
}
