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
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/magiconair/properties"
)

const (
	defaultLogDirs       = "/tmp/kraft-combined-logs"
	defaultKafkaAddr     = ":9092"
	defaultMetricsAddr   = ":9093"
	defaultCacheBytes    = 32 << 20
	defaultArchiveRegion = "us-east-1"
	defaultArchivePrefix = "minikaf"
)

type archiveConfig struct {
	Bucket       string
	Region       string
	Endpoint     string
	PathStyle    bool
	Prefix       string
	KMSKeyARN    string
	Memory       bool
	Restore      bool
	ReadBucket   string
	ReadRegion   string
	ReadEndpoint string
}

func (c archiveConfig) enabled() bool {
	return c.Memory || c.Bucket != ""
}

type brokerConfig struct {
	LogDirs     string
	KafkaAddr   string
	MetricsAddr string
	CacheBytes  int
	TraceKafka  bool
	Archive     archiveConfig
}

// loadConfig reads the broker properties file. An empty path yields the
// defaults.
func loadConfig(path string, logger *slog.Logger) (brokerConfig, error) {
	if path == "" {
		logger.Warn("no properties file given; using defaults", "log_dirs", defaultLogDirs)
		return configFromProperties(properties.NewProperties(), logger), nil
	}
	props, err := properties.LoadFile(path, properties.UTF8)
	if err != nil {
		return brokerConfig{}, fmt.Errorf("load properties %s: %w", path, err)
	}
	return configFromProperties(props, logger), nil
}

func configFromProperties(props *properties.Properties, logger *slog.Logger) brokerConfig {
	for _, key := range props.Keys() {
		value, _ := props.Get(key)
		logger.Debug("broker property", "key", key, "value", value)
	}
	cfg := brokerConfig{
		LogDirs:     props.GetString("log.dirs", defaultLogDirs),
		KafkaAddr:   envOrDefault("MINIKAF_BROKER_ADDR", defaultKafkaAddr),
		MetricsAddr: props.GetString("metrics.listener", defaultMetricsAddr),
		CacheBytes:  parseEnvInt("MINIKAF_LOG_CACHE_BYTES", props.GetInt("log.cache.bytes", defaultCacheBytes)),
		TraceKafka:  parseEnvBool("MINIKAF_TRACE_KAFKA", false),
		Archive: archiveConfig{
			Bucket:       props.GetString("archive.s3.bucket", ""),
			Region:       props.GetString("archive.s3.region", defaultArchiveRegion),
			Endpoint:     props.GetString("archive.s3.endpoint", ""),
			PathStyle:    props.GetBool("archive.s3.path.style", true),
			Prefix:       props.GetString("archive.s3.prefix", defaultArchivePrefix),
			KMSKeyARN:    props.GetString("archive.s3.kms.arn", ""),
			Memory:       props.GetBool("archive.memory", false),
			Restore:      props.GetBool("archive.s3.restore", false),
			ReadBucket:   props.GetString("archive.s3.read.bucket", ""),
			ReadRegion:   props.GetString("archive.s3.read.region", ""),
			ReadEndpoint: props.GetString("archive.s3.read.endpoint", ""),
		},
	}
	// log.dirs may list several directories; only the first one is used.
	if first, _, found := strings.Cut(cfg.LogDirs, ","); found {
		logger.Warn("multiple log.dirs configured; using the first", "log_dirs", cfg.LogDirs)
		cfg.LogDirs = strings.TrimSpace(first)
	}
	if cfg.CacheBytes < 0 {
		cfg.CacheBytes = 0
	}
	return cfg
}

func logLevelFromEnv() slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("MINIKAF_LOG_LEVEL"))) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger() *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     logLevelFromEnv(),
		AddSource: true,
	})
	return slog.New(handler).With("component", "broker")
}

func envOrDefault(name, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(name)); val != "" {
		return val
	}
	return fallback
}

func parseEnvBool(name string, fallback bool) bool {
	if val := strings.TrimSpace(os.Getenv(name)); val != "" {
		switch strings.ToLower(val) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func parseEnvInt(name string, fallback int) int {
	if val := strings.TrimSpace(os.Getenv(name)); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}
