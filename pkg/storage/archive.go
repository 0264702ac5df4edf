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

package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"
)

const defaultArchiveTimeout = 10 * time.Second

// ArchiverConfig configures an Archiver.
type ArchiverConfig struct {
	Client  S3Client
	Store   *LogStore
	Prefix  string
	Timeout time.Duration
	Logger  *slog.Logger

	// OnS3Op observes every object-store call.
	OnS3Op func(op string, d time.Duration, err error)
}

// Archiver copies partition logs to object storage after each append and can
// restore missing local logs from it.
type Archiver struct {
	client  S3Client
	store   *LogStore
	prefix  string
	timeout time.Duration
	logger  *slog.Logger
	onS3Op  func(string, time.Duration, error)

	mu    sync.Mutex
	locks map[partitionKey]*sync.Mutex
}

// NewArchiver constructs an Archiver.
func NewArchiver(cfg ArchiverConfig) *Archiver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultArchiveTimeout
	}
	return &Archiver{
		client:  cfg.Client,
		store:   cfg.Store,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		timeout: timeout,
		logger:  logger,
		onS3Op:  cfg.OnS3Op,
		locks:   make(map[partitionKey]*sync.Mutex),
	}
}

// ObjectKey returns {prefix}/{topic}-{partition}/00000000000000000000.log.
func (a *Archiver) ObjectKey(topic string, partition int32) string {
	return path.Join(a.prefix, fmt.Sprintf("%s-%d", topic, partition), LogFileName)
}

// Archive uploads the current partition log. A partition without a local log
// is skipped. Uploads of one partition are serialized and each reads the log
// only once it holds the partition, so the last upload carries the newest log.
func (a *Archiver) Archive(ctx context.Context, topic string, partition int32) error {
	lock := a.partitionLock(topic, partition)
	lock.Lock()
	defer lock.Unlock()

	data, ok := a.store.ReadRaw(topic, partition)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	start := time.Now()
	err := a.client.UploadLog(ctx, a.ObjectKey(topic, partition), data)
	a.observe("upload_log", start, err)
	if err != nil {
		return fmt.Errorf("archive %s-%d: %w", topic, partition, err)
	}
	return nil
}

func (a *Archiver) partitionLock(topic string, partition int32) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := partitionKey{topic: topic, partition: partition}
	lock, ok := a.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		a.locks[key] = lock
	}
	return lock
}

// HandleAppend is an AppendHook that archives the appended partition.
func (a *Archiver) HandleAppend(ctx context.Context, topic string, partition int32, result AppendResult) {
	if err := a.Archive(ctx, topic, partition); err != nil {
		a.logger.Warn("archive partition log failed", "topic", topic, "partition", partition, "offset", result.BaseOffset, "error", err)
	}
}

// Restore downloads every archived partition log that has no local copy and
// returns how many were written.
func (a *Archiver) Restore(ctx context.Context) (int, error) {
	start := time.Now()
	objects, err := a.client.ListLogs(ctx, a.listPrefix())
	a.observe("list_logs", start, err)
	if err != nil {
		return 0, err
	}
	restored := 0
	for _, obj := range objects {
		topic, partition, ok := a.parseObjectKey(obj.Key)
		if !ok {
			continue
		}
		start := time.Now()
		data, err := a.client.DownloadLog(ctx, obj.Key)
		a.observe("download_log", start, err)
		if err != nil {
			return restored, err
		}
		wrote, err := a.store.RestoreLog(topic, partition, data)
		if err != nil {
			return restored, err
		}
		if wrote {
			restored++
			a.logger.Info("restored partition log", "topic", topic, "partition", partition, "bytes", len(data))
		}
	}
	return restored, nil
}

func (a *Archiver) listPrefix() string {
	if a.prefix == "" {
		return ""
	}
	return a.prefix + "/"
}

func (a *Archiver) parseObjectKey(key string) (string, int32, bool) {
	rest := strings.TrimPrefix(key, a.listPrefix())
	dir, file := path.Split(rest)
	if file != LogFileName {
		return "", 0, false
	}
	dir = strings.TrimSuffix(dir, "/")
	if strings.Contains(dir, "/") {
		return "", 0, false
	}
	idx := strings.LastIndexByte(dir, '-')
	if idx <= 0 {
		return "", 0, false
	}
	partition, err := strconv.ParseInt(dir[idx+1:], 10, 32)
	if err != nil || partition < 0 {
		return "", 0, false
	}
	return dir[:idx], int32(partition), true
}

func (a *Archiver) observe(op string, start time.Time, err error) {
	if a.onS3Op != nil {
		a.onS3Op(op, time.Since(start), err)
	}
}
