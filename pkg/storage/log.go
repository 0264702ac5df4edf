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
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/novatechflow/minikaf/pkg/cache"
	"github.com/novatechflow/minikaf/pkg/protocol"
)

// LogFileName is the single segment file kept per partition directory.
const LogFileName = "00000000000000000000.log"

// offsetPrefixLen is the placeholder base offset at the front of a produced
// batch, replaced by the assigned offset on append.
const offsetPrefixLen = 8

// ErrShortPayload is returned when a produced batch cannot hold a base offset.
var ErrShortPayload = errors.New("record batch shorter than its base offset")

// PartitionDir returns {root}/{topic}-{partition}.
func PartitionDir(root, topic string, partition int32) string {
	return filepath.Join(root, fmt.Sprintf("%s-%d", topic, partition))
}

// PartitionLogPath returns the log file path for topic/partition.
func PartitionLogPath(root, topic string, partition int32) string {
	return filepath.Join(PartitionDir(root, topic, partition), LogFileName)
}

// AppendHook is invoked after a successful append, outside the partition lock.
type AppendHook func(ctx context.Context, topic string, partition int32, result AppendResult)

// LogStoreConfig configures a LogStore.
type LogStoreConfig struct {
	Root     string
	Cache    *cache.LogCache
	OnAppend AppendHook
	Logger   *slog.Logger
}

// LogStore reads and appends partition log files under a root directory.
// Appends to one partition are serialized; reads share a lock with each other.
type LogStore struct {
	root     string
	cache    *cache.LogCache
	onAppend AppendHook
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[partitionKey]*sync.RWMutex
}

type partitionKey struct {
	topic     string
	partition int32
}

// NewLogStore constructs a store rooted at cfg.Root.
func NewLogStore(cfg LogStoreConfig) *LogStore {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LogStore{
		root:     cfg.Root,
		cache:    cfg.Cache,
		onAppend: cfg.OnAppend,
		logger:   logger,
		locks:    make(map[partitionKey]*sync.RWMutex),
	}
}

// Root returns the log directory.
func (s *LogStore) Root() string {
	return s.root
}

func (s *LogStore) partitionLock(topic string, partition int32) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := partitionKey{topic: topic, partition: partition}
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.RWMutex{}
		s.locks[key] = lock
	}
	return lock
}

// readLock returns the partition lock for a read. Partitions with neither a
// lock nor a log file read as absent without registering a lock, so reads of
// arbitrary partition indexes do not grow the lock table.
func (s *LogStore) readLock(topic string, partition int32) (*sync.RWMutex, bool) {
	s.mu.Lock()
	lock, ok := s.locks[partitionKey{topic: topic, partition: partition}]
	s.mu.Unlock()
	if ok {
		return lock, true
	}
	if _, err := os.Stat(PartitionLogPath(s.root, topic, partition)); errors.Is(err, fs.ErrNotExist) {
		return nil, false
	}
	return s.partitionLock(topic, partition), true
}

// ReadAll decodes every batch in the partition log. A missing or unreadable
// file yields no batches; a decode failure keeps the batches read before it.
func (s *LogStore) ReadAll(topic string, partition int32) []RecordBatch {
	lock, ok := s.readLock(topic, partition)
	if !ok {
		return nil
	}
	lock.RLock()
	defer lock.RUnlock()
	return s.readAllLocked(topic, partition)
}

func (s *LogStore) readAllLocked(topic string, partition int32) []RecordBatch {
	data, ok := s.readRawLocked(topic, partition)
	if !ok {
		return nil
	}
	batches, err := DecodeRecordBatches(data)
	if err != nil {
		s.logger.Warn("partial partition log", "topic", topic, "partition", partition, "batches", len(batches), "error", err)
	}
	return batches
}

// ReadRaw returns the raw partition log. ok is false when the file does not
// exist or cannot be read. The returned slice must not be modified.
func (s *LogStore) ReadRaw(topic string, partition int32) ([]byte, bool) {
	lock, ok := s.readLock(topic, partition)
	if !ok {
		return nil, false
	}
	lock.RLock()
	defer lock.RUnlock()
	return s.readRawLocked(topic, partition)
}

func (s *LogStore) readRawLocked(topic string, partition int32) ([]byte, bool) {
	if s.cache != nil {
		if data, ok := s.cache.Get(topic, partition); ok {
			return data, true
		}
	}
	data, err := os.ReadFile(PartitionLogPath(s.root, topic, partition))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Error("read partition log", "topic", topic, "partition", partition, "error", err)
		}
		return nil, false
	}
	if s.cache != nil {
		s.cache.Set(topic, partition, data)
	}
	return data, true
}

// Append assigns the next offset to payload, overwriting its first eight
// bytes, and appends it to the partition log, creating the file if needed.
// The log is never truncated, so LogStartOffset is always 0.
func (s *LogStore) Append(ctx context.Context, topic string, partition int32, payload []byte) (AppendResult, error) {
	if len(payload) < offsetPrefixLen {
		return AppendResult{}, fmt.Errorf("%w: %d bytes", ErrShortPayload, len(payload))
	}
	lock := s.partitionLock(topic, partition)
	lock.Lock()
	result, err := s.appendLocked(topic, partition, payload)
	lock.Unlock()
	if err != nil {
		return AppendResult{}, err
	}
	if s.onAppend != nil {
		s.onAppend(ctx, topic, partition, result)
	}
	return result, nil
}

func (s *LogStore) appendLocked(topic string, partition int32, payload []byte) (AppendResult, error) {
	next := NextOffset(s.readAllLocked(topic, partition))

	w := protocol.NewWriter(len(payload))
	w.Int64(next)
	w.Write(payload[offsetPrefixLen:])

	dir := PartitionDir(s.root, topic, partition)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return AppendResult{}, fmt.Errorf("create partition dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, LogFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return AppendResult{}, fmt.Errorf("open partition log: %w", err)
	}
	_, writeErr := f.Write(w.Bytes())
	closeErr := f.Close()
	if s.cache != nil {
		s.cache.Invalidate(topic, partition)
	}
	if writeErr != nil {
		return AppendResult{}, fmt.Errorf("append partition log: %w", writeErr)
	}
	if closeErr != nil {
		return AppendResult{}, fmt.Errorf("close partition log: %w", closeErr)
	}
	s.logger.Debug("appended batch", "topic", topic, "partition", partition, "offset", next, "bytes", len(payload))
	return AppendResult{BaseOffset: next, LogStartOffset: 0}, nil
}

// NextOffset is one past the highest end offset among batches, or 0 when
// there are none.
func NextOffset(batches []RecordBatch) int64 {
	if len(batches) == 0 {
		return 0
	}
	end := batches[0].EndOffset()
	for _, b := range batches[1:] {
		if e := b.EndOffset(); e > end {
			end = e
		}
	}
	return end + 1
}

// RestoreLog writes data as the partition log when no local log exists yet.
// It reports whether the file was written.
func (s *LogStore) RestoreLog(topic string, partition int32, data []byte) (bool, error) {
	lock := s.partitionLock(topic, partition)
	lock.Lock()
	defer lock.Unlock()

	path := PartitionLogPath(s.root, topic, partition)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("stat partition log: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("create partition dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write partition log: %w", err)
	}
	if s.cache != nil {
		s.cache.Invalidate(topic, partition)
	}
	return true, nil
}
