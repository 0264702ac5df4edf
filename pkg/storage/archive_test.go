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
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestArchiverUploadsAfterAppend(t *testing.T) {
	client := NewMemoryS3Client()
	var archiver *Archiver
	store := NewLogStore(LogStoreConfig{
		Root: t.TempDir(),
		OnAppend: func(ctx context.Context, topic string, partition int32, result AppendResult) {
			archiver.HandleAppend(ctx, topic, partition, result)
		},
	})
	var ops []string
	archiver = NewArchiver(ArchiverConfig{
		Client: client,
		Store:  store,
		Prefix: "/minikaf/",
		OnS3Op: func(op string, d time.Duration, err error) {
			ops = append(ops, op)
		},
	})

	if _, err := store.Append(context.Background(), "orders", 0, producedBatch(0)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	key := archiver.ObjectKey("orders", 0)
	if key != "minikaf/orders-0/00000000000000000000.log" {
		t.Fatalf("unexpected object key %q", key)
	}
	archived, err := client.DownloadLog(context.Background(), key)
	if err != nil {
		t.Fatalf("DownloadLog: %v", err)
	}
	local, _ := store.ReadRaw("orders", 0)
	if !bytes.Equal(archived, local) {
		t.Fatalf("archived log differs from local log")
	}
	if len(ops) != 1 || ops[0] != "upload_log" {
		t.Fatalf("unexpected ops %v", ops)
	}
}

// heldUploadClient holds the first upload until the second one has stored its
// object, or until holdFor passes.
type heldUploadClient struct {
	*MemoryS3Client
	holdFor time.Duration

	mu       sync.Mutex
	uploads  int
	first    chan struct{}
	secondOK chan struct{}
}

func newHeldUploadClient(holdFor time.Duration) *heldUploadClient {
	return &heldUploadClient{
		MemoryS3Client: NewMemoryS3Client(),
		holdFor:        holdFor,
		first:          make(chan struct{}),
		secondOK:       make(chan struct{}),
	}
}

func (c *heldUploadClient) UploadLog(ctx context.Context, key string, body []byte) error {
	c.mu.Lock()
	c.uploads++
	n := c.uploads
	c.mu.Unlock()
	switch n {
	case 1:
		close(c.first)
		select {
		case <-c.secondOK:
		case <-time.After(c.holdFor):
		}
	case 2:
		err := c.MemoryS3Client.UploadLog(ctx, key, body)
		close(c.secondOK)
		return err
	}
	return c.MemoryS3Client.UploadLog(ctx, key, body)
}

func TestArchiverKeepsNewestLogUnderConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	client := newHeldUploadClient(200 * time.Millisecond)
	var archiver *Archiver
	store := NewLogStore(LogStoreConfig{
		Root: t.TempDir(),
		OnAppend: func(ctx context.Context, topic string, partition int32, result AppendResult) {
			archiver.HandleAppend(ctx, topic, partition, result)
		},
	})
	archiver = NewArchiver(ArchiverConfig{Client: client, Store: store, Prefix: "minikaf"})

	errs := make(chan error, 2)
	go func() {
		_, err := store.Append(ctx, "orders", 0, producedBatch(0))
		errs <- err
	}()
	select {
	case <-client.first:
	case <-time.After(5 * time.Second):
		t.Fatal("first upload never started")
	}
	go func() {
		_, err := store.Append(ctx, "orders", 0, producedBatch(0))
		errs <- err
	}()
	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			if err != nil {
				t.Fatalf("Append: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("append did not return")
		}
	}

	local, _ := store.ReadRaw("orders", 0)
	archived, err := client.DownloadLog(ctx, archiver.ObjectKey("orders", 0))
	if err != nil {
		t.Fatalf("DownloadLog: %v", err)
	}
	if !bytes.Equal(archived, local) {
		t.Fatalf("archive is stale: local %d bytes, archived %d bytes", len(local), len(archived))
	}
	if batches, _ := DecodeRecordBatches(archived); len(batches) != 2 {
		t.Fatalf("expected 2 archived batches, got %d", len(batches))
	}
}

func TestArchiverSkipsMissingLog(t *testing.T) {
	client := NewMemoryS3Client()
	archiver := NewArchiver(ArchiverConfig{Client: client, Store: NewLogStore(LogStoreConfig{Root: t.TempDir()})})
	if err := archiver.Archive(context.Background(), "orders", 0); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if _, err := client.DownloadLog(context.Background(), archiver.ObjectKey("orders", 0)); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected nothing archived, got %v", err)
	}
}

func TestArchiverRestore(t *testing.T) {
	ctx := context.Background()
	client := NewMemoryS3Client()
	source := NewLogStore(LogStoreConfig{Root: t.TempDir()})
	if _, err := source.Append(ctx, "my-topic", 3, producedBatch(0)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := NewArchiver(ArchiverConfig{Client: client, Store: source, Prefix: "minikaf"}).Archive(ctx, "my-topic", 3); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	_ = client.UploadLog(ctx, "minikaf/not-a-log.txt", []byte("x"))
	_ = client.UploadLog(ctx, "other/orders-0/00000000000000000000.log", []byte("x"))

	target := NewLogStore(LogStoreConfig{Root: t.TempDir()})
	archiver := NewArchiver(ArchiverConfig{Client: client, Store: target, Prefix: "minikaf"})
	restored, err := archiver.Restore(ctx)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored != 1 {
		t.Fatalf("expected 1 restored log got %d", restored)
	}
	want, _ := source.ReadRaw("my-topic", 3)
	got, ok := target.ReadRaw("my-topic", 3)
	if !ok || !bytes.Equal(got, want) {
		t.Fatalf("restored log mismatch")
	}

	restored, err = archiver.Restore(ctx)
	if err != nil || restored != 0 {
		t.Fatalf("second restore: restored=%d err=%v", restored, err)
	}
}

func TestArchiverParseObjectKey(t *testing.T) {
	archiver := NewArchiver(ArchiverConfig{Prefix: "minikaf"})
	topic, partition, ok := archiver.parseObjectKey("minikaf/my-topic-12/00000000000000000000.log")
	if !ok || topic != "my-topic" || partition != 12 {
		t.Fatalf("unexpected parse %q %d %v", topic, partition, ok)
	}
	for _, key := range []string{
		"minikaf/orders/00000000000000000000.log",
		"minikaf/orders-x/00000000000000000000.log",
		"minikaf/a/b-0/00000000000000000000.log",
		"minikaf/orders-0/other.log",
	} {
		if _, _, ok := archiver.parseObjectKey(key); ok {
			t.Fatalf("expected %q to be rejected", key)
		}
	}
}
