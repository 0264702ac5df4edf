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
	"sort"

	"github.com/novatechflow/minikaf/pkg/storage"
)

// dualS3Client archives to one bucket and restores from a read replica,
// falling back to the write bucket when the replica misses. Listings merge both
// buckets so a replica that lags behind does not hide logs.
type dualS3Client struct {
	write storage.S3Client
	read  storage.S3Client
}

func newDualS3Client(writeClient, readClient storage.S3Client) storage.S3Client {
	return &dualS3Client{
		write: writeClient,
		read:  readClient,
	}
}

func (d *dualS3Client) UploadLog(ctx context.Context, key string, body []byte) error {
	return d.write.UploadLog(ctx, key, body)
}

func (d *dualS3Client) DownloadLog(ctx context.Context, key string) ([]byte, error) {
	data, err := d.read.DownloadLog(ctx, key)
	if err == nil {
		return data, nil
	}
	return d.write.DownloadLog(ctx, key)
}

func (d *dualS3Client) ListLogs(ctx context.Context, prefix string) ([]storage.S3Object, error) {
	objects, err := d.write.ListLogs(ctx, prefix)
	replica, readErr := d.read.ListLogs(ctx, prefix)
	if err != nil {
		if readErr != nil {
			return nil, err
		}
		return replica, nil
	}
	if readErr != nil {
		return objects, nil
	}
	seen := make(map[string]struct{}, len(objects))
	for _, obj := range objects {
		seen[obj.Key] = struct{}{}
	}
	for _, obj := range replica {
		if _, ok := seen[obj.Key]; !ok {
			objects = append(objects, obj)
		}
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (d *dualS3Client) EnsureBucket(ctx context.Context) error {
	return d.write.EnsureBucket(ctx)
}
