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

package metadata

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sort"

	"github.com/google/uuid"
	"github.com/novatechflow/minikaf/pkg/protocol"
	"github.com/novatechflow/minikaf/pkg/storage"
)

// ClusterMetadataTopic is the internal topic whose partition 0 log holds the
// cluster metadata records.
const ClusterMetadataTopic = "__cluster_metadata"

// LogPath returns the cluster metadata log path under root.
func LogPath(root string) string {
	return storage.PartitionLogPath(root, ClusterMetadataTopic, 0)
}

// Directory is an immutable index of topics, partitions and feature levels
// replayed from the cluster metadata log. It is safe for concurrent reads.
type Directory struct {
	topicsByID   map[uuid.UUID]storage.TopicRecord
	topicsByName map[string]storage.TopicRecord
	partitions   map[uuid.UUID][]storage.PartitionRecord
	features     []storage.FeatureLevelRecord
}

// NewDirectory indexes the given records. Partitions whose topic id is not
// among topics are dropped. Later records win on duplicate names or ids.
func NewDirectory(topics []storage.TopicRecord, partitions []storage.PartitionRecord, features []storage.FeatureLevelRecord, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Directory{
		topicsByID:   make(map[uuid.UUID]storage.TopicRecord, len(topics)),
		topicsByName: make(map[string]storage.TopicRecord, len(topics)),
		partitions:   make(map[uuid.UUID][]storage.PartitionRecord),
		features:     append([]storage.FeatureLevelRecord(nil), features...),
	}
	for _, t := range topics {
		if prev, ok := d.topicsByName[t.Name]; ok && prev.ID != t.ID {
			logger.Warn("topic re-registered", "topic", t.Name, "previous_id", prev.ID, "id", t.ID)
			delete(d.topicsByID, prev.ID)
		}
		if prev, ok := d.topicsByID[t.ID]; ok && prev.Name != t.Name {
			logger.Warn("topic id reused", "id", t.ID, "previous_topic", prev.Name, "topic", t.Name)
			delete(d.topicsByName, prev.Name)
		}
		d.topicsByID[t.ID] = t
		d.topicsByName[t.Name] = t
	}
	for _, p := range partitions {
		if _, ok := d.topicsByID[p.TopicID]; !ok {
			logger.Warn("dropping partition of unknown topic", "topic_id", p.TopicID, "partition", p.PartitionID)
			continue
		}
		d.partitions[p.TopicID] = append(d.partitions[p.TopicID], p)
	}
	return d
}

// Load replays {root}/__cluster_metadata-0/00000000000000000000.log. A
// missing or unreadable log yields an empty directory.
func Load(root string, logger *slog.Logger) *Directory {
	return LoadFile(LogPath(root), logger)
}

// LoadFile replays the metadata log at path.
func LoadFile(path string, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Info("cluster metadata log not found", "path", path)
		} else {
			logger.Error("read cluster metadata log", "path", path, "error", err)
		}
		return NewDirectory(nil, nil, nil, logger)
	}
	topics, partitions, features := replay(data, logger)
	d := NewDirectory(topics, partitions, features, logger)
	logger.Info("cluster metadata loaded", "path", path, "topics", len(d.topicsByID), "features", len(d.features))
	return d
}

// replay decodes batches until the data ends, a batch fails to decode, or a
// batch carries a null record list.
func replay(data []byte, logger *slog.Logger) ([]storage.TopicRecord, []storage.PartitionRecord, []storage.FeatureLevelRecord) {
	var (
		topics     []storage.TopicRecord
		partitions []storage.PartitionRecord
		features   []storage.FeatureLevelRecord
	)
	r := protocol.NewReader(data)
	for r.Remaining() > 0 {
		start := r.Offset()
		batch, err := storage.DecodeRecordBatch(r)
		if err != nil {
			logger.Warn("stopping metadata replay", "byte_offset", start, "error", err)
			break
		}
		if batch.Records == nil {
			break
		}
		for _, rec := range batch.Records {
			switch v := rec.Value.(type) {
			case storage.TopicRecord:
				topics = append(topics, v)
			case storage.PartitionRecord:
				partitions = append(partitions, v)
			case storage.FeatureLevelRecord:
				features = append(features, v)
			}
		}
	}
	return topics, partitions, features
}

// TopicByID looks a topic up by id.
func (d *Directory) TopicByID(id uuid.UUID) (storage.TopicRecord, bool) {
	t, ok := d.topicsByID[id]
	return t, ok
}

// TopicByName looks a topic up by name.
func (d *Directory) TopicByName(name string) (storage.TopicRecord, bool) {
	t, ok := d.topicsByName[name]
	return t, ok
}

// Partitions returns the partitions of a topic in log order. The result must
// not be modified.
func (d *Directory) Partitions(topicID uuid.UUID) []storage.PartitionRecord {
	return d.partitions[topicID]
}

// Partition finds one partition of a topic.
func (d *Directory) Partition(topicID uuid.UUID, partition int32) (storage.PartitionRecord, bool) {
	for _, p := range d.partitions[topicID] {
		if p.PartitionID == partition {
			return p, true
		}
	}
	return storage.PartitionRecord{}, false
}

// Topics returns every topic sorted by name.
func (d *Directory) Topics() []storage.TopicRecord {
	out := make([]storage.TopicRecord, 0, len(d.topicsByName))
	for _, t := range d.topicsByName {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FeatureLevels returns the feature level records in log order.
func (d *Directory) FeatureLevels() []storage.FeatureLevelRecord {
	return append([]storage.FeatureLevelRecord(nil), d.features...)
}
