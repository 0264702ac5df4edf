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

import "github.com/google/uuid"

// Record value types found in cluster metadata batches.
const (
	RecordTypeTopic        int8 = 2
	RecordTypePartition    int8 = 3
	RecordTypeFeatureLevel int8 = 12
)

// RecordBatch is one batch of a partition log: a fixed header followed by an
// int32-counted list of records.
type RecordBatch struct {
	BaseOffset           int64
	PartitionLeaderEpoch int32
	Magic                int8
	CRC                  int32
	Attributes           int16
	LastOffsetDelta      int32
	BaseTimestamp        int64
	MaxTimestamp         int64
	ProducerID           int64
	ProducerEpoch        int16
	BaseSequence         int32

	// Records is nil when the batch carries a null record list.
	Records []Record
}

// EndOffset is the offset of the last record in the batch.
func (b RecordBatch) EndOffset() int64 {
	return b.BaseOffset + int64(b.LastOffsetDelta)
}

// Record is one entry of a batch.
type Record struct {
	Attributes     int8
	TimestampDelta uint64
	OffsetDelta    uint64
	Key            *string
	FrameVersion   int8
	Version        int8
	Value          RecordValue
	Headers        map[string][]byte
}

// RecordValue is implemented by TopicRecord, PartitionRecord and
// FeatureLevelRecord.
type RecordValue interface {
	RecordType() int8
	isRecordValue()
}

// TopicRecord registers a topic name under a 128-bit id.
type TopicRecord struct {
	Name string
	ID   uuid.UUID
}

// PartitionRecord describes one partition of a topic.
type PartitionRecord struct {
	PartitionID      int32
	TopicID          uuid.UUID
	Replicas         []int32
	ISR              []int32
	RemovingReplicas []int32
	AddingReplicas   []int32
	Leader           int32
	LeaderEpoch      int32
	PartitionEpoch   int32
	Directories      []uuid.UUID
}

// FeatureLevelRecord pins a named feature to a level.
type FeatureLevelRecord struct {
	Name  string
	Level int16
}

func (TopicRecord) RecordType() int8 { return RecordTypeTopic }
func (PartitionRecord) RecordType() int8 { return RecordTypePartition }
func (FeatureLevelRecord) RecordType() int8 { return RecordTypeFeatureLevel }

func (TopicRecord) isRecordValue() {}
func (PartitionRecord) isRecordValue() {}
func (FeatureLevelRecord) isRecordValue() {}

// AppendResult reports where an appended batch landed.
type AppendResult struct {
	BaseOffset     int64
	LogStartOffset int64
}
