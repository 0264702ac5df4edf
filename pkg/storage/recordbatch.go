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
	"errors"
	"fmt"

	"github.com/novatechflow/minikaf/pkg/protocol"
)

// ErrUnknownRecordType is returned for a record value type other than topic,
// partition or feature level.
var ErrUnknownRecordType = errors.New("unknown record type")

// DecodeRecordBatch reads one batch from r.
func DecodeRecordBatch(r *protocol.Reader) (RecordBatch, error) {
	var b RecordBatch
	var err error
	if b.BaseOffset, err = r.Int64(); err != nil {
		return b, fmt.Errorf("read base offset: %w", err)
	}
	if b.PartitionLeaderEpoch, err = r.Int32(); err != nil {
		return b, fmt.Errorf("read partition leader epoch: %w", err)
	}
	if b.Magic, err = r.Int8(); err != nil {
		return b, fmt.Errorf("read magic: %w", err)
	}
	if b.CRC, err = r.Int32(); err != nil {
		return b, fmt.Errorf("read crc: %w", err)
	}
	if b.Attributes, err = r.Int16(); err != nil {
		return b, fmt.Errorf("read attributes: %w", err)
	}
	if b.LastOffsetDelta, err = r.Int32(); err != nil {
		return b, fmt.Errorf("read last offset delta: %w", err)
	}
	if b.BaseTimestamp, err = r.Int64(); err != nil {
		return b, fmt.Errorf("read base timestamp: %w", err)
	}
	if b.MaxTimestamp, err = r.Int64(); err != nil {
		return b, fmt.Errorf("read max timestamp: %w", err)
	}
	if b.ProducerID, err = r.Int64(); err != nil {
		return b, fmt.Errorf("read producer id: %w", err)
	}
	if b.ProducerEpoch, err = r.Int16(); err != nil {
		return b, fmt.Errorf("read producer epoch: %w", err)
	}
	if b.BaseSequence, err = r.Int32(); err != nil {
		return b, fmt.Errorf("read base sequence: %w", err)
	}
	if b.Records, err = protocol.ReadArray(r, decodeRecord); err != nil {
		return b, fmt.Errorf("read records of batch %d: %w", b.BaseOffset, err)
	}
	return b, nil
}

// DecodeRecordBatches decodes back-to-back batches until data is exhausted.
// On error the batches decoded so far are returned with it.
func DecodeRecordBatches(data []byte) ([]RecordBatch, error) {
	r := protocol.NewReader(data)
	var batches []RecordBatch
	for r.Remaining() > 0 {
		start := r.Offset()
		batch, err := DecodeRecordBatch(r)
		if err != nil {
			return batches, fmt.Errorf("decode batch at byte %d: %w", start, err)
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

func decodeRecord(r *protocol.Reader) (Record, error) {
	var rec Record
	if _, err := r.UVarint(); err != nil {
		return rec, fmt.Errorf("read record length: %w", err)
	}
	var err error
	if rec.Attributes, err = r.Int8(); err != nil {
		return rec, fmt.Errorf("read record attributes: %w", err)
	}
	if rec.TimestampDelta, err = r.UVarint(); err != nil {
		return rec, fmt.Errorf("read timestamp delta: %w", err)
	}
	if rec.OffsetDelta, err = r.UVarint(); err != nil {
		return rec, fmt.Errorf("read offset delta: %w", err)
	}
	if rec.Key, err = r.CompactNullableString(); err != nil {
		return rec, fmt.Errorf("read record key: %w", err)
	}
	if _, err = r.UVarint(); err != nil {
		return rec, fmt.Errorf("read value length: %w", err)
	}
	if rec.FrameVersion, err = r.Int8(); err != nil {
		return rec, fmt.Errorf("read frame version: %w", err)
	}
	recordType, err := r.Int8()
	if err != nil {
		return rec, fmt.Errorf("read record type: %w", err)
	}
	if rec.Version, err = r.Int8(); err != nil {
		return rec, fmt.Errorf("read record version: %w", err)
	}
	switch recordType {
	case RecordTypeTopic:
		rec.Value, err = decodeTopicRecord(r)
	case RecordTypePartition:
		rec.Value, err = decodePartitionRecord(r)
	case RecordTypeFeatureLevel:
		rec.Value, err = decodeFeatureLevelRecord(r)
	default:
		return rec, fmt.Errorf("%w: %d", ErrUnknownRecordType, recordType)
	}
	if err != nil {
		return rec, err
	}
	if rec.Headers, err = protocol.ReadCompactDict(r, protocol.CompactStringElem, protocol.CompactBytesElem); err != nil {
		return rec, fmt.Errorf("read record headers: %w", err)
	}
	return rec, nil
}

func decodeTopicRecord(r *protocol.Reader) (TopicRecord, error) {
	name, err := r.CompactString()
	if err != nil {
		return TopicRecord{}, fmt.Errorf("read topic name: %w", err)
	}
	id, err := r.UUID()
	if err != nil {
		return TopicRecord{}, fmt.Errorf("read topic id: %w", err)
	}
	if err := r.SkipTaggedFields(); err != nil {
		return TopicRecord{}, fmt.Errorf("read topic record tags: %w", err)
	}
	return TopicRecord{Name: name, ID: id}, nil
}

func decodePartitionRecord(r *protocol.Reader) (PartitionRecord, error) {
	var p PartitionRecord
	var err error
	if p.PartitionID, err = r.Int32(); err != nil {
		return p, fmt.Errorf("read partition id: %w", err)
	}
	if p.TopicID, err = r.UUID(); err != nil {
		return p, fmt.Errorf("read partition topic id: %w", err)
	}
	if p.Replicas, err = protocol.ReadCompactArray(r, protocol.Int32Elem); err != nil {
		return p, fmt.Errorf("read replicas: %w", err)
	}
	if p.ISR, err = protocol.ReadCompactArray(r, protocol.Int32Elem); err != nil {
		return p, fmt.Errorf("read isr: %w", err)
	}
	if p.RemovingReplicas, err = protocol.ReadCompactArray(r, protocol.Int32Elem); err != nil {
		return p, fmt.Errorf("read removing replicas: %w", err)
	}
	if p.AddingReplicas, err = protocol.ReadCompactArray(r, protocol.Int32Elem); err != nil {
		return p, fmt.Errorf("read adding replicas: %w", err)
	}
	if p.Leader, err = r.Int32(); err != nil {
		return p, fmt.Errorf("read leader: %w", err)
	}
	if p.LeaderEpoch, err = r.Int32(); err != nil {
		return p, fmt.Errorf("read leader epoch: %w", err)
	}
	if p.PartitionEpoch, err = r.Int32(); err != nil {
		return p, fmt.Errorf("read partition epoch: %w", err)
	}
	if p.Directories, err = protocol.ReadCompactArray(r, protocol.UUIDElem); err != nil {
		return p, fmt.Errorf("read directories: %w", err)
	}
	if err := r.SkipTaggedFields(); err != nil {
		return p, fmt.Errorf("read partition record tags: %w", err)
	}
	return p, nil
}

func decodeFeatureLevelRecord(r *protocol.Reader) (FeatureLevelRecord, error) {
	name, err := r.CompactString()
	if err != nil {
		return FeatureLevelRecord{}, fmt.Errorf("read feature name: %w", err)
	}
	level, err := r.Int16()
	if err != nil {
		return FeatureLevelRecord{}, fmt.Errorf("read feature level: %w", err)
	}
	if err := r.SkipTaggedFields(); err != nil {
		return FeatureLevelRecord{}, fmt.Errorf("read feature level tags: %w", err)
	}
	return FeatureLevelRecord{Name: name, Level: level}, nil
}

// EncodeRecordBatch serializes b in the layout DecodeRecordBatch reads.
func EncodeRecordBatch(b RecordBatch) []byte {
	w := protocol.NewWriter(64)
	AppendRecordBatch(w, b)
	return w.Bytes()
}

// AppendRecordBatch writes b to w.
func AppendRecordBatch(w *protocol.Writer, b RecordBatch) {
	w.Int64(b.BaseOffset)
	w.Int32(b.PartitionLeaderEpoch)
	w.Int8(b.Magic)
	w.Int32(b.CRC)
	w.Int16(b.Attributes)
	w.Int32(b.LastOffsetDelta)
	w.Int64(b.BaseTimestamp)
	w.Int64(b.MaxTimestamp)
	w.Int64(b.ProducerID)
	w.Int16(b.ProducerEpoch)
	w.Int32(b.BaseSequence)
	protocol.WriteArray(w, b.Records, encodeRecord)
}

func encodeRecord(w *protocol.Writer, rec Record) {
	body := protocol.NewWriter(64)
	body.Int8(rec.Attributes)
	body.UVarint(rec.TimestampDelta)
	body.UVarint(rec.OffsetDelta)
	body.CompactNullableString(rec.Key)

	value := protocol.NewWriter(48)
	value.Int8(rec.FrameVersion)
	value.Int8(rec.Value.RecordType())
	value.Int8(rec.Version)
	switch v := rec.Value.(type) {
	case TopicRecord:
		value.CompactString(v.Name)
		value.UUID(v.ID)
	case PartitionRecord:
		value.Int32(v.PartitionID)
		value.UUID(v.TopicID)
		protocol.WriteCompactArray(value, v.Replicas, protocol.Int32Writer)
		protocol.WriteCompactArray(value, v.ISR, protocol.Int32Writer)
		protocol.WriteCompactArray(value, v.RemovingReplicas, protocol.Int32Writer)
		protocol.WriteCompactArray(value, v.AddingReplicas, protocol.Int32Writer)
		value.Int32(v.Leader)
		value.Int32(v.LeaderEpoch)
		value.Int32(v.PartitionEpoch)
		protocol.WriteCompactArray(value, v.Directories, protocol.UUIDWriter)
	case FeatureLevelRecord:
		value.CompactString(v.Name)
		value.Int16(v.Level)
	}
	value.WriteTaggedFields()

	body.UVarint(uint64(value.Len()))
	body.Write(value.Bytes())
	protocol.WriteCompactDict(body, rec.Headers, protocol.CompactStringWriter, protocol.CompactBytesWriter)

	w.UVarint(uint64(body.Len()))
	w.Write(body.Bytes())
}
