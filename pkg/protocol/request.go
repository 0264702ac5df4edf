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

package protocol

import (
	"fmt"

	"github.com/google/uuid"
)

// RequestBody is implemented by the decoded request bodies of this package.
type RequestBody interface {
	APIKey() int16
	isRequestBody()
}

// Request pairs a decoded header with its body.
type Request struct {
	Header *RequestHeader
	Body   RequestBody
}

// ApiVersionsRequest is ApiVersions v4.
type ApiVersionsRequest struct {
	ClientSoftwareName    *string
	ClientSoftwareVersion *string
}

func (*ApiVersionsRequest) APIKey() int16 { return APIKeyApiVersion }
func (*ApiVersionsRequest) isRequestBody() {}

// DescribeTopicPartitionsRequest is DescribeTopicPartitions v0.
type DescribeTopicPartitionsRequest struct {
	Topics                 []DescribeTopicPartitionsRequestTopic
	ResponsePartitionLimit int32
	Cursor                 *DescribeTopicPartitionsCursor
}

type DescribeTopicPartitionsRequestTopic struct {
	Name string
}

// DescribeTopicPartitionsCursor marks where a paginated describe resumes.
type DescribeTopicPartitionsCursor struct {
	TopicName      string
	PartitionIndex int32
}

func (*DescribeTopicPartitionsRequest) APIKey() int16 { return APIKeyDescribeTopicPartitions }
func (*DescribeTopicPartitionsRequest) isRequestBody() {}

// FetchRequest is Fetch v16.
type FetchRequest struct {
	MaxWaitMs       int32
	MinBytes        int32
	MaxBytes        int32
	IsolationLevel  int8
	SessionID       int32
	SessionEpoch    int32
	Topics          []FetchTopicRequest
	ForgottenTopics []FetchForgottenTopic
	RackID          string
}

type FetchTopicRequest struct {
	TopicID    uuid.UUID
	Partitions []FetchPartitionRequest
}

type FetchPartitionRequest struct {
	Partition          int32
	CurrentLeaderEpoch int32
	FetchOffset        int64
	LastFetchedEpoch   int32
	LogStartOffset     int64
	PartitionMaxBytes  int32
}

type FetchForgottenTopic struct {
	TopicID    uuid.UUID
	Partitions []int32
}

func (*FetchRequest) APIKey() int16 { return APIKeyFetch }
func (*FetchRequest) isRequestBody() {}

// ProduceRequest is Produce v11.
type ProduceRequest struct {
	TransactionalID *string
	Acks            int16
	TimeoutMs       int32
	Topics          []ProduceTopic
}

type ProduceTopic struct {
	Name       string
	Partitions []ProducePartition
}

type ProducePartition struct {
	Partition int32
	Records   []byte
}

func (*ProduceRequest) APIKey() int16 { return APIKeyProduce }
func (*ProduceRequest) isRequestBody() {}

// DecodeApiVersionsRequest decodes an ApiVersions v4 body.
func DecodeApiVersionsRequest(r *Reader) (RequestBody, error) {
	name, err := r.CompactNullableString()
	if err != nil {
		return nil, fmt.Errorf("read client software name: %w", err)
	}
	version, err := r.CompactNullableString()
	if err != nil {
		return nil, fmt.Errorf("read client software version: %w", err)
	}
	if err := r.SkipTaggedFields(); err != nil {
		return nil, fmt.Errorf("read api versions tags: %w", err)
	}
	return &ApiVersionsRequest{ClientSoftwareName: name, ClientSoftwareVersion: version}, nil
}

// DecodeDescribeTopicPartitionsRequest decodes a DescribeTopicPartitions v0
// body. A cursor whose first byte is 0xff is null.
func DecodeDescribeTopicPartitionsRequest(r *Reader) (RequestBody, error) {
	topics, err := ReadCompactArray(r, func(r *Reader) (DescribeTopicPartitionsRequestTopic, error) {
		name, err := r.CompactString()
		if err != nil {
			return DescribeTopicPartitionsRequestTopic{}, fmt.Errorf("read topic name: %w", err)
		}
		if err := r.SkipTaggedFields(); err != nil {
			return DescribeTopicPartitionsRequestTopic{}, fmt.Errorf("read topic tags: %w", err)
		}
		return DescribeTopicPartitionsRequestTopic{Name: name}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("read describe topics: %w", err)
	}
	limit, err := r.Int32()
	if err != nil {
		return nil, fmt.Errorf("read response partition limit: %w", err)
	}
	cursor, err := readCursor(r)
	if err != nil {
		return nil, err
	}
	if err := r.SkipTaggedFields(); err != nil {
		return nil, fmt.Errorf("read describe tags: %w", err)
	}
	return &DescribeTopicPartitionsRequest{
		Topics:                 topics,
		ResponsePartitionLimit: limit,
		Cursor:                 cursor,
	}, nil
}

// nullStructMarker is the first byte of an absent nullable struct.
const nullStructMarker byte = 0xff

// readCursor decodes the nullable cursor struct. A leading 0xff means null;
// otherwise a presence byte precedes the fields.
func readCursor(r *Reader) (*DescribeTopicPartitionsCursor, error) {
	next, err := r.Peek()
	if err != nil {
		return nil, fmt.Errorf("read cursor: %w", err)
	}
	if _, err := r.Int8(); err != nil {
		return nil, fmt.Errorf("read cursor: %w", err)
	}
	if next == nullStructMarker {
		return nil, nil
	}
	name, err := r.CompactString()
	if err != nil {
		return nil, fmt.Errorf("read cursor topic: %w", err)
	}
	partition, err := r.Int32()
	if err != nil {
		return nil, fmt.Errorf("read cursor partition: %w", err)
	}
	if err := r.SkipTaggedFields(); err != nil {
		return nil, fmt.Errorf("read cursor tags: %w", err)
	}
	return &DescribeTopicPartitionsCursor{TopicName: name, PartitionIndex: partition}, nil
}

// DecodeFetchRequest decodes a Fetch v16 body.
func DecodeFetchRequest(r *Reader) (RequestBody, error) {
	req := &FetchRequest{}
	var err error
	if req.MaxWaitMs, err = r.Int32(); err != nil {
		return nil, fmt.Errorf("read fetch max wait: %w", err)
	}
	if req.MinBytes, err = r.Int32(); err != nil {
		return nil, fmt.Errorf("read fetch min bytes: %w", err)
	}
	if req.MaxBytes, err = r.Int32(); err != nil {
		return nil, fmt.Errorf("read fetch max bytes: %w", err)
	}
	if req.IsolationLevel, err = r.Int8(); err != nil {
		return nil, fmt.Errorf("read fetch isolation level: %w", err)
	}
	if req.SessionID, err = r.Int32(); err != nil {
		return nil, fmt.Errorf("read fetch session id: %w", err)
	}
	if req.SessionEpoch, err = r.Int32(); err != nil {
		return nil, fmt.Errorf("read fetch session epoch: %w", err)
	}
	if req.Topics, err = ReadCompactArray(r, readFetchTopic); err != nil {
		return nil, fmt.Errorf("read fetch topics: %w", err)
	}
	if req.ForgottenTopics, err = ReadCompactArray(r, readForgottenTopic); err != nil {
		return nil, fmt.Errorf("read forgotten topics: %w", err)
	}
	if req.RackID, err = r.CompactString(); err != nil {
		return nil, fmt.Errorf("read fetch rack id: %w", err)
	}
	if err := r.SkipTaggedFields(); err != nil {
		return nil, fmt.Errorf("read fetch tags: %w", err)
	}
	return req, nil
}

func readFetchTopic(r *Reader) (FetchTopicRequest, error) {
	id, err := r.UUID()
	if err != nil {
		return FetchTopicRequest{}, fmt.Errorf("read topic id: %w", err)
	}
	partitions, err := ReadCompactArray(r, readFetchPartition)
	if err != nil {
		return FetchTopicRequest{}, fmt.Errorf("read partitions: %w", err)
	}
	if err := r.SkipTaggedFields(); err != nil {
		return FetchTopicRequest{}, fmt.Errorf("read topic tags: %w", err)
	}
	return FetchTopicRequest{TopicID: id, Partitions: partitions}, nil
}

func readFetchPartition(r *Reader) (FetchPartitionRequest, error) {
	var p FetchPartitionRequest
	var err error
	if p.Partition, err = r.Int32(); err != nil {
		return p, fmt.Errorf("read partition: %w", err)
	}
	if p.CurrentLeaderEpoch, err = r.Int32(); err != nil {
		return p, fmt.Errorf("read current leader epoch: %w", err)
	}
	if p.FetchOffset, err = r.Int64(); err != nil {
		return p, fmt.Errorf("read fetch offset: %w", err)
	}
	if p.LastFetchedEpoch, err = r.Int32(); err != nil {
		return p, fmt.Errorf("read last fetched epoch: %w", err)
	}
	if p.LogStartOffset, err = r.Int64(); err != nil {
		return p, fmt.Errorf("read log start offset: %w", err)
	}
	if p.PartitionMaxBytes, err = r.Int32(); err != nil {
		return p, fmt.Errorf("read partition max bytes: %w", err)
	}
	if err := r.SkipTaggedFields(); err != nil {
		return p, fmt.Errorf("read partition tags: %w", err)
	}
	return p, nil
}

func readForgottenTopic(r *Reader) (FetchForgottenTopic, error) {
	id, err := r.UUID()
	if err != nil {
		return FetchForgottenTopic{}, fmt.Errorf("read topic id: %w", err)
	}
	partitions, err := ReadCompactArray(r, Int32Elem)
	if err != nil {
		return FetchForgottenTopic{}, fmt.Errorf("read partitions: %w", err)
	}
	if err := r.SkipTaggedFields(); err != nil {
		return FetchForgottenTopic{}, fmt.Errorf("read topic tags: %w", err)
	}
	return FetchForgottenTopic{TopicID: id, Partitions: partitions}, nil
}

// DecodeProduceRequest decodes a Produce v11 body. Record payloads alias the
// request buffer.
func DecodeProduceRequest(r *Reader) (RequestBody, error) {
	req := &ProduceRequest{}
	var err error
	if req.TransactionalID, err = r.CompactNullableString(); err != nil {
		return nil, fmt.Errorf("read transactional id: %w", err)
	}
	if req.Acks, err = r.Int16(); err != nil {
		return nil, fmt.Errorf("read produce acks: %w", err)
	}
	if req.TimeoutMs, err = r.Int32(); err != nil {
		return nil, fmt.Errorf("read produce timeout: %w", err)
	}
	if req.Topics, err = ReadCompactArray(r, readProduceTopic); err != nil {
		return nil, fmt.Errorf("read produce topics: %w", err)
	}
	if err := r.SkipTaggedFields(); err != nil {
		return nil, fmt.Errorf("read produce tags: %w", err)
	}
	return req, nil
}

func readProduceTopic(r *Reader) (ProduceTopic, error) {
	name, err := r.CompactString()
	if err != nil {
		return ProduceTopic{}, fmt.Errorf("read produce topic name: %w", err)
	}
	partitions, err := ReadCompactArray(r, func(r *Reader) (ProducePartition, error) {
		index, err := r.Int32()
		if err != nil {
			return ProducePartition{}, fmt.Errorf("read partition index: %w", err)
		}
		records, err := r.CompactBytes()
		if err != nil {
			return ProducePartition{}, fmt.Errorf("read records: %w", err)
		}
		if err := r.SkipTaggedFields(); err != nil {
			return ProducePartition{}, fmt.Errorf("read partition tags: %w", err)
		}
		return ProducePartition{Partition: index, Records: records}, nil
	})
	if err != nil {
		return ProduceTopic{}, fmt.Errorf("read produce partitions for %s: %w", name, err)
	}
	if err := r.SkipTaggedFields(); err != nil {
		return ProduceTopic{}, fmt.Errorf("read produce topic tags: %w", err)
	}
	return ProduceTopic{Name: name, Partitions: partitions}, nil
}
