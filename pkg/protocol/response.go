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

// nullCursor is written in place of an absent DescribeTopicPartitions cursor.
const nullCursor int64 = -1

// ResponseBody is implemented by the encodable response bodies.
type ResponseBody interface {
	encode(w *Writer)
}

// Response pairs a response header with its body.
type Response struct {
	Header ResponseHeader
	Body   ResponseBody
}

// EncodeResponse writes the header followed by the body, without the frame
// length prefix.
func EncodeResponse(resp *Response) ([]byte, error) {
	if resp == nil || resp.Header == nil || resp.Body == nil {
		return nil, fmt.Errorf("incomplete response")
	}
	w := NewWriter(256)
	if err := EncodeResponseHeader(w, resp.Header); err != nil {
		return nil, err
	}
	resp.Body.encode(w)
	return w.Bytes(), nil
}

// ApiVersionsResponse is the ApiVersions v4 body.
type ApiVersionsResponse struct {
	ErrorCode  int16
	ApiKeys    []ApiVersion
	ThrottleMs int32
}

func (r *ApiVersionsResponse) encode(w *Writer) {
	w.Int16(r.ErrorCode)
	WriteCompactArray(w, r.ApiKeys, func(w *Writer, v ApiVersion) {
		w.Int16(v.APIKey)
		w.Int16(v.MinVersion)
		w.Int16(v.MaxVersion)
		w.WriteTaggedFields()
	})
	w.Int32(r.ThrottleMs)
	w.WriteTaggedFields()
}

// DescribeTopicPartitionsResponse is the DescribeTopicPartitions v0 body.
type DescribeTopicPartitionsResponse struct {
	ThrottleMs int32
	Topics     []DescribeTopicPartitionsTopic
	NextCursor *DescribeTopicPartitionsCursor
}

type DescribeTopicPartitionsTopic struct {
	ErrorCode                 int16
	Name                      *string
	TopicID                   uuid.UUID
	IsInternal                bool
	Partitions                []DescribeTopicPartitionsPartition
	TopicAuthorizedOperations int32
}

type DescribeTopicPartitionsPartition struct {
	ErrorCode              int16
	PartitionIndex         int32
	LeaderID               int32
	LeaderEpoch            int32
	ReplicaNodes           []int32
	ISRNodes               []int32
	EligibleLeaderReplicas []int32
	LastKnownELR           []int32
	OfflineReplicas        []int32
}

func (r *DescribeTopicPartitionsResponse) encode(w *Writer) {
	w.Int32(r.ThrottleMs)
	WriteCompactArray(w, r.Topics, func(w *Writer, t DescribeTopicPartitionsTopic) {
		w.Int16(t.ErrorCode)
		w.CompactNullableString(t.Name)
		w.UUID(t.TopicID)
		w.Bool(t.IsInternal)
		WriteCompactArray(w, t.Partitions, func(w *Writer, p DescribeTopicPartitionsPartition) {
			w.Int16(p.ErrorCode)
			w.Int32(p.PartitionIndex)
			w.Int32(p.LeaderID)
			w.Int32(p.LeaderEpoch)
			WriteCompactArray(w, p.ReplicaNodes, Int32Writer)
			WriteCompactArray(w, p.ISRNodes, Int32Writer)
			WriteCompactArray(w, p.EligibleLeaderReplicas, Int32Writer)
			WriteCompactArray(w, p.LastKnownELR, Int32Writer)
			WriteCompactArray(w, p.OfflineReplicas, Int32Writer)
			w.WriteTaggedFields()
		})
		w.Int32(t.TopicAuthorizedOperations)
		w.WriteTaggedFields()
	})
	if r.NextCursor == nil {
		w.Int64(nullCursor)
	} else {
		w.Int8(1)
		w.CompactString(r.NextCursor.TopicName)
		w.Int32(r.NextCursor.PartitionIndex)
		w.WriteTaggedFields()
	}
	w.WriteTaggedFields()
}

// FetchResponse is the Fetch v16 body.
type FetchResponse struct {
	ThrottleMs int32
	ErrorCode  int16
	SessionID  int32
	Topics     []FetchTopicResponse
}

type FetchTopicResponse struct {
	TopicID    uuid.UUID
	Partitions []FetchPartitionResponse
}

type FetchPartitionResponse struct {
	Partition            int32
	ErrorCode            int16
	HighWatermark        int64
	LastStableOffset     int64
	LogStartOffset       int64
	AbortedTransactions  []FetchAbortedTransaction
	PreferredReadReplica int32

	// Records is written as compact nullable bytes; nil encodes null.
	Records []byte
}

type FetchAbortedTransaction struct {
	ProducerID  int64
	FirstOffset int64
}

func (r *FetchResponse) encode(w *Writer) {
	w.Int32(r.ThrottleMs)
	w.Int16(r.ErrorCode)
	w.Int32(r.SessionID)
	WriteCompactArray(w, r.Topics, func(w *Writer, t FetchTopicResponse) {
		w.UUID(t.TopicID)
		WriteCompactArray(w, t.Partitions, func(w *Writer, p FetchPartitionResponse) {
			w.Int32(p.Partition)
			w.Int16(p.ErrorCode)
			w.Int64(p.HighWatermark)
			w.Int64(p.LastStableOffset)
			w.Int64(p.LogStartOffset)
			WriteCompactArray(w, p.AbortedTransactions, func(w *Writer, a FetchAbortedTransaction) {
				w.Int64(a.ProducerID)
				w.Int64(a.FirstOffset)
				w.WriteTaggedFields()
			})
			w.Int32(p.PreferredReadReplica)
			w.CompactBytes(p.Records)
			w.WriteTaggedFields()
		})
		w.WriteTaggedFields()
	})
	w.WriteTaggedFields()
}

// ProduceResponse is the Produce v11 body.
type ProduceResponse struct {
	Topics     []ProduceTopicResponse
	ThrottleMs int32
}

type ProduceTopicResponse struct {
	Name       string
	Partitions []ProducePartitionResponse
}

type ProducePartitionResponse struct {
	Partition       int32
	ErrorCode       int16
	BaseOffset      int64
	LogAppendTimeMs int64
	LogStartOffset  int64
	RecordErrors    []ProduceRecordError
	ErrorMessage    *string
}

type ProduceRecordError struct {
	BatchIndex int32
	Message    *string
}

func (r *ProduceResponse) encode(w *Writer) {
	WriteCompactArray(w, r.Topics, func(w *Writer, t ProduceTopicResponse) {
		w.CompactString(t.Name)
		WriteCompactArray(w, t.Partitions, func(w *Writer, p ProducePartitionResponse) {
			w.Int32(p.Partition)
			w.Int16(p.ErrorCode)
			w.Int64(p.BaseOffset)
			w.Int64(p.LogAppendTimeMs)
			w.Int64(p.LogStartOffset)
			WriteCompactArray(w, p.RecordErrors, func(w *Writer, e ProduceRecordError) {
				w.Int32(e.BatchIndex)
				w.CompactNullableString(e.Message)
				w.WriteTaggedFields()
			})
			w.CompactNullableString(p.ErrorMessage)
			w.WriteTaggedFields()
		})
		w.WriteTaggedFields()
	})
	w.Int32(r.ThrottleMs)
	w.WriteTaggedFields()
}
