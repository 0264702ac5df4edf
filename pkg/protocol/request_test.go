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
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kmsg"
)

func encodeKmsgRequest(t *testing.T, req kmsg.Request, correlationID int32) []byte {
	t.Helper()
	formatter := kmsg.NewRequestFormatter(kmsg.FormatterClientID("kgo"))
	payload := formatter.AppendRequest(nil, req, correlationID)
	// drop the frame length prefix
	return payload[4:]
}

func TestParseRequestHeaderApiVersions(t *testing.T) {
	req := kmsg.NewPtrApiVersionsRequest()
	req.Version = 4
	req.ClientSoftwareName = "minikaf-test"
	req.ClientSoftwareVersion = "0.1.0"

	header, r, err := ParseRequestHeader(encodeKmsgRequest(t, req, 17))
	if err != nil {
		t.Fatalf("ParseRequestHeader: %v", err)
	}
	if header.Key != ApiVersionsV4 {
		t.Fatalf("unexpected key %v", header.Key)
	}
	if header.CorrelationID != 17 {
		t.Fatalf("unexpected correlation id %d", header.CorrelationID)
	}
	if header.ClientID == nil || *header.ClientID != "kgo" {
		t.Fatalf("unexpected client id %v", header.ClientID)
	}

	body, err := DecodeApiVersionsRequest(r)
	if err != nil {
		t.Fatalf("DecodeApiVersionsRequest: %v", err)
	}
	apiReq := body.(*ApiVersionsRequest)
	if apiReq.ClientSoftwareName == nil || *apiReq.ClientSoftwareName != "minikaf-test" {
		t.Fatalf("unexpected software name %v", apiReq.ClientSoftwareName)
	}
	if apiReq.ClientSoftwareVersion == nil || *apiReq.ClientSoftwareVersion != "0.1.0" {
		t.Fatalf("unexpected software version %v", apiReq.ClientSoftwareVersion)
	}
	if r.Remaining() != 0 {
		t.Fatalf("unexpected trailing bytes %d", r.Remaining())
	}
}

func TestParseRequestHeaderRejectsTaggedFields(t *testing.T) {
	w := NewWriter(16)
	w.Int16(APIKeyApiVersion)
	w.Int16(4)
	w.Int32(1)
	w.NullableString(nil)
	w.UVarint(1)
	if _, _, err := ParseRequestHeader(w.Bytes()); !errors.Is(err, ErrTaggedFieldsUnsupported) {
		t.Fatalf("expected tagged field error, got %v", err)
	}
}

func TestParseRequestHeaderTruncated(t *testing.T) {
	if _, _, err := ParseRequestHeader([]byte{0x00, 0x12, 0x00}); err == nil {
		t.Fatalf("expected error for truncated header")
	}
}

func TestDecodeDescribeTopicPartitionsFranzEncoding(t *testing.T) {
	req := kmsg.NewPtrDescribeTopicPartitionsRequest()
	req.Version = 0
	req.ResponsePartitionLimit = 100
	for _, name := range []string{"foo", "bar"} {
		topic := kmsg.NewDescribeTopicPartitionsRequestTopic()
		topic.Topic = name
		req.Topics = append(req.Topics, topic)
	}

	header, r, err := ParseRequestHeader(encodeKmsgRequest(t, req, 3))
	if err != nil {
		t.Fatalf("ParseRequestHeader: %v", err)
	}
	if header.Key != DescribeTopicPartitionsV0 {
		t.Fatalf("unexpected key %v", header.Key)
	}
	body, err := DecodeDescribeTopicPartitionsRequest(r)
	if err != nil {
		t.Fatalf("DecodeDescribeTopicPartitionsRequest: %v", err)
	}
	describe := body.(*DescribeTopicPartitionsRequest)
	if len(describe.Topics) != 2 || describe.Topics[0].Name != "foo" || describe.Topics[1].Name != "bar" {
		t.Fatalf("unexpected topics %+v", describe.Topics)
	}
	if describe.ResponsePartitionLimit != 100 {
		t.Fatalf("unexpected partition limit %d", describe.ResponsePartitionLimit)
	}
	if describe.Cursor != nil {
		t.Fatalf("expected null cursor, got %+v", describe.Cursor)
	}
	if r.Remaining() != 0 {
		t.Fatalf("unexpected trailing bytes %d", r.Remaining())
	}
}

func TestDecodeDescribeTopicPartitionsWithCursor(t *testing.T) {
	w := NewWriter(32)
	w.UVarint(2)
	w.CompactString("foo")
	w.WriteTaggedFields()
	w.Int32(10)
	w.Int8(1)
	w.CompactString("foo")
	w.Int32(3)
	w.WriteTaggedFields()
	w.WriteTaggedFields()

	body, err := DecodeDescribeTopicPartitionsRequest(NewReader(w.Bytes()))
	if err != nil {
		t.Fatalf("DecodeDescribeTopicPartitionsRequest: %v", err)
	}
	describe := body.(*DescribeTopicPartitionsRequest)
	if describe.Cursor == nil || describe.Cursor.TopicName != "foo" || describe.Cursor.PartitionIndex != 3 {
		t.Fatalf("unexpected cursor %+v", describe.Cursor)
	}
}

func TestDecodeDescribeTopicPartitionsMissingCursor(t *testing.T) {
	w := NewWriter(16)
	w.UVarint(2)
	w.CompactString("foo")
	w.WriteTaggedFields()
	w.Int32(10)

	if _, err := DecodeDescribeTopicPartitionsRequest(NewReader(w.Bytes())); !errors.Is(err, ErrInsufficientBytes) {
		t.Fatalf("expected insufficient bytes, got %v", err)
	}
}

func TestDecodedBodiesReportAPIKey(t *testing.T) {
	bodies := map[int16]RequestBody{
		APIKeyApiVersion:              &ApiVersionsRequest{},
		APIKeyDescribeTopicPartitions: &DescribeTopicPartitionsRequest{},
		APIKeyFetch:                   &FetchRequest{},
		APIKeyProduce:                 &ProduceRequest{},
	}
	for key, body := range bodies {
		if body.APIKey() != key {
			t.Fatalf("%T reports api key %d, want %d", body, body.APIKey(), key)
		}
	}
}

func TestDecodeProduceRequestFranzEncoding(t *testing.T) {
	req := kmsg.NewPtrProduceRequest()
	req.Version = 11
	req.Acks = -1
	req.TimeoutMillis = 1500
	topic := kmsg.NewProduceRequestTopic()
	topic.Topic = "orders"
	part := kmsg.NewProduceRequestTopicPartition()
	part.Partition = 2
	part.Records = []byte("record batch payload")
	topic.Partitions = append(topic.Partitions, part)
	req.Topics = append(req.Topics, topic)

	header, r, err := ParseRequestHeader(encodeKmsgRequest(t, req, 42))
	if err != nil {
		t.Fatalf("ParseRequestHeader: %v", err)
	}
	if header.Key != ProduceV11 {
		t.Fatalf("unexpected key %v", header.Key)
	}
	body, err := DecodeProduceRequest(r)
	if err != nil {
		t.Fatalf("DecodeProduceRequest: %v", err)
	}
	produce := body.(*ProduceRequest)
	if produce.TransactionalID != nil {
		t.Fatalf("expected null transactional id")
	}
	if produce.Acks != -1 || produce.TimeoutMs != 1500 {
		t.Fatalf("unexpected acks/timeout %d/%d", produce.Acks, produce.TimeoutMs)
	}
	if len(produce.Topics) != 1 || produce.Topics[0].Name != "orders" {
		t.Fatalf("unexpected topics %+v", produce.Topics)
	}
	parts := produce.Topics[0].Partitions
	if len(parts) != 1 || parts[0].Partition != 2 || string(parts[0].Records) != "record batch payload" {
		t.Fatalf("unexpected partitions %+v", parts)
	}
	if r.Remaining() != 0 {
		t.Fatalf("unexpected trailing bytes %d", r.Remaining())
	}
}

func TestDecodeFetchRequestV16(t *testing.T) {
	topicID := uuid.MustParse("71d9b2a4-5f2c-4d1e-9e6b-0c3f2a1b4d5e")
	forgotten := uuid.MustParse("0a0b0c0d-0000-4000-8000-000000000001")
	w := NewWriter(128)
	w.Int32(500)     // max wait ms
	w.Int32(1)       // min bytes
	w.Int32(1048576) // max bytes
	w.Int8(0)        // isolation level
	w.Int32(7)       // session id
	w.Int32(-1)      // session epoch
	w.UVarint(2)
	w.UUID(topicID)
	w.UVarint(2)
	w.Int32(0)  // partition
	w.Int32(-1) // current leader epoch
	w.Int64(0)  // fetch offset
	w.Int32(-1) // last fetched epoch
	w.Int64(-1) // log start offset
	w.Int32(1 << 20)
	w.WriteTaggedFields()
	w.WriteTaggedFields()
	w.UVarint(2)
	w.UUID(forgotten)
	WriteCompactArray(w, []int32{1, 2}, Int32Writer)
	w.WriteTaggedFields()
	w.CompactString("rack-a")
	w.WriteTaggedFields()

	r := NewReader(w.Bytes())
	body, err := DecodeFetchRequest(r)
	if err != nil {
		t.Fatalf("DecodeFetchRequest: %v", err)
	}
	fetch := body.(*FetchRequest)
	if fetch.MaxWaitMs != 500 || fetch.SessionID != 7 || fetch.SessionEpoch != -1 {
		t.Fatalf("unexpected fetch header %+v", fetch)
	}
	if len(fetch.Topics) != 1 || fetch.Topics[0].TopicID != topicID {
		t.Fatalf("unexpected topics %+v", fetch.Topics)
	}
	p := fetch.Topics[0].Partitions
	if len(p) != 1 || p[0].Partition != 0 || p[0].PartitionMaxBytes != 1<<20 || p[0].LogStartOffset != -1 {
		t.Fatalf("unexpected partitions %+v", p)
	}
	if len(fetch.ForgottenTopics) != 1 || fetch.ForgottenTopics[0].TopicID != forgotten || len(fetch.ForgottenTopics[0].Partitions) != 2 {
		t.Fatalf("unexpected forgotten topics %+v", fetch.ForgottenTopics)
	}
	if fetch.RackID != "rack-a" {
		t.Fatalf("unexpected rack %q", fetch.RackID)
	}
	if r.Remaining() != 0 {
		t.Fatalf("unexpected trailing bytes %d", r.Remaining())
	}
}

func TestDecodeFetchRequestTruncated(t *testing.T) {
	w := NewWriter(8)
	w.Int32(500)
	w.Int32(1)
	if _, err := DecodeFetchRequest(NewReader(w.Bytes())); !errors.Is(err, ErrInsufficientBytes) {
		t.Fatalf("expected insufficient bytes, got %v", err)
	}
}
