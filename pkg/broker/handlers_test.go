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

package broker

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/novatechflow/minikaf/pkg/metadata"
	"github.com/novatechflow/minikaf/pkg/protocol"
	"github.com/novatechflow/minikaf/pkg/storage"
	"github.com/twmb/franz-go/pkg/kmsg"
)

var ordersID = uuid.MustParse("3f1c6a8e-2b4d-4e7a-9c1f-5d8e0a2b6c4f")

func testDirectory() *metadata.Directory {
	return metadata.NewDirectory(
		[]storage.TopicRecord{{Name: "orders", ID: ordersID}},
		[]storage.PartitionRecord{
			{PartitionID: 0, TopicID: ordersID, Replicas: []int32{1}, ISR: []int32{1}, Leader: 1, LeaderEpoch: 2},
			{PartitionID: 1, TopicID: ordersID, Replicas: []int32{1, 2}, ISR: []int32{2}, Leader: 2, LeaderEpoch: 5},
		},
		nil,
		nil,
	)
}

func newTestTable(t *testing.T, dir *metadata.Directory, opts Options) (*DispatchTable, *storage.LogStore) {
	t.Helper()
	store := storage.NewLogStore(storage.LogStoreConfig{Root: t.TempDir()})
	return NewDispatchTable(dir, store, opts), store
}

func encodeKmsgRequest(t *testing.T, req kmsg.Request, correlationID int32) []byte {
	t.Helper()
	formatter := kmsg.NewRequestFormatter(kmsg.FormatterClientID("kgo"))
	payload := formatter.AppendRequest(nil, req, correlationID)
	return payload[4:]
}

// flexibleBody checks the v1 response header and returns what follows it.
func flexibleBody(t *testing.T, payload []byte, wantCorrelation int32) []byte {
	t.Helper()
	r := protocol.NewReader(payload)
	corr, err := r.Int32()
	if err != nil {
		t.Fatalf("read correlation id: %v", err)
	}
	if corr != wantCorrelation {
		t.Fatalf("expected correlation id %d got %d", wantCorrelation, corr)
	}
	if err := r.SkipTaggedFields(); err != nil {
		t.Fatalf("skip header tags: %v", err)
	}
	return payload[r.Offset():]
}

func producePayload(t *testing.T, correlationID int32, topic string, partition int32, records []byte) []byte {
	t.Helper()
	req := kmsg.NewPtrProduceRequest()
	req.Version = 11
	req.Acks = -1
	req.TimeoutMillis = 1000
	rt := kmsg.NewProduceRequestTopic()
	rt.Topic = topic
	rp := kmsg.NewProduceRequestTopicPartition()
	rp.Partition = partition
	rp.Records = records
	rt.Partitions = append(rt.Partitions, rp)
	req.Topics = append(req.Topics, rt)
	return encodeKmsgRequest(t, req, correlationID)
}

func fetchPayload(correlationID int32, topicID uuid.UUID, partitions ...int32) []byte {
	w := protocol.NewWriter(128)
	client := "minikaf-test"
	protocol.EncodeRequestHeader(w, &protocol.RequestHeader{
		Key:           protocol.FetchV16,
		CorrelationID: correlationID,
		ClientID:      &client,
	})
	w.Int32(500)
	w.Int32(1)
	w.Int32(1 << 20)
	w.Int8(0)
	w.Int32(0)
	w.Int32(-1)
	w.UVarint(2)
	w.UUID(topicID)
	w.UVarint(uint64(len(partitions) + 1))
	for _, p := range partitions {
		w.Int32(p)
		w.Int32(-1)
		w.Int64(0)
		w.Int32(-1)
		w.Int64(-1)
		w.Int32(1 << 20)
		w.WriteTaggedFields()
	}
	w.WriteTaggedFields()
	w.UVarint(1)
	w.CompactString("")
	w.WriteTaggedFields()
	return w.Bytes()
}

func recordBatch(lastOffsetDelta int32, value string) []byte {
	key := "k"
	return storage.EncodeRecordBatch(storage.RecordBatch{
		BaseOffset:      0,
		Magic:           2,
		LastOffsetDelta: lastOffsetDelta,
		ProducerID:      -1,
		ProducerEpoch:   -1,
		BaseSequence:    -1,
		Records: []storage.Record{{
			Key:   &key,
			Value: storage.FeatureLevelRecord{Name: value, Level: 1},
		}},
	})
}

func decodeProduce(t *testing.T, payload []byte, correlationID int32) *kmsg.ProduceResponse {
	t.Helper()
	resp := kmsg.NewPtrProduceResponse()
	resp.Version = 11
	if err := resp.ReadFrom(flexibleBody(t, payload, correlationID)); err != nil {
		t.Fatalf("decode produce response: %v", err)
	}
	return resp
}

func decodeFetch(t *testing.T, payload []byte, correlationID int32) *kmsg.FetchResponse {
	t.Helper()
	resp := kmsg.NewPtrFetchResponse()
	resp.Version = 16
	if err := resp.ReadFrom(flexibleBody(t, payload, correlationID)); err != nil {
		t.Fatalf("decode fetch response: %v", err)
	}
	return resp
}

type describedPartition struct {
	errorCode   int16
	index       int32
	leader      int32
	leaderEpoch int32
	replicas    []int32
	isr         []int32
}

type describedTopic struct {
	errorCode  int16
	name       string
	id         uuid.UUID
	internal   bool
	partitions []describedPartition
	operations int32
}

// decodeDescribe reads a DescribeTopicPartitions v0 body and checks that the
// cursor is the null sentinel.
func decodeDescribe(t *testing.T, body []byte) []describedTopic {
	t.Helper()
	r := protocol.NewReader(body)
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("decode describe response: %v", err)
		}
	}
	_, err := r.Int32()
	must(err)
	topics, err := protocol.ReadCompactArray(r, func(r *protocol.Reader) (describedTopic, error) {
		var dt describedTopic
		var err error
		if dt.errorCode, err = r.Int16(); err != nil {
			return dt, err
		}
		if dt.name, err = r.CompactString(); err != nil {
			return dt, err
		}
		if dt.id, err = r.UUID(); err != nil {
			return dt, err
		}
		if dt.internal, err = r.Bool(); err != nil {
			return dt, err
		}
		dt.partitions, err = protocol.ReadCompactArray(r, func(r *protocol.Reader) (describedPartition, error) {
			var dp describedPartition
			var err error
			if dp.errorCode, err = r.Int16(); err != nil {
				return dp, err
			}
			if dp.index, err = r.Int32(); err != nil {
				return dp, err
			}
			if dp.leader, err = r.Int32(); err != nil {
				return dp, err
			}
			if dp.leaderEpoch, err = r.Int32(); err != nil {
				return dp, err
			}
			if dp.replicas, err = protocol.ReadCompactArray(r, protocol.Int32Elem); err != nil {
				return dp, err
			}
			if dp.isr, err = protocol.ReadCompactArray(r, protocol.Int32Elem); err != nil {
				return dp, err
			}
			for i := 0; i < 3; i++ {
				list, err := protocol.ReadCompactArray(r, protocol.Int32Elem)
				if err != nil {
					return dp, err
				}
				if list == nil || len(list) != 0 {
					t.Fatalf("expected empty replica list, got %v", list)
				}
			}
			return dp, r.SkipTaggedFields()
		})
		if err != nil {
			return dt, err
		}
		if dt.operations, err = r.Int32(); err != nil {
			return dt, err
		}
		return dt, r.SkipTaggedFields()
	})
	must(err)
	cursor, err := r.Int64()
	must(err)
	if cursor != -1 {
		t.Fatalf("expected null cursor sentinel, got %d", cursor)
	}
	must(r.SkipTaggedFields())
	if r.Remaining() != 0 {
		t.Fatalf("unexpected trailing bytes %d", r.Remaining())
	}
	return topics
}

func describePayload(t *testing.T, correlationID int32, names ...string) []byte {
	t.Helper()
	req := kmsg.NewPtrDescribeTopicPartitionsRequest()
	req.Version = 0
	req.ResponsePartitionLimit = 100
	for _, name := range names {
		topic := kmsg.NewDescribeTopicPartitionsRequestTopic()
		topic.Topic = name
		req.Topics = append(req.Topics, topic)
	}
	return encodeKmsgRequest(t, req, correlationID)
}

func TestApiVersionsListsDispatchKeys(t *testing.T) {
	table, _ := newTestTable(t, testDirectory(), Options{})
	req := kmsg.NewPtrApiVersionsRequest()
	req.Version = 4
	req.ClientSoftwareName = "minikaf-test"
	req.ClientSoftwareVersion = "1.0"

	payload, err := table.Handle(context.Background(), encodeKmsgRequest(t, req, 11))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !bytes.Equal(payload[:4], []byte{0, 0, 0, 11}) {
		t.Fatalf("unexpected correlation bytes %x", payload[:4])
	}
	resp := kmsg.NewPtrApiVersionsResponse()
	resp.Version = 4
	if err := resp.ReadFrom(payload[4:]); err != nil {
		t.Fatalf("decode api versions: %v", err)
	}
	if resp.ErrorCode != protocol.NONE {
		t.Fatalf("unexpected error code %d", resp.ErrorCode)
	}
	want := []protocol.ApiKeyVersion{protocol.ProduceV11, protocol.FetchV16, protocol.ApiVersionsV4, protocol.DescribeTopicPartitionsV0}
	if len(resp.ApiKeys) != len(want) {
		t.Fatalf("expected %d keys got %d", len(want), len(resp.ApiKeys))
	}
	for i, k := range resp.ApiKeys {
		if k.ApiKey != want[i].APIKey || k.MinVersion != want[i].APIVersion || k.MaxVersion != want[i].APIVersion {
			t.Fatalf("key %d: got %+v want %v", i, k, want[i])
		}
	}
}

func TestDescribeTopicPartitionsEmptyDirectory(t *testing.T) {
	table, _ := newTestTable(t, metadata.NewDirectory(nil, nil, nil, nil), Options{})
	payload, err := table.Handle(context.Background(), describePayload(t, 8, "foo"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	topics := decodeDescribe(t, flexibleBody(t, payload, 8))
	if len(topics) != 1 {
		t.Fatalf("expected one topic got %d", len(topics))
	}
	got := topics[0]
	if got.errorCode != protocol.UNKNOWN_TOPIC_OR_PARTITION || got.name != "foo" || got.id != uuid.Nil {
		t.Fatalf("unexpected topic %+v", got)
	}
	if got.partitions == nil || len(got.partitions) != 0 {
		t.Fatalf("expected empty partition list, got %+v", got.partitions)
	}
}

func TestDescribeTopicPartitionsKnownTopic(t *testing.T) {
	table, _ := newTestTable(t, testDirectory(), Options{})
	payload, err := table.Handle(context.Background(), describePayload(t, 9, "orders", "missing"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	topics := decodeDescribe(t, flexibleBody(t, payload, 9))
	if len(topics) != 2 {
		t.Fatalf("expected two topics got %d", len(topics))
	}
	orders := topics[0]
	if orders.errorCode != protocol.NONE || orders.name != "orders" || orders.id != ordersID || orders.internal {
		t.Fatalf("unexpected topic %+v", orders)
	}
	if orders.operations != 0x0DF8 {
		t.Fatalf("unexpected authorized operations %x", orders.operations)
	}
	if len(orders.partitions) != 2 {
		t.Fatalf("expected two partitions got %d", len(orders.partitions))
	}
	p1 := orders.partitions[1]
	if p1.errorCode != protocol.NONE || p1.index != 1 || p1.leader != 2 || p1.leaderEpoch != 5 {
		t.Fatalf("unexpected partition %+v", p1)
	}
	if len(p1.replicas) != 2 || p1.replicas[1] != 2 || len(p1.isr) != 1 || p1.isr[0] != 2 {
		t.Fatalf("unexpected replicas %v isr %v", p1.replicas, p1.isr)
	}
	if topics[1].name != "missing" || topics[1].errorCode != protocol.UNKNOWN_TOPIC_OR_PARTITION {
		t.Fatalf("unexpected second topic %+v", topics[1])
	}
}

func TestProduceThenFetch(t *testing.T) {
	table, store := newTestTable(t, testDirectory(), Options{})
	ctx := context.Background()

	first := recordBatch(0, "first")
	second := recordBatch(0, "second")
	for i, batch := range [][]byte{first, second} {
		corr := int32(20 + i)
		payload, err := table.Handle(ctx, producePayload(t, corr, "orders", 0, batch))
		if err != nil {
			t.Fatalf("produce %d: %v", i, err)
		}
		resp := decodeProduce(t, payload, corr)
		part := resp.Topics[0].Partitions[0]
		if part.ErrorCode != protocol.NONE || part.BaseOffset != int64(i) || part.LogStartOffset != int64(i) || part.LogAppendTime != -1 {
			t.Fatalf("produce %d: unexpected partition %+v", i, part)
		}
	}

	payload, err := table.Handle(ctx, fetchPayload(30, ordersID, 0))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	resp := decodeFetch(t, payload, 30)
	if len(resp.Topics) != 1 || uuid.UUID(resp.Topics[0].TopicID) != ordersID {
		t.Fatalf("unexpected topics %+v", resp.Topics)
	}
	part := resp.Topics[0].Partitions[0]
	if part.ErrorCode != protocol.NONE || part.HighWatermark != 0 || part.LogStartOffset != 0 {
		t.Fatalf("unexpected partition %+v", part)
	}
	var want []byte
	want = append(want, 0, 0, 0, 0, 0, 0, 0, 0)
	want = append(want, first[8:]...)
	want = append(want, 0, 0, 0, 0, 0, 0, 0, 1)
	want = append(want, second[8:]...)
	if !bytes.Equal(part.RecordBatches, want) {
		t.Fatalf("fetched bytes differ:\n got %x\nwant %x", part.RecordBatches, want)
	}
	if batches := store.ReadAll("orders", 0); len(batches) != 2 || batches[1].BaseOffset != 1 {
		t.Fatalf("unexpected stored batches %+v", batches)
	}
}

func TestFetchUnknownTopicID(t *testing.T) {
	table, _ := newTestTable(t, testDirectory(), Options{})
	unknown := uuid.MustParse("00000000-0000-4000-8000-0000000000aa")
	payload, err := table.Handle(context.Background(), fetchPayload(31, unknown, 0, 1))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	resp := decodeFetch(t, payload, 31)
	if len(resp.Topics) != 1 || len(resp.Topics[0].Partitions) != 1 {
		t.Fatalf("unexpected response %+v", resp.Topics)
	}
	part := resp.Topics[0].Partitions[0]
	if part.Partition != 0 || part.ErrorCode != protocol.UNKNOWN_TOPIC_ID || part.HighWatermark != 0 {
		t.Fatalf("unexpected partition %+v", part)
	}
	if part.RecordBatches == nil || len(part.RecordBatches) != 0 {
		t.Fatalf("expected empty records, got %v", part.RecordBatches)
	}
}

func TestFetchEmptyPartition(t *testing.T) {
	table, _ := newTestTable(t, testDirectory(), Options{})
	payload, err := table.Handle(context.Background(), fetchPayload(32, ordersID, 1))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	part := decodeFetch(t, payload, 32).Topics[0].Partitions[0]
	if part.Partition != 1 || part.ErrorCode != protocol.NONE || part.RecordBatches != nil {
		t.Fatalf("unexpected partition %+v", part)
	}
}

func TestProduceUnknownTopicOrPartition(t *testing.T) {
	table, store := newTestTable(t, testDirectory(), Options{})
	ctx := context.Background()
	cases := []struct {
		topic     string
		partition int32
	}{
		{topic: "missing", partition: 0},
		{topic: "orders", partition: 9},
	}
	for i, tc := range cases {
		corr := int32(40 + i)
		payload, err := table.Handle(ctx, producePayload(t, corr, tc.topic, tc.partition, recordBatch(0, "x")))
		if err != nil {
			t.Fatalf("Handle %s-%d: %v", tc.topic, tc.partition, err)
		}
		resp := decodeProduce(t, payload, corr)
		if resp.Topics[0].Topic != tc.topic {
			t.Fatalf("unexpected topic %q", resp.Topics[0].Topic)
		}
		part := resp.Topics[0].Partitions[0]
		if part.Partition != tc.partition || part.ErrorCode != protocol.UNKNOWN_TOPIC_OR_PARTITION {
			t.Fatalf("unexpected partition %+v", part)
		}
		if part.BaseOffset != -1 || part.LogAppendTime != -1 || part.LogStartOffset != -1 {
			t.Fatalf("expected -1 offsets, got %+v", part)
		}
		if _, ok := store.ReadRaw(tc.topic, tc.partition); ok {
			t.Fatalf("log created for %s-%d", tc.topic, tc.partition)
		}
	}
}

func TestProduceShortPayload(t *testing.T) {
	table, _ := newTestTable(t, testDirectory(), Options{})
	payload, err := table.Handle(context.Background(), producePayload(t, 50, "orders", 0, []byte{1, 2, 3}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	part := decodeProduce(t, payload, 50).Topics[0].Partitions[0]
	if part.ErrorCode != protocol.UNKNOWN_SERVER_ERROR || part.BaseOffset != -1 {
		t.Fatalf("unexpected partition %+v", part)
	}
}
