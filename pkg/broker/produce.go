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
	"context"

	"github.com/novatechflow/minikaf/pkg/protocol"
)

func (h *handlers) produce(ctx context.Context, body protocol.RequestBody) (protocol.ResponseBody, error) {
	req, ok := body.(*protocol.ProduceRequest)
	if !ok {
		return nil, unexpectedBody("Produce", body)
	}
	resp := &protocol.ProduceResponse{
		Topics: make([]protocol.ProduceTopicResponse, 0, len(req.Topics)),
	}
	for _, rt := range req.Topics {
		topicResp := protocol.ProduceTopicResponse{
			Name:       rt.Name,
			Partitions: make([]protocol.ProducePartitionResponse, 0, len(rt.Partitions)),
		}
		topic, topicFound := h.dir.TopicByName(rt.Name)
		for _, rp := range rt.Partitions {
			if !topicFound {
				topicResp.Partitions = append(topicResp.Partitions, producePartitionError(rp.Partition, protocol.UNKNOWN_TOPIC_OR_PARTITION))
				continue
			}
			if _, ok := h.dir.Partition(topic.ID, rp.Partition); !ok {
				topicResp.Partitions = append(topicResp.Partitions, producePartitionError(rp.Partition, protocol.UNKNOWN_TOPIC_OR_PARTITION))
				continue
			}
			result, err := h.store.Append(ctx, rt.Name, rp.Partition, rp.Records)
			if err != nil {
				h.logger.Error("append failed", "topic", rt.Name, "partition", rp.Partition, "error", err)
				topicResp.Partitions = append(topicResp.Partitions, producePartitionError(rp.Partition, protocol.UNKNOWN_SERVER_ERROR))
				continue
			}
			h.metrics.addProduceBytes(rt.Name, len(rp.Records))
			h.metrics.setLastAppended(rt.Name, rp.Partition, result.BaseOffset)
			topicResp.Partitions = append(topicResp.Partitions, protocol.ProducePartitionResponse{
				Partition:       rp.Partition,
				ErrorCode:       protocol.NONE,
				BaseOffset:      result.BaseOffset,
				LogAppendTimeMs: -1,
				LogStartOffset:  result.BaseOffset,
				RecordErrors:    []protocol.ProduceRecordError{},
			})
		}
		resp.Topics = append(resp.Topics, topicResp)
	}
	return resp, nil
}

func producePartitionError(partition int32, code int16) protocol.ProducePartitionResponse {
	return protocol.ProducePartitionResponse{
		Partition:       partition,
		ErrorCode:       code,
		BaseOffset:      -1,
		LogAppendTimeMs: -1,
		LogStartOffset:  -1,
		RecordErrors:    []protocol.ProduceRecordError{},
	}
}
