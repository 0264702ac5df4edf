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

func (h *handlers) fetch(ctx context.Context, body protocol.RequestBody) (protocol.ResponseBody, error) {
	req, ok := body.(*protocol.FetchRequest)
	if !ok {
		return nil, unexpectedBody("Fetch", body)
	}
	resp := &protocol.FetchResponse{
		ErrorCode: protocol.NONE,
		SessionID: req.SessionID,
		Topics:    make([]protocol.FetchTopicResponse, 0, len(req.Topics)),
	}
	for _, rt := range req.Topics {
		topic, found := h.dir.TopicByID(rt.TopicID)
		if !found {
			resp.Topics = append(resp.Topics, protocol.FetchTopicResponse{
				TopicID: rt.TopicID,
				Partitions: []protocol.FetchPartitionResponse{{
					Partition:           0,
					ErrorCode:           protocol.UNKNOWN_TOPIC_ID,
					AbortedTransactions: []protocol.FetchAbortedTransaction{},
					Records:             []byte{},
				}},
			})
			continue
		}
		partitions := make([]protocol.FetchPartitionResponse, 0, len(rt.Partitions))
		for _, rp := range rt.Partitions {
			// Watermarks are not tracked; the whole log is returned.
			records, _ := h.store.ReadRaw(topic.Name, rp.Partition)
			h.metrics.addFetchBytes(topic.Name, len(records))
			partitions = append(partitions, protocol.FetchPartitionResponse{
				Partition:           rp.Partition,
				ErrorCode:           protocol.NONE,
				AbortedTransactions: []protocol.FetchAbortedTransaction{},
				Records:             records,
			})
		}
		resp.Topics = append(resp.Topics, protocol.FetchTopicResponse{
			TopicID:    rt.TopicID,
			Partitions: partitions,
		})
	}
	return resp, nil
}
