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

	"github.com/google/uuid"
	"github.com/novatechflow/minikaf/pkg/protocol"
	"github.com/novatechflow/minikaf/pkg/storage"
)

// topicAuthorizedOperations reports READ, WRITE, CREATE, DELETE, ALTER,
// DESCRIBE, DESCRIBE_CONFIGS and ALTER_CONFIGS.
const topicAuthorizedOperations int32 = 0x0DF8

func (h *handlers) describeTopicPartitions(ctx context.Context, body protocol.RequestBody) (protocol.ResponseBody, error) {
	req, ok := body.(*protocol.DescribeTopicPartitionsRequest)
	if !ok {
		return nil, unexpectedBody("DescribeTopicPartitions", body)
	}
	topics := make([]protocol.DescribeTopicPartitionsTopic, 0, len(req.Topics))
	for _, rt := range req.Topics {
		name := rt.Name
		topic, found := h.dir.TopicByName(name)
		if !found {
			topics = append(topics, protocol.DescribeTopicPartitionsTopic{
				ErrorCode:  protocol.UNKNOWN_TOPIC_OR_PARTITION,
				Name:       &name,
				TopicID:    uuid.Nil,
				Partitions: []protocol.DescribeTopicPartitionsPartition{},
			})
			continue
		}
		topics = append(topics, protocol.DescribeTopicPartitionsTopic{
			ErrorCode:                 protocol.NONE,
			Name:                      &name,
			TopicID:                   topic.ID,
			IsInternal:                false,
			Partitions:                describePartitions(h.dir.Partitions(topic.ID)),
			TopicAuthorizedOperations: topicAuthorizedOperations,
		})
	}
	return &protocol.DescribeTopicPartitionsResponse{Topics: topics}, nil
}

func describePartitions(records []storage.PartitionRecord) []protocol.DescribeTopicPartitionsPartition {
	out := make([]protocol.DescribeTopicPartitionsPartition, 0, len(records))
	for _, p := range records {
		out = append(out, protocol.DescribeTopicPartitionsPartition{
			ErrorCode:              protocol.NONE,
			PartitionIndex:         p.PartitionID,
			LeaderID:               p.Leader,
			LeaderEpoch:            p.LeaderEpoch,
			ReplicaNodes:           nodeList(p.Replicas),
			ISRNodes:               nodeList(p.ISR),
			EligibleLeaderReplicas: []int32{},
			LastKnownELR:           []int32{},
			OfflineReplicas:        []int32{},
		})
	}
	return out
}

// nodeList keeps an absent replica list encoded as empty rather than null.
func nodeList(nodes []int32) []int32 {
	if nodes == nil {
		return []int32{}
	}
	return nodes
}
