package main

import (
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/novatechflow/minikaf/pkg/protocol"
	"github.com/twmb/franz-go/pkg/kmsg"
)

const clientID = "minikaf-e2e"

// brokerClient speaks the four broker APIs over one connection, one request
// at a time.
type brokerClient struct {
	conn      net.Conn
	formatter *kmsg.RequestFormatter
	timeout   time.Duration
	corr      int32
}

type topicInfo struct {
	Name       string
	ID         uuid.UUID
	ErrorCode  int16
	Partitions []int32
}

func newBrokerClient(conn net.Conn, timeout time.Duration) *brokerClient {
	return &brokerClient{
		conn:      conn,
		formatter: kmsg.NewRequestFormatter(kmsg.FormatterClientID(clientID)),
		timeout:   timeout,
	}
}

func dialBroker(addr string, timeout time.Duration) (*brokerClient, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return newBrokerClient(conn, timeout), nil
}

func (c *brokerClient) Close() error {
	return c.conn.Close()
}

func (c *brokerClient) nextCorrelation() int32 {
	c.corr++
	return c.corr
}

func (c *brokerClient) do(req kmsg.Request) ([]byte, error) {
	corr := c.nextCorrelation()
	payload := c.formatter.AppendRequest(nil, req, corr)[4:]
	return c.send(corr, payload, req.Key() != protocol.APIKeyApiVersion)
}

// send writes one request frame and returns the response body after the
// header. A six byte response is the broker's error frame.
func (c *brokerClient) send(corr int32, payload []byte, taggedHeader bool) ([]byte, error) {
	if c.timeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, fmt.Errorf("set deadline: %w", err)
		}
	}
	if err := protocol.WriteFrame(c.conn, payload); err != nil {
		return nil, err
	}
	frame, err := protocol.ReadFrame(c.conn)
	if err != nil {
		return nil, err
	}
	r := protocol.NewReader(frame.Payload)
	got, err := r.Int32()
	if err != nil {
		return nil, fmt.Errorf("read correlation id: %w", err)
	}
	if got != corr {
		return nil, fmt.Errorf("correlation id mismatch: sent %d got %d", corr, got)
	}
	if frame.Length == 6 {
		code, _ := r.Int16()
		return nil, fmt.Errorf("broker error frame: %s", protocol.ErrorName(code))
	}
	if taggedHeader {
		if err := r.SkipTaggedFields(); err != nil {
			return nil, fmt.Errorf("read response header tags: %w", err)
		}
	}
	return frame.Payload[r.Offset():], nil
}

func (c *brokerClient) apiVersions() ([]kmsg.ApiVersionsResponseApiKey, error) {
	req := kmsg.NewPtrApiVersionsRequest()
	req.Version = 4
	req.ClientSoftwareName = clientID
	req.ClientSoftwareVersion = "dev"
	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	resp := kmsg.NewPtrApiVersionsResponse()
	resp.Version = 4
	if err := resp.ReadFrom(body); err != nil {
		return nil, fmt.Errorf("decode api versions: %w", err)
	}
	if resp.ErrorCode != protocol.NONE {
		return nil, fmt.Errorf("api versions: %s", protocol.ErrorName(resp.ErrorCode))
	}
	return resp.ApiKeys, nil
}

func (c *brokerClient) describe(names []string) ([]topicInfo, error) {
	req := kmsg.NewPtrDescribeTopicPartitionsRequest()
	req.Version = 0
	req.ResponsePartitionLimit = 1000
	for _, name := range names {
		topic := kmsg.NewDescribeTopicPartitionsRequestTopic()
		topic.Topic = name
		req.Topics = append(req.Topics, topic)
	}
	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	return decodeDescribe(body)
}

// decodeDescribe reads the parts of a DescribeTopicPartitions v0 body the
// client reports on. The cursor is left unread.
func decodeDescribe(body []byte) ([]topicInfo, error) {
	r := protocol.NewReader(body)
	if _, err := r.Int32(); err != nil {
		return nil, fmt.Errorf("read throttle: %w", err)
	}
	topics, err := protocol.ReadCompactArray(r, func(r *protocol.Reader) (topicInfo, error) {
		var info topicInfo
		var err error
		if info.ErrorCode, err = r.Int16(); err != nil {
			return info, err
		}
		if info.Name, err = r.CompactString(); err != nil {
			return info, err
		}
		if info.ID, err = r.UUID(); err != nil {
			return info, err
		}
		if _, err = r.Bool(); err != nil {
			return info, err
		}
		info.Partitions, err = protocol.ReadCompactArray(r, func(r *protocol.Reader) (int32, error) {
			if _, err := r.Int16(); err != nil {
				return 0, err
			}
			index, err := r.Int32()
			if err != nil {
				return 0, err
			}
			if _, err := r.Read(8); err != nil {
				return 0, err
			}
			for i := 0; i < 5; i++ {
				if _, err := protocol.ReadCompactArray(r, protocol.Int32Elem); err != nil {
					return 0, err
				}
			}
			return index, r.SkipTaggedFields()
		})
		if err != nil {
			return info, err
		}
		if _, err = r.Int32(); err != nil {
			return info, err
		}
		return info, r.SkipTaggedFields()
	})
	if err != nil {
		return nil, fmt.Errorf("decode describe topic partitions: %w", err)
	}
	return topics, nil
}

func (c *brokerClient) produce(topic string, partition int32, batch []byte) (int64, error) {
	req := kmsg.NewPtrProduceRequest()
	req.Version = 11
	req.Acks = -1
	req.TimeoutMillis = int32(c.timeout / time.Millisecond)
	rt := kmsg.NewProduceRequestTopic()
	rt.Topic = topic
	rp := kmsg.NewProduceRequestTopicPartition()
	rp.Partition = partition
	rp.Records = batch
	rt.Partitions = append(rt.Partitions, rp)
	req.Topics = append(req.Topics, rt)
	body, err := c.do(req)
	if err != nil {
		return 0, err
	}
	resp := kmsg.NewPtrProduceResponse()
	resp.Version = 11
	if err := resp.ReadFrom(body); err != nil {
		return 0, fmt.Errorf("decode produce: %w", err)
	}
	if len(resp.Topics) != 1 || len(resp.Topics[0].Partitions) != 1 {
		return 0, fmt.Errorf("unexpected produce response shape")
	}
	part := resp.Topics[0].Partitions[0]
	if part.ErrorCode != protocol.NONE {
		return 0, fmt.Errorf("produce %s-%d: %s", topic, partition, protocol.ErrorName(part.ErrorCode))
	}
	return part.BaseOffset, nil
}

// fetch asks for the whole partition log. The request is written by hand so
// that no tagged fields are sent.
func (c *brokerClient) fetch(topicID uuid.UUID, partition int32) ([]byte, error) {
	corr := c.nextCorrelation()
	client := clientID
	w := protocol.NewWriter(96)
	protocol.EncodeRequestHeader(w, &protocol.RequestHeader{
		Key:           protocol.FetchV16,
		CorrelationID: corr,
		ClientID:      &client,
	})
	w.Int32(int32(c.timeout / time.Millisecond))
	w.Int32(1)
	w.Int32(50 << 20)
	w.Int8(0)
	w.Int32(0)
	w.Int32(-1)
	protocol.WriteCompactArray(w, []uuid.UUID{topicID}, func(w *protocol.Writer, id uuid.UUID) {
		w.UUID(id)
		protocol.WriteCompactArray(w, []int32{partition}, func(w *protocol.Writer, p int32) {
			w.Int32(p)
			w.Int32(-1)
			w.Int64(0)
			w.Int32(-1)
			w.Int64(-1)
			w.Int32(50 << 20)
			w.WriteTaggedFields()
		})
		w.WriteTaggedFields()
	})
	protocol.WriteCompactArray(w, []uuid.UUID{}, protocol.UUIDWriter)
	w.CompactString("")
	w.WriteTaggedFields()

	body, err := c.send(corr, w.Bytes(), true)
	if err != nil {
		return nil, err
	}
	resp := kmsg.NewPtrFetchResponse()
	resp.Version = 16
	if err := resp.ReadFrom(body); err != nil {
		return nil, fmt.Errorf("decode fetch: %w", err)
	}
	if resp.ErrorCode != protocol.NONE {
		return nil, fmt.Errorf("fetch: %s", protocol.ErrorName(resp.ErrorCode))
	}
	if len(resp.Topics) != 1 || len(resp.Topics[0].Partitions) != 1 {
		return nil, fmt.Errorf("unexpected fetch response shape")
	}
	part := resp.Topics[0].Partitions[0]
	if part.ErrorCode != protocol.NONE {
		return nil, fmt.Errorf("fetch %s-%d: %s", topicID, partition, protocol.ErrorName(part.ErrorCode))
	}
	return part.RecordBatches, nil
}
