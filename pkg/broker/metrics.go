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
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "minikaf"

// Request outcomes recorded by Metrics.
const (
	resultOK         = "ok"
	resultErrorFrame = "error_frame"
	resultFailed     = "failed"
)

// Metrics holds the broker's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	produceBytes   *prometheus.CounterVec
	fetchBytes     *prometheus.CounterVec
	nextOffset     *prometheus.GaugeVec
	s3Ops          *prometheus.CounterVec
	s3Latency      *prometheus.HistogramVec
	connections    prometheus.Gauge
	topics         prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Kafka requests by api and result.",
			},
			[]string{"api", "result"},
		),
		requestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_latency_seconds",
				Help:      "Kafka request handling latency.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"api"},
		),
		produceBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "produce_bytes_total",
				Help:      "Record batch bytes appended by topic.",
			},
			[]string{"topic"},
		),
		fetchBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_bytes_total",
				Help:      "Log bytes served to fetch requests by topic.",
			},
			[]string{"topic"},
		),
		nextOffset: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "partition_last_appended_offset",
				Help:      "Base offset of the last batch appended to a partition.",
			},
			[]string{"topic", "partition"},
		),
		s3Ops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "s3_operations_total",
				Help:      "Archive object store operations by operation and result.",
			},
			[]string{"operation", "result"},
		),
		s3Latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "s3_operation_latency_seconds",
				Help:      "Archive object store operation latency.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		connections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "open_connections",
				Help:      "Client connections currently being served.",
			},
		),
		topics: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "metadata_topics",
				Help:      "Topics loaded from the cluster metadata log.",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.requests,
			m.requestLatency,
			m.produceBytes,
			m.fetchBytes,
			m.nextOffset,
			m.s3Ops,
			m.s3Latency,
			m.connections,
			m.topics,
		)
	}
	return m
}

func (m *Metrics) observeRequest(api, result string, latency time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(api, result).Inc()
	m.requestLatency.WithLabelValues(api).Observe(latency.Seconds())
}

func (m *Metrics) addProduceBytes(topic string, n int) {
	if m == nil {
		return
	}
	m.produceBytes.WithLabelValues(topic).Add(float64(n))
}

func (m *Metrics) addFetchBytes(topic string, n int) {
	if m == nil {
		return
	}
	m.fetchBytes.WithLabelValues(topic).Add(float64(n))
}

func (m *Metrics) setLastAppended(topic string, partition int32, offset int64) {
	if m == nil {
		return
	}
	m.nextOffset.WithLabelValues(topic, strconv.Itoa(int(partition))).Set(float64(offset))
}

func (m *Metrics) connectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) connectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

// SetTopics records how many topics the metadata directory holds.
func (m *Metrics) SetTopics(n int) {
	if m == nil {
		return
	}
	m.topics.Set(float64(n))
}

// ObserveS3Op records an archive operation; it matches ArchiverConfig.OnS3Op.
func (m *Metrics) ObserveS3Op(op string, latency time.Duration, err error) {
	if m == nil {
		return
	}
	result := resultOK
	if err != nil {
		result = resultFailed
	}
	m.s3Ops.WithLabelValues(op, result).Inc()
	m.s3Latency.WithLabelValues(op).Observe(latency.Seconds())
}
