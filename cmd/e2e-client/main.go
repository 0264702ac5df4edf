package main

import (
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/novatechflow/minikaf/pkg/storage"
)

func main() {
	mode := strings.ToLower(envOrDefault("MINIKAF_E2E_MODE", "apiversions"))
	brokerAddr := envOrDefault("MINIKAF_E2E_BROKER_ADDR", "127.0.0.1:9092")
	topic := strings.TrimSpace(os.Getenv("MINIKAF_E2E_TOPIC"))
	partition := int32(parseEnvInt("MINIKAF_E2E_PARTITION", 0))
	count := parseEnvInt("MINIKAF_E2E_COUNT", 1)
	timeout := time.Duration(parseEnvInt("MINIKAF_E2E_TIMEOUT_SEC", 10)) * time.Second

	if mode == "probe" {
		addrs := parseCSVAddrs(os.Getenv("MINIKAF_E2E_ADDRS"))
		if len(addrs) == 0 {
			log.Fatalf("MINIKAF_E2E_ADDRS is required for probe mode")
		}
		retries := parseEnvInt("MINIKAF_E2E_PROBE_RETRIES", 5)
		if retries < 1 {
			retries = 1
		}
		sleep := time.Duration(parseEnvInt("MINIKAF_E2E_PROBE_SLEEP_MS", 200)) * time.Millisecond
		if err := probeAddrs(addrs, 2*time.Second, retries, sleep, dialAddr); err != nil {
			log.Fatalf("probe: %v", err)
		}
		log.Printf("probed %d addresses", len(addrs))
		return
	}

	client, err := dialBroker(brokerAddr, timeout)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer client.Close()

	switch mode {
	case "apiversions":
		keys, err := client.apiVersions()
		if err != nil {
			log.Fatalf("api versions: %v", err)
		}
		for _, k := range keys {
			log.Printf("api key %d versions %d-%d", k.ApiKey, k.MinVersion, k.MaxVersion)
		}
	case "describe":
		names := parseCSVAddrs(topic)
		if len(names) == 0 {
			log.Fatalf("MINIKAF_E2E_TOPIC is required")
		}
		topics, err := client.describe(names)
		if err != nil {
			log.Fatalf("describe: %v", err)
		}
		for _, t := range topics {
			log.Printf("topic %s id=%s error=%d partitions=%v", t.Name, t.ID, t.ErrorCode, t.Partitions)
		}
	case "produce":
		if topic == "" {
			log.Fatalf("MINIKAF_E2E_TOPIC is required")
		}
		if count <= 0 {
			log.Fatalf("MINIKAF_E2E_COUNT must be > 0")
		}
		offsets, err := produceBatches(client, topic, partition, count)
		if err != nil {
			log.Fatalf("produce: %v", err)
		}
		log.Printf("produced %d batches to %s-%d at offsets %v", count, topic, partition, offsets)
	case "fetch":
		if topic == "" {
			log.Fatalf("MINIKAF_E2E_TOPIC is required")
		}
		batches, err := fetchBatches(client, topic, partition)
		if err != nil {
			log.Fatalf("fetch: %v", err)
		}
		if len(batches) < count {
			log.Fatalf("expected at least %d batches in %s-%d, got %d", count, topic, partition, len(batches))
		}
		log.Printf("fetched %d batches from %s-%d", len(batches), topic, partition)
	default:
		log.Fatalf("unknown MINIKAF_E2E_MODE %q", mode)
	}
}

func produceBatches(client *brokerClient, topic string, partition int32, count int) ([]int64, error) {
	offsets := make([]int64, 0, count)
	for i := 0; i < count; i++ {
		now := time.Now().UnixMilli()
		batch := storage.EncodeRecordBatch(storage.RecordBatch{
			Magic:         2,
			BaseTimestamp: now,
			MaxTimestamp:  now,
			ProducerID:    -1,
			ProducerEpoch: -1,
			BaseSequence:  int32(i),
			Records:       []storage.Record{},
		})
		offset, err := client.produce(topic, partition, batch)
		if err != nil {
			return offsets, err
		}
		offsets = append(offsets, offset)
	}
	return offsets, nil
}

func fetchBatches(client *brokerClient, topic string, partition int32) ([]storage.RecordBatch, error) {
	topics, err := client.describe([]string{topic})
	if err != nil {
		return nil, err
	}
	if len(topics) != 1 || topics[0].ErrorCode != 0 {
		return nil, fmt.Errorf("topic %s not found", topic)
	}
	raw, err := client.fetch(topics[0].ID, partition)
	if err != nil {
		return nil, err
	}
	batches, err := storage.DecodeRecordBatches(raw)
	if err != nil {
		return batches, fmt.Errorf("decode fetched log: %w", err)
	}
	return batches, nil
}

type dialFunc func(addr string, timeout time.Duration) error

func dialAddr(addr string, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return err
	}
	return conn.Close()
}

func probeAddrs(addrs []string, timeout time.Duration, retries int, sleep time.Duration, dial dialFunc) error {
	for _, addr := range addrs {
		var lastErr error
		for attempt := 0; attempt < retries; attempt++ {
			if err := dial(addr, timeout); err == nil {
				lastErr = nil
				break
			} else {
				lastErr = err
			}
			time.Sleep(sleep)
		}
		if lastErr != nil {
			return fmt.Errorf("probe %s failed: %w", addr, lastErr)
		}
	}
	return nil
}

func parseCSVAddrs(raw string) []string {
	parts := strings.Split(raw, ",")
	addrs := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		addrs = append(addrs, part)
	}
	return addrs
}

func envOrDefault(name, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(name)); val != "" {
		return val
	}
	return fallback
}

func parseEnvInt(name string, fallback int) int {
	val := strings.TrimSpace(os.Getenv(name))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}
