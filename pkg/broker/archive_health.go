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
	"log/slog"
	"sync"
	"time"
)

// ArchiveState is the broker's view of the partition log archive.
type ArchiveState string

const (
	ArchiveHealthy     ArchiveState = "healthy"
	ArchiveDegraded    ArchiveState = "degraded"
	ArchiveUnavailable ArchiveState = "unavailable"
)

// ArchiveHealthConfig sets the thresholds between states. Zero values pick
// defaults.
type ArchiveHealthConfig struct {
	Window      time.Duration
	LatencyWarn time.Duration
	LatencyCrit time.Duration
	ErrorWarn   float64
	ErrorCrit   float64
	MaxSamples  int
	Logger      *slog.Logger
}

// ArchiveHealth aggregates recent archive operations into a state.
type ArchiveHealth struct {
	cfg    ArchiveHealthConfig
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	samples []archiveSample
	status  ArchiveStatus
}

type archiveSample struct {
	at      time.Time
	latency time.Duration
	failed  bool
}

// ArchiveStatus is a point-in-time copy of the aggregates.
type ArchiveStatus struct {
	State      ArchiveState
	Since      time.Time
	AvgLatency time.Duration
	ErrorRate  float64
	LastOp     string
}

func NewArchiveHealth(cfg ArchiveHealthConfig) *ArchiveHealth {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.LatencyWarn <= 0 {
		cfg.LatencyWarn = 500 * time.Millisecond
	}
	if cfg.LatencyCrit <= 0 {
		cfg.LatencyCrit = 3 * time.Second
	}
	if cfg.ErrorWarn <= 0 {
		cfg.ErrorWarn = 0.2
	}
	if cfg.ErrorCrit <= 0 {
		cfg.ErrorCrit = 0.6
	}
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = 256
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &ArchiveHealth{cfg: cfg, logger: logger, now: time.Now}
	h.status = ArchiveStatus{State: ArchiveHealthy, Since: h.now()}
	return h
}

// Observe records one archive operation; it matches storage.ArchiverConfig.OnS3Op.
func (h *ArchiveHealth) Observe(op string, latency time.Duration, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.now()
	h.samples = append(h.samples, archiveSample{at: now, latency: latency, failed: err != nil})
	if over := len(h.samples) - h.cfg.MaxSamples; over > 0 {
		h.samples = h.samples[over:]
	}
	cutoff := now.Add(-h.cfg.Window)
	for len(h.samples) > 0 && !h.samples[0].at.After(cutoff) {
		h.samples = h.samples[1:]
	}
	h.status.LastOp = op
	h.recomputeLocked(now)
}

func (h *ArchiveHealth) recomputeLocked(now time.Time) {
	var total time.Duration
	failures := 0
	for _, s := range h.samples {
		total += s.latency
		if s.failed {
			failures++
		}
	}
	next := ArchiveHealthy
	if n := len(h.samples); n > 0 {
		h.status.AvgLatency = total / time.Duration(n)
		h.status.ErrorRate = float64(failures) / float64(n)
		switch {
		case h.status.AvgLatency >= h.cfg.LatencyCrit || h.status.ErrorRate >= h.cfg.ErrorCrit:
			next = ArchiveUnavailable
		case h.status.AvgLatency >= h.cfg.LatencyWarn || h.status.ErrorRate >= h.cfg.ErrorWarn:
			next = ArchiveDegraded
		}
	} else {
		h.status.AvgLatency = 0
		h.status.ErrorRate = 0
	}
	if next == h.status.State {
		return
	}
	h.logger.Warn("archive state changed", "from", h.status.State, "to", next, "error_rate", h.status.ErrorRate, "avg_latency", h.status.AvgLatency)
	h.status.State = next
	h.status.Since = now
}

// Status returns the current aggregates.
func (h *ArchiveHealth) Status() ArchiveStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Ready reports false only while the archive is unavailable. A nil
// *ArchiveHealth is always ready.
func (h *ArchiveHealth) Ready() bool {
	if h == nil {
		return true
	}
	return h.Status().State != ArchiveUnavailable
}
