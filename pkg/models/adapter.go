package models

import "time"

// AdapterStats is what every module adapter's `statistics()` call returns
// (§3.2, §4.5), and what gets mirrored into Prometheus counters/histograms
// labeled by adapter name.
type AdapterStats struct {
	EventsProcessed uint64        `json:"events_processed"`
	Errors          uint64        `json:"errors"`
	LastLatency     time.Duration `json:"last_latency"`
	AvgLatency      time.Duration `json:"avg_latency"`
	ProcessedTotal  uint64        `json:"processed_total"`
}
