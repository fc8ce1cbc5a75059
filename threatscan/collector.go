// Package threatscan buffers detected-threat reports and releases them to
// the consuming layer only after a settle delay, so a consumer that is still
// attaching its listener at scan time does not miss the batch.
package threatscan

import (
	"log/slog"
	"slices"
	"time"

	"github.com/sistema-id/smarttoken-provisioning/events"
	"github.com/sistema-id/smarttoken-provisioning/interfaces"
)

// SettleDelay is the fixed delay between a completed scan and the delivery
// of its results. This is a startup-ordering workaround, not a business
// rule.
const SettleDelay = 5 * time.Second

// Sink receives one batch of threat reports.
type Sink func([]interfaces.ThreatReport)

// Collector schedules one single-shot delivery per completed scan. Timers
// are independent and never renewed: if a second scan completes before the
// first delivery fires, both deliveries occur, and duplicates are
// acceptable.
type Collector struct {
	delay time.Duration
	sink  Sink
	log   *slog.Logger
}

// New creates a collector delivering to sink after delay. Pass SettleDelay
// outside of tests.
func New(delay time.Duration, sink Sink, log *slog.Logger) *Collector {
	return &Collector{delay: delay, sink: sink, log: log}
}

// OnScanComplete schedules delivery of the batch after the settle delay.
func (c *Collector) OnScanComplete(reports []interfaces.ThreatReport) {
	batch := slices.Clone(reports)
	c.log.Info("Scan complete, scheduling delivery", "threats", len(batch), "delay", c.delay)
	time.AfterFunc(c.delay, func() {
		c.sink(batch)
	})
}

// OnEvent adapts the collector to the broadcast router.
func (c *Collector) OnEvent(ev events.Event) {
	if ev.Kind != events.ScanComplete {
		return
	}
	c.OnScanComplete(ev.Threats)
}
