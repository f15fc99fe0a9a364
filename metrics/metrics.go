// Package metrics provides an optional Prometheus collector recording
// frame/ack/timeout counts and pipeline queue depth. Wiring it in is
// strictly opt-in: an autd.Facade built without WithMetrics never
// touches this package. The collector is a mutex-guarded accumulator
// implementing prometheus.Collector directly, not a set of
// package-level MustRegister globals, so multiple Facades in one
// process (tests, multi-array setups) each get independent counters.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector accumulates AUTD protocol-level counts and exposes them as
// a prometheus.Collector. The zero value is not usable; construct with
// New.
type Collector struct {
	mu sync.Mutex

	framesSent    uint64
	acksProcessed uint64
	waitTimeouts  uint64
	pipelineDepth float64
	sendErrors    uint64

	constLabels prometheus.Labels

	framesSentDesc    *prometheus.Desc
	acksProcessedDesc *prometheus.Desc
	waitTimeoutsDesc  *prometheus.Desc
	pipelineDepthDesc *prometheus.Desc
	sendErrorsDesc    *prometheus.Desc
}

// New returns a Collector. constLabels (may be nil) are attached to
// every metric it exports, e.g. {"array": "bench-1"} to distinguish
// multiple arrays scraped by the same process.
func New(constLabels prometheus.Labels) *Collector {
	c := &Collector{constLabels: constLabels}
	c.framesSentDesc = prometheus.NewDesc(
		"autdhost_frames_sent_total", "Frames handed to the transport's Send.", nil, constLabels)
	c.acksProcessedDesc = prometheus.NewDesc(
		"autdhost_acks_processed_total", "Acknowledgement reads that matched every device.", nil, constLabels)
	c.waitTimeoutsDesc = prometheus.NewDesc(
		"autdhost_wait_timeouts_total", "WaitMsgProcessed calls that exhausted their trial budget.", nil, constLabels)
	c.pipelineDepthDesc = prometheus.NewDesc(
		"autdhost_pipeline_queue_depth", "Most recently observed PipelineAsync input queue depth.", nil, constLabels)
	c.sendErrorsDesc = prometheus.NewDesc(
		"autdhost_send_errors_total", "Transport.Send calls that returned an error.", nil, constLabels)
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.framesSentDesc
	descs <- c.acksProcessedDesc
	descs <- c.waitTimeoutsDesc
	descs <- c.pipelineDepthDesc
	descs <- c.sendErrorsDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch <- prometheus.MustNewConstMetric(c.framesSentDesc, prometheus.CounterValue, float64(c.framesSent))
	ch <- prometheus.MustNewConstMetric(c.acksProcessedDesc, prometheus.CounterValue, float64(c.acksProcessed))
	ch <- prometheus.MustNewConstMetric(c.waitTimeoutsDesc, prometheus.CounterValue, float64(c.waitTimeouts))
	ch <- prometheus.MustNewConstMetric(c.pipelineDepthDesc, prometheus.GaugeValue, c.pipelineDepth)
	ch <- prometheus.MustNewConstMetric(c.sendErrorsDesc, prometheus.CounterValue, float64(c.sendErrors))
}

// RecordFrameSent increments the sent-frame counter.
func (c *Collector) RecordFrameSent() {
	c.mu.Lock()
	c.framesSent++
	c.mu.Unlock()
}

// RecordSendError increments the send-error counter.
func (c *Collector) RecordSendError() {
	c.mu.Lock()
	c.sendErrors++
	c.mu.Unlock()
}

// RecordAckProcessed increments the matched-ack counter.
func (c *Collector) RecordAckProcessed() {
	c.mu.Lock()
	c.acksProcessed++
	c.mu.Unlock()
}

// RecordWaitTimeout increments the wait-timeout counter.
func (c *Collector) RecordWaitTimeout() {
	c.mu.Lock()
	c.waitTimeouts++
	c.mu.Unlock()
}

// SetPipelineDepth records the most recently observed queue depth.
func (c *Collector) SetPipelineDepth(depth int) {
	c.mu.Lock()
	c.pipelineDepth = float64(depth)
	c.mu.Unlock()
}
