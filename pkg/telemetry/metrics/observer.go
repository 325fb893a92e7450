package metrics

import "time"

// RequestDispatched counts a request handed to an executor.
func (c *Collector) RequestDispatched(model string) {
	c.requestsDispatched.WithLabelValues(model).Inc()
}

// RequestFinished records a terminal outcome and the request duration.
func (c *Collector) RequestFinished(model, status string, duration time.Duration) {
	c.requestsFinished.WithLabelValues(model, status).Inc()
	c.requestDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// QueueWait records time spent waiting for a free executor.
func (c *Collector) QueueWait(d time.Duration) {
	c.queueWait.Observe(d.Seconds())
}

// FrameDropped counts an executor frame with no matching request.
func (c *Collector) FrameDropped() {
	c.framesDropped.Inc()
}
