package usage

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// RecorderConfig contains configuration for the async recorder.
type RecorderConfig struct {
	// Enabled enables usage recording.
	Enabled bool

	// BufferSize is the capacity of the async write channel.
	// Default: 1000
	BufferSize int

	// WriteTimeout is the timeout for writing a record to storage.
	// Default: 5 seconds
	WriteTimeout time.Duration
}

// DefaultRecorderConfig returns the default recorder configuration.
func DefaultRecorderConfig() *RecorderConfig {
	return &RecorderConfig{
		Enabled:      true,
		BufferSize:   1000,
		WriteTimeout: 5 * time.Second,
	}
}

// Recorder writes usage records asynchronously so the request path never
// blocks on storage. It satisfies the broker's UsageRecorder interface.
type Recorder struct {
	store   Store
	config  *RecorderConfig
	records chan *Record
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Int64
	logger  *slog.Logger
}

// NewRecorder creates a recorder over the given store and starts its
// background writer.
func NewRecorder(store Store, config *RecorderConfig) *Recorder {
	if config == nil {
		config = DefaultRecorderConfig()
	}

	r := &Recorder{
		store:   store,
		config:  config,
		records: make(chan *Record, config.BufferSize),
		done:    make(chan struct{}),
		logger:  slog.Default().With("component", "usage.recorder"),
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("usage recorder initialized",
		"buffer_size", config.BufferSize,
		"write_timeout", config.WriteTimeout,
	)
	return r
}

// Record enqueues one usage record. When the buffer is full the record is
// dropped and counted; usage accounting never applies backpressure to the
// request path.
func (r *Recorder) Record(principal, model string, latency time.Duration, statusCode int) {
	if !r.config.Enabled {
		return
	}

	rec := &Record{
		ID:         uuid.New().String(),
		Principal:  principal,
		Model:      model,
		StatusCode: statusCode,
		Latency:    latency,
		CreatedAt:  time.Now(),
	}

	select {
	case r.records <- rec:
	default:
		dropped := r.dropped.Add(1)
		r.logger.Warn("usage record buffer full, dropping record",
			"model", model,
			"dropped_total", dropped,
		)
	}
}

// Dropped returns how many records have been dropped due to a full buffer.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close drains the buffer and stops the background writer.
func (r *Recorder) Close() error {
	r.logger.Info("shutting down usage recorder")
	close(r.done)
	r.wg.Wait()
	return nil
}

// worker drains the record channel and writes to storage.
func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case rec := <-r.records:
			r.writeRecord(rec)

		case <-r.done:
			// Drain remaining records before exit.
			for {
				select {
				case rec := <-r.records:
					r.writeRecord(rec)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) writeRecord(rec *Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	if err := r.store.Insert(ctx, rec); err != nil {
		r.logger.Error("failed to store usage record",
			"record_id", rec.ID,
			"model", rec.Model,
			"error", err,
		)
		return
	}

	r.logger.Debug("usage recorded",
		"record_id", rec.ID,
		"principal", rec.Principal,
		"model", rec.Model,
		"status_code", rec.StatusCode,
		"latency_ms", rec.Latency.Milliseconds(),
	)
}
