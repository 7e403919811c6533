package notify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/kosarica/deal-service/internal/metrics"
)

// DispatcherConfig sizes the delivery queue
type DispatcherConfig struct {
	QueueSize       int           `mapstructure:"queue_size"`
	Workers         int           `mapstructure:"workers"`
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
}

// DefaultDispatcherConfig returns the default queue settings
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		QueueSize:       256,
		Workers:         2,
		DeliveryTimeout: 30 * time.Second,
	}
}

// Dispatcher delivers alerts on background workers. Submit never blocks:
// alerts are dropped with a warning when the queue is full.
type Dispatcher struct {
	notifier Notifier
	config   DispatcherConfig
	logger   *zerolog.Logger
	metrics  *metrics.Recorder
	queue    chan Alert
	stopChan chan struct{}
	stopped  atomic.Bool
	started  atomic.Bool
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher around notifier
func NewDispatcher(notifier Notifier, config DispatcherConfig, logger *zerolog.Logger) *Dispatcher {
	def := DefaultDispatcherConfig()
	if config.QueueSize <= 0 {
		config.QueueSize = def.QueueSize
	}
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	if config.DeliveryTimeout <= 0 {
		config.DeliveryTimeout = def.DeliveryTimeout
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Dispatcher{
		notifier: notifier,
		config:   config,
		logger:   logger,
		metrics:  metrics.NewRecorder(),
		queue:    make(chan Alert, config.QueueSize),
		stopChan: make(chan struct{}),
	}
}

// Start launches the workers. They run until ctx is cancelled or Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	if !d.started.CompareAndSwap(false, true) {
		return
	}
	d.logger.Info().
		Str("component", "dispatcher").
		Int("workers", d.config.Workers).
		Int("queue_size", d.config.QueueSize).
		Msg("Starting notification dispatcher")

	for i := 0; i < d.config.Workers; i++ {
		d.wg.Add(1)
		go d.workerLoop(ctx, i)
	}
}

// Submit enqueues an alert and reports whether it was accepted
func (d *Dispatcher) Submit(alert Alert) bool {
	if d.stopped.Load() {
		d.metrics.RecordNotification(string(alert.Kind), "dropped")
		return false
	}
	select {
	case d.queue <- alert:
		d.metrics.SetQueueDepth(len(d.queue))
		return true
	default:
		d.metrics.RecordNotification(string(alert.Kind), "dropped")
		d.logger.Warn().
			Str("alert_id", alert.ID).
			Str("kind", string(alert.Kind)).
			Str("target", alert.Target).
			Msg("Notification queue full, dropping alert")
		return false
	}
}

// Stop stops accepting alerts, delivers what is already queued and waits for
// the workers to exit
func (d *Dispatcher) Stop() {
	if !d.stopped.CompareAndSwap(false, true) {
		return
	}
	close(d.stopChan)
	d.logger.Info().Str("component", "dispatcher").Msg("Dispatcher stopping, draining queue")
	d.wg.Wait()
	d.logger.Info().Str("component", "dispatcher").Msg("Dispatcher stopped")
}

func (d *Dispatcher) workerLoop(ctx context.Context, n int) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopChan:
			d.drain(context.WithoutCancel(ctx))
			return
		case alert := <-d.queue:
			d.deliver(ctx, alert, n)
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case alert := <-d.queue:
			d.deliver(ctx, alert, -1)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, alert Alert, worker int) {
	d.metrics.SetQueueDepth(len(d.queue))

	ctx, cancel := context.WithTimeout(ctx, d.config.DeliveryTimeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("notifier panic: %v", r)
			}
		}()
		return d.notifier.Notify(ctx, alert)
	}()

	if err != nil {
		d.metrics.RecordNotification(string(alert.Kind), "failed")
		d.logger.Error().
			Err(err).
			Int("worker", worker).
			Str("alert_id", alert.ID).
			Str("kind", string(alert.Kind)).
			Str("target", alert.Target).
			Msg("Notification failed")
		return
	}
	d.metrics.RecordNotification(string(alert.Kind), "sent")
}
