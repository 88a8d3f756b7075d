// Package dispatch runs best-effort side effects on a bounded worker pool.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/smallbiznis/payout/internal/config"
	obsmetrics "github.com/smallbiznis/payout/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrStopped = errors.New("dispatcher_stopped")

// Task is a named unit of work. Its error is logged and never returned to the submitter.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Config  *config.PayoutConfigHolder
	Metrics *obsmetrics.SettlementMetrics `optional:"true"`
}

type Dispatcher struct {
	log     *zap.Logger
	metrics *obsmetrics.SettlementMetrics
	queue   chan queued
	workers int

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

type queued struct {
	ctx  context.Context
	task Task
}

func New(p Params) *Dispatcher {
	cfg := p.Config.Get()
	return NewDispatcher(p.Log, p.Metrics, cfg.DispatchWorkers, cfg.DispatchQueueSize)
}

func NewDispatcher(log *zap.Logger, metrics *obsmetrics.SettlementMetrics, workers, queueSize int) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers
	}
	return &Dispatcher{
		log:     log.Named("dispatch"),
		metrics: metrics,
		queue:   make(chan queued, queueSize),
		workers: workers,
	}
}

// Start launches the workers.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
}

// Submit enqueues task without blocking. A full queue drops the task.
func (d *Dispatcher) Submit(ctx context.Context, task Task) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		d.metrics.IncDispatchTask(task.Name, "rejected")
		return ErrStopped
	}
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- queued{ctx: context.WithoutCancel(ctx), task: task}:
		return nil
	default:
		d.metrics.IncDispatchTask(task.Name, "dropped")
		d.log.Warn("dispatch queue full, dropping task", zap.String("task", task.Name))
		return nil
	}
}

// Stop refuses new tasks and waits for queued ones until ctx is done.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.log.Warn("dispatch drain interrupted", zap.Int("pending", len(d.queue)))
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for item := range d.queue {
		d.run(item)
	}
}

func (d *Dispatcher) run(item queued) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.metrics.IncDispatchTask(item.task.Name, "panic")
			d.log.Error("panic in dispatch task",
				zap.String("task", item.task.Name),
				zap.Any("recover", r),
			)
		}
	}()

	if err := item.task.Run(item.ctx); err != nil {
		d.metrics.IncDispatchTask(item.task.Name, "error")
		d.log.Error("dispatch task failed",
			zap.String("task", item.task.Name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return
	}
	d.metrics.IncDispatchTask(item.task.Name, "ok")
}
