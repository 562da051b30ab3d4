package provisioning

import (
	"context"
	"sync"
	"time"

	"github.com/Johanhagos/mijn-api/internal/config"
	"github.com/Johanhagos/mijn-api/internal/observability/metrics"
	"github.com/Johanhagos/mijn-api/internal/provisioning/domain"
	"go.uber.org/zap"
)

// Consumer retries due provisioning jobs and sweeps for paid sessions that
// never got one.
type Consumer struct {
	svc          domain.Service
	log          *zap.Logger
	worker       *metrics.WorkerMetrics
	pollInterval time.Duration
	sweepEvery   int

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewConsumer(svc domain.Service, cfg config.Config, log *zap.Logger, worker *metrics.WorkerMetrics) *Consumer {
	interval := cfg.Provisioning.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Consumer{
		svc:          svc,
		log:          log.Named("provisioning.consumer"),
		worker:       worker,
		pollInterval: interval,
		sweepEvery:   12,
		stop:         make(chan struct{}),
	}
}

func (c *Consumer) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.loop()
	}()
}

func (c *Consumer) Stop(ctx context.Context) error {
	close(c.stop)
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Consumer) loop() {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-c.stop
		cancel()
	}()

	tick := 0
	last := time.Now()
	for {
		// sweep on the first tick so a restart closes the crash window quickly
		if tick%c.sweepEvery == 0 {
			c.sweep(ctx)
		}
		c.poll(ctx)
		tick++

		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.worker.ObserveRunLoopLag(now.Sub(last) - c.pollInterval)
			last = now
		}
	}
}

func (c *Consumer) poll(ctx context.Context) {
	if _, err := c.svc.RunDue(ctx); err != nil && ctx.Err() == nil {
		c.worker.IncJobError(metrics.WorkerJobProvisioning, err)
		c.log.Error("provisioning poll failed", zap.Error(err))
	}
}

func (c *Consumer) sweep(ctx context.Context) {
	start := time.Now()
	c.worker.IncJobRun(metrics.WorkerJobSweep)
	n, err := c.svc.SweepPaid(ctx)
	c.worker.ObserveJobDuration(metrics.WorkerJobSweep, time.Since(start))
	if err != nil && ctx.Err() == nil {
		c.worker.IncJobError(metrics.WorkerJobSweep, err)
		c.log.Error("paid session sweep failed", zap.Error(err))
		return
	}
	c.worker.AddBatchProcessed(metrics.WorkerJobSweep, "sessions", n)
}
