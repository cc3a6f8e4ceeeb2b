// Package crontab schedules the gateway's background maintenance: the idle
// handle sweep and the quota counter flush. Counters live in memory and are
// persisted on a timer and once more on shutdown, never synchronously per
// request.
package crontab

import (
	"context"
	"fmt"
	"time"

	"github.com/mileusna/crontab"

	"llm-gateway/internal/domain/quota"
	"llm-gateway/internal/infrastructure/logger"
	"llm-gateway/internal/infrastructure/metrics"
	"llm-gateway/internal/infrastructure/registry"
	"llm-gateway/internal/utils/platformerrors"
)

const CronJobTimeout = time.Minute

type Crontab struct {
	ctab       *crontab.Crontab
	registry   *registry.Registry
	quota      *quota.Tracker
	quotaStore quota.Store

	sweepEvery time.Duration
	flushEvery time.Duration
}

// NewCrontab wires the maintenance jobs. quotaStore may be nil; flushing is
// skipped without one.
func NewCrontab(reg *registry.Registry, tracker *quota.Tracker, store quota.Store, sweepEvery, flushEvery time.Duration) *Crontab {
	return &Crontab{
		ctab:       crontab.New(),
		registry:   reg,
		quota:      tracker,
		quotaStore: store,
		sweepEvery: sweepEvery,
		flushEvery: flushEvery,
	}
}

// Run blocks until ctx is done, then flushes one last time and stops the
// scheduler.
func (c *Crontab) Run(ctx context.Context) error {
	if err := c.ctab.AddJob(cronExpr(c.sweepEvery), c.sweepHandles); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "failed to add handle sweep job")
	}
	if c.quotaStore != nil {
		if err := c.ctab.AddJob(cronExpr(c.flushEvery), c.flushQuota); err != nil {
			return platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "failed to add quota flush job")
		}
	}

	<-ctx.Done()
	c.finalFlush()
	c.ctab.Shutdown()
	return nil
}

func (c *Crontab) sweepHandles() {
	evicted := c.registry.Sweep()
	metrics.RecordSwept(evicted)

	total := 0
	for _, n := range c.registry.ActiveHandleCounts() {
		total += n
	}
	metrics.SetActiveHandles(total)
}

func (c *Crontab) flushQuota() {
	ctx, cancel := context.WithTimeout(context.Background(), CronJobTimeout)
	defer cancel()
	if err := c.quota.FlushTo(ctx, c.quotaStore); err != nil {
		logger.Component("crontab").Error().Err(err).Msg("quota flush failed")
	}
}

func (c *Crontab) finalFlush() {
	if c.quotaStore == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), CronJobTimeout)
	defer cancel()
	if err := c.quota.FlushTo(ctx, c.quotaStore); err != nil {
		logger.Component("crontab").Error().Err(err).Msg("shutdown quota flush failed")
	}
}

// cronExpr renders a minute-granularity schedule; sub-minute intervals
// round up to one minute.
func cronExpr(every time.Duration) string {
	minutes := int(every.Minutes())
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("*/%d * * * *", minutes)
}
