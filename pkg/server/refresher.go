// Package server schedules background refresh of aggregated prices so
// the cache and WebSocket clients stay warm between API requests.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Galaxy-KJ/galaxy-oracle/pkg/logging"
	"github.com/Galaxy-KJ/galaxy-oracle/pkg/oracle"
)

const refreshTimeout = 30 * time.Second

// Engine is the aggregation surface the refresher drives.
type Engine interface {
	GetAggregatedPrices(ctx context.Context, symbols []string) (map[string]oracle.AggregatedPrice, error)
}

// Broadcaster receives refreshed prices for streaming to clients.
type Broadcaster interface {
	SendUpdate(prices map[string]oracle.AggregatedPrice)
}

// Refresher periodically aggregates a fixed set of symbols.
type Refresher struct {
	engine      Engine
	broadcaster Broadcaster
	symbols     []string
	schedule    string
	timeout     time.Duration
	logger      *logging.Logger
	cron        *cron.Cron
}

// NewRefresher creates a refresher for the given symbols. The schedule
// accepts cron expressions and @every descriptors.
func NewRefresher(engine Engine, symbols []string, schedule string, logger *logging.Logger) *Refresher {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Refresher{
		engine:   engine,
		symbols:  symbols,
		schedule: schedule,
		timeout:  refreshTimeout,
		logger:   logger,
		cron:     cron.New(),
	}
}

// SetBroadcaster sets the optional streaming sink for refreshed prices.
func (r *Refresher) SetBroadcaster(b Broadcaster) {
	r.broadcaster = b
}

// Start registers the refresh job and starts the scheduler.
func (r *Refresher) Start() error {
	if len(r.symbols) == 0 {
		r.logger.Warn("No refresh symbols configured, refresher idle")
		return nil
	}
	if _, err := r.cron.AddFunc(r.schedule, r.refresh); err != nil {
		return fmt.Errorf("register refresh job: %w", err)
	}
	r.cron.Start()
	r.logger.Info("Refresher started", "schedule", r.schedule, "symbols", len(r.symbols))
	return nil
}

// Stop stops the scheduler and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info("Refresher stopped")
}

// RunNow triggers a refresh immediately, outside the schedule.
func (r *Refresher) RunNow() {
	r.refresh()
}

func (r *Refresher) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	prices, err := r.engine.GetAggregatedPrices(ctx, r.symbols)
	if err != nil {
		r.logger.Warn("Scheduled refresh failed", "error", err.Error())
		return
	}
	if len(prices) < len(r.symbols) {
		r.logger.Warn("Scheduled refresh incomplete", "got", len(prices), "want", len(r.symbols))
	}

	if r.broadcaster != nil && len(prices) > 0 {
		r.broadcaster.SendUpdate(prices)
	}
	r.logger.Debug("Scheduled refresh complete", "symbols", len(prices))
}
