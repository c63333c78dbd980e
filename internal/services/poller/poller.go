package poller

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/litperpro/litper/internal/broker/messages"
	"github.com/litperpro/litper/internal/metrics"
	"github.com/litperpro/litper/internal/models"
)

type Repository interface {
	ClaimDueShipments(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Shipment, error)
}

// Tracker: сервис отслеживания; воркер всегда ходит мимо кэша.
type Tracker interface {
	GetTracking(ctx context.Context, trackingNumber string, c models.CarrierType, useCache bool) models.TrackingResult
}

type Producer interface {
	PublishJSON(ctx context.Context, topic, key string, v any) error
}

type Poller struct {
	repo     Repository
	tracker  Tracker
	producer Producer

	topic string

	planner *Planner
	now     func() time.Time

	pollInterval   time.Duration
	batchSize      int
	concurrency    int
	lease          time.Duration
	publishRetries int

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalProcessed      atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, tracker Tracker, producer Producer, topic string) *Poller {
	return &Poller{
		repo: repo, tracker: tracker, producer: producer, topic: topic,
		planner:           NewPlanner(DefaultPlannerConfig(), nil),
		now:               func() time.Time { return time.Now().UTC() },
		pollInterval:      2 * time.Second,
		batchSize:         100,
		concurrency:       10,
		lease:             120 * time.Second,
		publishRetries:    10,
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (p *Poller) WithSettings(pollInterval time.Duration, batchSize, concurrency int, lease time.Duration) *Poller {
	if pollInterval > 0 {
		p.pollInterval = pollInterval
	}
	if batchSize > 0 {
		p.batchSize = batchSize
	}
	if concurrency > 0 {
		p.concurrency = concurrency
	}
	if lease > 0 {
		p.lease = lease
	}
	return p
}

func (p *Poller) WithPlanner(cfg PlannerConfig) *Poller {
	p.planner = NewPlanner(cfg, nil)
	return p
}

// Trigger forces an immediate poll cycle (best-effort, non-blocking).
func (p *Poller) Trigger() {
	p.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"started_at"`
	LastCycleAt    *time.Time `json:"last_cycle_at,omitempty"`
	LastTriggerAt  *time.Time `json:"last_trigger_at,omitempty"`
	TotalClaimed   int64      `json:"total_claimed"`
	TotalProcessed int64      `json:"total_processed"`
	TotalErrors    int64      `json:"total_errors"`
	InFlight       int64      `json:"in_flight"`
	LastError      string     `json:"last_error,omitempty"`
}

func (p *Poller) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, p.startedAtUnixNano).UTC(),
		TotalClaimed:   p.totalClaimed.Load(),
		TotalProcessed: p.totalProcessed.Load(),
		TotalErrors:    p.totalErrors.Load(),
		InFlight:       p.inFlight.Load(),
	}
	if n := p.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := p.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	p.lastErrorMu.Lock()
	st.LastError = p.lastError
	p.lastErrorMu.Unlock()
	return st
}

func (p *Poller) Run(ctx context.Context) error {
	t := time.NewTicker(p.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			p.runOnce(ctx)
		case <-p.triggerCh:
			p.runOnce(ctx)
		}
	}
}

func (p *Poller) runOnce(ctx context.Context) {
	now := p.now()
	p.lastCycleUnixNano.Store(now.UnixNano())

	items, err := p.repo.ClaimDueShipments(ctx, now, p.batchSize, p.lease)
	if err != nil {
		slog.Error("claim due shipments", "error", err.Error())
		p.setLastError(err)
		return
	}
	p.totalClaimed.Add(int64(len(items)))

	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup
	for _, sh := range items {
		sem <- struct{}{}
		wg.Add(1)
		p.inFlight.Add(1)
		go func() {
			defer func() {
				p.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := p.processOne(ctx, sh); err != nil {
				p.totalErrors.Add(1)
				p.setLastError(err)
				metrics.PollerProcessed.WithLabelValues("publish_error").Inc()
				slog.Error("process shipment", "shipment_id", sh.ID, "error", err.Error())
			}
			p.totalProcessed.Add(1)
		}()
	}
	wg.Wait()
}

func (p *Poller) processOne(ctx context.Context, sh *models.Shipment) error {
	now := p.now()
	res := p.tracker.GetTracking(ctx, sh.TrackingNumber, sh.Carrier, false)

	msg := p.buildMessage(sh, res, now)
	if msg.Error != nil {
		metrics.PollerProcessed.WithLabelValues("carrier_error").Inc()
	}

	key := strconv.FormatUint(sh.ID, 10)
	// Kafka может быть не готова сразу после старта docker compose.
	var pubErr error
	for i := 0; i < p.publishRetries; i++ {
		if pubErr = p.producer.PublishJSON(ctx, p.topic, key, msg); pubErr == nil {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(150*(i+1)) * time.Millisecond):
		}
	}
	if pubErr != nil {
		return pubErr
	}
	if msg.Error == nil {
		metrics.PollerProcessed.WithLabelValues("ok").Inc()
	}
	return nil
}

func (p *Poller) buildMessage(sh *models.Shipment, res models.TrackingResult, now time.Time) messages.ShipmentChecked {
	msg := messages.ShipmentChecked{
		ShipmentID:     sh.ID,
		Carrier:        sh.Carrier,
		TrackingNumber: sh.TrackingNumber,
		CheckedAt:      now,
		Simulated:      res.Simulated,
	}

	if !res.Success {
		e := res.ErrorMessage
		if e == "" {
			e = "carrier lookup failed"
		}
		msg.Error = &e
		msg.NextCheckAt = now.Add(p.planner.BackoffDelay(sh.CheckFailCount + 1))
		return msg
	}

	msg.Status = res.CurrentStatus
	msg.StatusRaw = res.StatusRaw
	msg.HasIssue = res.HasIssue
	if t, ok := res.LatestEventTime(); ok {
		msg.StatusAt = &t
	}
	msg.NextCheckAt = now.Add(p.planner.NextCheckDelay(res.CurrentStatus))
	for _, e := range res.Events {
		ev := messages.ShipmentEvent{
			Status:      e.Status,
			Description: e.Description,
			EventTime:   e.Timestamp,
		}
		if e.Location != "" {
			loc := e.Location
			ev.Location = &loc
		}
		msg.Events = append(msg.Events, ev)
	}
	return msg
}

func (p *Poller) setLastError(err error) {
	p.lastErrorMu.Lock()
	p.lastError = err.Error()
	p.lastErrorMu.Unlock()
}
