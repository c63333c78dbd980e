package main

import (
	"context"
	"time"

	"github.com/litperpro/litper/config"
	"github.com/litperpro/litper/internal/broker/kafka"
	"github.com/litperpro/litper/internal/cache/rediscache"
	"github.com/litperpro/litper/internal/integrations/carrier"
	"github.com/litperpro/litper/internal/integrations/carrier/registry"
	"github.com/litperpro/litper/internal/services/poller"
	"github.com/litperpro/litper/internal/services/tracking"
	"github.com/litperpro/litper/internal/storage/pgstore"
	"github.com/redis/go-redis/v9"
)

type workerFactories struct {
	newStorage  func(ctx context.Context, cfg *config.Config) (repo poller.Repository, closeFn func(), err error)
	newProducer func(cfg *config.Config) (poller.Producer, func())
	newTracker  func(cfg *config.Config) (poller.Tracker, func())
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(ctx context.Context, cfg *config.Config) (poller.Repository, func(), error) {
			st, err := pgstore.New(ctx, cfg.Database.ConnString())
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) (poller.Producer, func()) {
			p := kafka.NewProducer(cfg.Kafka.Brokers())
			return p, func() { _ = p.Close() }
		},
		newTracker: func(cfg *config.Config) (poller.Tracker, func()) {
			rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
			timeout := time.Duration(cfg.Litper.CarrierTimeoutSeconds) * time.Second
			if timeout <= 0 {
				timeout = carrier.DefaultTimeout
			}
			adapters := registry.Build(cfg.Carriers, timeout, rediscache.NewRateLimiterWithClient(rdb), nil)

			// свежие результаты воркера попадают в общий кэш и видны API
			opts := []tracking.Option{tracking.WithSharedCache(rediscache.NewWithClient(rdb))}
			if ttl := time.Duration(cfg.Litper.TrackingCacheTTLSeconds) * time.Second; ttl > 0 {
				opts = append(opts, tracking.WithTTL(ttl))
			}
			return tracking.New(adapters, opts...), func() { _ = rdb.Close() }
		},
	}
}

func plannerConfig(c config.LitperConfig) poller.PlannerConfig {
	sec := func(n int) time.Duration { return time.Duration(n) * time.Second }
	return poller.PlannerConfig{
		InTransitMinDelay: sec(c.WorkerNextCheckInTransitMinSeconds),
		InTransitMaxDelay: sec(c.WorkerNextCheckInTransitMaxSeconds),
		ExceptionDelay:    sec(c.WorkerNextCheckExceptionSeconds),
		UnknownDelay:      sec(c.WorkerNextCheckUnknownSeconds),
		Backoff1:          sec(c.WorkerBackoff1Seconds),
		Backoff2:          sec(c.WorkerBackoff2Seconds),
		Backoff3:          sec(c.WorkerBackoff3Seconds),
		Backoff4:          sec(c.WorkerBackoff4Seconds),
	}
}

// buildPoller открывает зависимости через фабрики. Возвращённый closeFn закрывает всё открытое.
func buildPoller(ctx context.Context, cfg *config.Config, f workerFactories) (*poller.Poller, func(), error) {
	topic := cfg.Kafka.ShipmentCheckedTopicName
	if topic == "" {
		topic = "shipment.checked"
	}

	pollInterval := time.Duration(cfg.Litper.WorkerPollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	batchSize := cfg.Litper.WorkerBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	concurrency := cfg.Litper.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	lease := time.Duration(cfg.Litper.WorkerLeaseSeconds) * time.Second
	if lease <= 0 {
		lease = 120 * time.Second
	}

	repo, closeRepo, err := f.newStorage(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	producer, closeProducer := f.newProducer(cfg)
	tracker, closeTracker := f.newTracker(cfg)

	closeFn := func() {
		for _, c := range []func(){closeTracker, closeProducer, closeRepo} {
			if c != nil {
				c()
			}
		}
	}

	p := poller.New(repo, tracker, producer, topic).
		WithSettings(pollInterval, batchSize, concurrency, lease).
		WithPlanner(plannerConfig(cfg.Litper))
	return p, closeFn, nil
}

// RunWorker крутит поллер и админский HTTP до отмены ctx или падения HTTP-сервера.
func RunWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	p, closeFn, err := buildPoller(ctx, cfg, f)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runWorkerHTTPServer(ctx, workerHTTPOpts{httpAddr: cfg.Litper.WorkerHTTPAddr, poller: p, cfg: cfg})
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- p.Run(ctx) }()

	select {
	case err := <-runErr:
		return err
	case err := <-httpErr:
		if err == nil {
			err = ctx.Err()
		}
		cancel()
		<-runErr
		return err
	}
}
