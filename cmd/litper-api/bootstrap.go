package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/litperpro/litper/config"
	"github.com/litperpro/litper/internal/api/httpapi"
	"github.com/litperpro/litper/internal/broker/kafka"
	"github.com/litperpro/litper/internal/broker/messages"
	"github.com/litperpro/litper/internal/cache"
	"github.com/litperpro/litper/internal/cache/rediscache"
	"github.com/litperpro/litper/internal/integrations/carrier"
	"github.com/litperpro/litper/internal/integrations/carrier/registry"
	"github.com/litperpro/litper/internal/integrations/messaging/whatsapp"
	"github.com/litperpro/litper/internal/logging"
	"github.com/litperpro/litper/internal/metrics"
	"github.com/litperpro/litper/internal/models"
	"github.com/litperpro/litper/internal/services/activity"
	"github.com/litperpro/litper/internal/services/rescue"
	"github.com/litperpro/litper/internal/services/shipments"
	"github.com/litperpro/litper/internal/services/tracking"
	"github.com/litperpro/litper/internal/storage/pgstore"
	"github.com/redis/go-redis/v9"
)

type apiApp struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   apiOpts

	api       *httpapi.API
	consumer  *kafka.Consumer
	onChecked func(ctx context.Context, m messages.ShipmentChecked) error

	dispatcher *activity.Dispatcher
	producer   *kafka.Producer
	redis      *rediscache.RedisCache
	closeDB    func()
}

type services struct {
	tracking  *tracking.Service
	rescue    *rescue.Service
	shipments *shipments.Service
}

// wireServices связывает сервисы: трекинг записывает результаты в shipments,
// shipments определяет перевозчика через трекинг и ставит новедады в очередь спасения.
func wireServices(cfg *config.Config, adapters []*carrier.Adapter, repo shipments.Repository,
	sharedCache *rediscache.RedisCache, messenger rescue.Messenger, sink rescue.ActivitySink) services {
	rescueOpts := []rescue.Option{rescue.WithMaxAttempts(cfg.Litper.RescueMaxAttempts)}
	if cfg.Litper.RescueBulkSendIntervalMillis > 0 {
		rescueOpts = append(rescueOpts, rescue.WithSendInterval(time.Duration(cfg.Litper.RescueBulkSendIntervalMillis)*time.Millisecond))
	}
	if sink != nil {
		rescueOpts = append(rescueOpts, rescue.WithActivitySink(sink))
	}
	rescueSvc := rescue.New(messenger, rescueOpts...)

	var trackingSvc *tracking.Service
	shipOpts := []shipments.Option{
		shipments.WithDetector(shipments.DetectorFunc(func(tn string) models.CarrierType {
			return trackingSvc.DetectCarrier(tn)
		})),
	}
	if cfg.Litper.RescueAutoEnqueue {
		shipOpts = append(shipOpts, shipments.WithRescue(rescueSvc))
	}

	shipmentTTL := time.Duration(cfg.Litper.ShipmentCacheTTLSeconds) * time.Second
	if shipmentTTL <= 0 {
		shipmentTTL = 10 * time.Minute
	}
	var shipCache cache.BytesCache
	if sharedCache != nil {
		shipCache = sharedCache
	}
	var shipSvc *shipments.Service
	if repo != nil {
		shipSvc = shipments.New(repo, shipCache, shipmentTTL, shipOpts...)
	}

	trackOpts := []tracking.Option{}
	if ttl := time.Duration(cfg.Litper.TrackingCacheTTLSeconds) * time.Second; ttl > 0 {
		trackOpts = append(trackOpts, tracking.WithTTL(ttl))
	}
	if sharedCache != nil {
		trackOpts = append(trackOpts, tracking.WithSharedCache(sharedCache))
	}
	if shipSvc != nil {
		trackOpts = append(trackOpts, tracking.WithRecorder(shipSvc))
	}
	trackingSvc = tracking.New(adapters, trackOpts...)

	return services{tracking: trackingSvc, rescue: rescueSvc, shipments: shipSvc}
}

func newMessenger(cfg config.WhatsAppConfig) rescue.Messenger {
	if cfg.Live() {
		return whatsapp.New(whatsapp.Config{
			BaseURL:       cfg.BaseURL,
			Token:         cfg.Token,
			PhoneNumberID: cfg.PhoneNumberID,
			Template:      cfg.Template,
			Language:      cfg.Language,
		})
	}
	slog.Warn("whatsapp credentials are not configured, using simulated messenger")
	return whatsapp.NewSimulated()
}

func mustBootstrapAPI() *apiApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	metrics.Register()

	grpcAddr := cfg.Litper.GRPCAddr
	if grpcAddr == "" {
		grpcAddr = ":50051"
	}
	httpAddr := cfg.Litper.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.Litper.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "litper-api"
	}
	checkedTopic := cfg.Kafka.ShipmentCheckedTopicName
	if checkedTopic == "" {
		checkedTopic = "shipment.checked"
	}
	activityTopic := cfg.Kafka.RescueActivityTopicName
	if activityTopic == "" {
		activityTopic = "rescue.activity"
	}
	carrierTimeout := time.Duration(cfg.Litper.CarrierTimeoutSeconds) * time.Second
	if carrierTimeout <= 0 {
		carrierTimeout = carrier.DefaultTimeout
	}

	st := mustOpenPostgresWithRetry(cfg.Database.ConnString(), 60*time.Second)

	// один клиент на кэш и лимитер перевозчиков
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	rc := rediscache.NewWithClient(rdb)
	rl := rediscache.NewRateLimiterWithClient(rdb)

	producer := kafka.NewProducer(cfg.Kafka.Brokers())
	dispatcher := activity.New(producer, activityTopic, st, activity.DefaultBuffer)

	adapters := registry.Build(cfg.Carriers, carrierTimeout, rl, nil)
	for _, a := range adapters {
		slog.Info("carrier adapter ready", "carrier", string(a.Carrier()), "mode", string(a.Mode()))
	}

	svcs := wireServices(cfg, adapters, st, rc, newMessenger(cfg.WhatsApp), dispatcher)

	api := httpapi.New(svcs.tracking, svcs.rescue, svcs.shipments, st, httpapi.Options{
		BulkMaxConcurrent:  cfg.Litper.BulkMaxConcurrent,
		RateLimitPerMinute: cfg.Litper.HTTPRateLimitPerMinute,
		Ready: func(ctx context.Context) error {
			if err := st.Ping(ctx); err != nil {
				return err
			}
			return rc.Ping(ctx)
		},
	})

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers(), checkedTopic, consumerGroup)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go dispatcher.Run(ctx)

	return &apiApp{
		ctx:    ctx,
		cancel: cancel,
		opts: apiOpts{
			grpcAddr:      grpcAddr,
			httpAddr:      httpAddr,
			topic:         checkedTopic,
			consumerGroup: consumerGroup,
		},
		api:        api,
		consumer:   consumer,
		onChecked:  svcs.shipments.ApplyShipmentChecked,
		dispatcher: dispatcher,
		producer:   producer,
		redis:      rc,
		closeDB:    st.Close,
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgstore.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		st, err := pgstore.New(ctx, connString)
		cancel()
		if err == nil {
			return st
		}
		lastErr = err
		slog.Warn("postgres is not ready yet", "error", err.Error())
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *apiApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.dispatcher != nil {
		// Run сам дописывает буфер после отмены ctx; канал не закрываем, HTTP может ещё отвечать.
		select {
		case <-a.dispatcher.Done():
		case <-time.After(10 * time.Second):
			slog.Warn("rescue activity dispatcher did not drain in time")
		}
	}
	if a.producer != nil {
		_ = a.producer.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}
