package shipments

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/litperpro/litper/internal/broker/messages"
	"github.com/litperpro/litper/internal/cache"
	"github.com/litperpro/litper/internal/models"
	"github.com/litperpro/litper/internal/storage/pgstore"
	"github.com/pkg/errors"
)

const (
	maxCreateItems        = 10_000
	defaultEnqueueTimeout = 5 * time.Second
)

type Repository interface {
	CreateOrGetShipments(ctx context.Context, items []models.ShipmentCreateInput) ([]*models.Shipment, error)
	GetShipmentsByIDs(ctx context.Context, ids []uint64) ([]*models.Shipment, error)
	FindShipment(ctx context.Context, carrier models.CarrierType, trackingNumber string) (*models.Shipment, error)
	ListShipmentEvents(ctx context.Context, shipmentID uint64, limit, offset int) ([]*models.ShipmentEvent, error)
	RefreshShipment(ctx context.Context, shipmentID uint64) error
	ApplyShipmentUpdate(ctx context.Context, upd pgstore.ShipmentUpdate) error
}

// Detector определяет перевозчика по формату guía.
type Detector interface {
	DetectCarrier(trackingNumber string) models.CarrierType
}

type DetectorFunc func(trackingNumber string) models.CarrierType

func (f DetectorFunc) DetectCarrier(trackingNumber string) models.CarrierType { return f(trackingNumber) }

// Enqueuer ставит отправление с новедадом в очередь спасения.
type Enqueuer interface {
	AddToQueue(ctx context.Context, in models.RescueInput) (models.RescueItem, error)
}

type Service struct {
	repo       Repository
	cache      cache.BytesCache
	currentTTL time.Duration

	detector       Detector
	rescue         Enqueuer
	enqueueTimeout time.Duration
	now            func() time.Time
}

type Option func(*Service)

func WithDetector(d Detector) Option {
	return func(s *Service) { s.detector = d }
}

// WithRescue включает автоматическую постановку EXCEPTION в очередь спасения.
func WithRescue(e Enqueuer) Option {
	return func(s *Service) { s.rescue = e }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(repo Repository, c cache.BytesCache, currentTTL time.Duration, opts ...Option) *Service {
	s := &Service{
		repo:           repo,
		cache:          c,
		currentTTL:     currentTTL,
		enqueueTimeout: defaultEnqueueTimeout,
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) CreateShipments(ctx context.Context, items []models.ShipmentCreateInput) ([]*models.Shipment, error) {
	if len(items) == 0 {
		return nil, errors.New("items is empty")
	}
	if len(items) > maxCreateItems {
		return nil, errors.New("too many items (max 10000)")
	}

	clean := make([]models.ShipmentCreateInput, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		it.TrackingNumber = strings.ToUpper(strings.TrimSpace(it.TrackingNumber))
		if it.TrackingNumber == "" {
			return nil, errors.New("tracking_number is required")
		}
		it.Carrier = models.ParseCarrier(string(it.Carrier))
		if it.Carrier == models.CarrierUnknown && s.detector != nil {
			it.Carrier = s.detector.DetectCarrier(it.TrackingNumber)
		}
		if it.Carrier == models.CarrierUnknown {
			return nil, fmt.Errorf("cannot detect carrier for %s", it.TrackingNumber)
		}

		k := fmt.Sprintf("%s|%s", it.Carrier, it.TrackingNumber)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		clean = append(clean, it)
	}

	return s.repo.CreateOrGetShipments(ctx, clean)
}

func (s *Service) GetShipmentsByIDs(ctx context.Context, ids []uint64) ([]*models.Shipment, error) {
	if len(ids) == 0 {
		return []*models.Shipment{}, nil
	}
	// Кэш "текущего состояния" best-effort: любые ошибки Redis означают промах.
	miss := make([]uint64, 0, len(ids))
	got := make(map[uint64]*models.Shipment, len(ids))

	if s.cacheEnabled() {
		for _, id := range ids {
			b, ok, err := s.cache.Get(ctx, currentKey(id))
			if err != nil || !ok {
				miss = append(miss, id)
				continue
			}
			var sh models.Shipment
			if json.Unmarshal(b, &sh) != nil {
				miss = append(miss, id)
				continue
			}
			got[id] = &sh
		}
	} else {
		miss = ids
	}

	if len(miss) > 0 {
		fromDB, err := s.repo.GetShipmentsByIDs(ctx, miss)
		if err != nil {
			return nil, err
		}
		for _, sh := range fromDB {
			s.cacheCurrent(ctx, sh)
			got[sh.ID] = sh
		}
	}

	// Ответ в том же порядке, что ids.
	out := make([]*models.Shipment, 0, len(ids))
	for _, id := range ids {
		if sh, ok := got[id]; ok {
			out = append(out, sh)
		}
	}
	return out, nil
}

func (s *Service) ListShipmentEvents(ctx context.Context, shipmentID uint64, limit, offset int) ([]*models.ShipmentEvent, error) {
	return s.repo.ListShipmentEvents(ctx, shipmentID, limit, offset)
}

func (s *Service) RefreshShipment(ctx context.Context, shipmentID uint64) error {
	if shipmentID == 0 {
		return errors.New("shipment id is required")
	}
	return s.repo.RefreshShipment(ctx, shipmentID)
}

// ApplyShipmentChecked сохраняет результат проверки воркера и, если отправление
// ушло в EXCEPTION, ставит его в очередь спасения.
func (s *Service) ApplyShipmentChecked(ctx context.Context, msg messages.ShipmentChecked) error {
	if msg.ShipmentID == 0 {
		return errors.New("shipment_id is required")
	}
	if msg.CheckedAt.IsZero() {
		msg.CheckedAt = s.now()
	}
	if msg.NextCheckAt.IsZero() {
		// воркер не прислал next_check_at: проверим через час
		msg.NextCheckAt = msg.CheckedAt.Add(60 * time.Minute)
	}

	events := make([]*models.ShipmentEvent, 0, len(msg.Events))
	for _, e := range msg.Events {
		ev := &models.ShipmentEvent{
			ShipmentID:  msg.ShipmentID,
			Status:      e.Status,
			Description: e.Description,
			EventTime:   e.EventTime,
		}
		if e.Location != nil {
			ev.Location = *e.Location
		}
		events = append(events, ev)
	}

	err := s.repo.ApplyShipmentUpdate(ctx, pgstore.ShipmentUpdate{
		ShipmentID:  msg.ShipmentID,
		CheckedAt:   msg.CheckedAt,
		Status:      msg.Status,
		StatusRaw:   msg.StatusRaw,
		StatusAt:    msg.StatusAt,
		NextCheckAt: msg.NextCheckAt,
		Events:      events,
		Error:       msg.Error,
	})
	if err != nil {
		return err
	}

	needRescue := s.rescue != nil && msg.Error == nil && msg.Status == models.TrackingStatusException
	if !s.cacheEnabled() && !needRescue {
		return nil
	}

	shs, err := s.repo.GetShipmentsByIDs(ctx, []uint64{msg.ShipmentID})
	if err != nil || len(shs) != 1 {
		return nil
	}
	s.cacheCurrent(ctx, shs[0])

	if needRescue {
		s.enqueue(ctx, shs[0], latestEvent(msg.Events), msg.StatusRaw)
	}
	return nil
}

// RecordTracking получает каждый результат прямого поиска через API. Поиск в БД
// и постановка в очередь идут в отдельной горутине, чтобы не задерживать ответ.
func (s *Service) RecordTracking(ctx context.Context, res models.TrackingResult) {
	if s.rescue == nil || !res.Success || res.CurrentStatus != models.TrackingStatusException {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.enqueueTimeout)
		defer cancel()

		sh, err := s.repo.FindShipment(ctx, res.Carrier, res.TrackingNumber)
		if err != nil {
			slog.Warn("find shipment for rescue", "tracking_number", res.TrackingNumber, "err", err)
			return
		}
		if sh == nil {
			return
		}

		var latest *messages.ShipmentEvent
		if t, ok := res.LatestEventTime(); ok {
			latest = &messages.ShipmentEvent{EventTime: t, Description: res.LatestEventDescription()}
		}
		s.enqueue(ctx, sh, latest, res.StatusRaw)
	}()
}

func (s *Service) enqueue(ctx context.Context, sh *models.Shipment, latest *messages.ShipmentEvent, statusRaw string) {
	in := models.RescueInput{
		TrackingNumber:     sh.TrackingNumber,
		Carrier:            sh.Carrier,
		CustomerName:       sh.CustomerName,
		CustomerPhone:      sh.CustomerPhone,
		DestinationCity:    sh.DestinationCity,
		NoveltyDescription: statusRaw,
	}
	if latest != nil {
		if latest.Description != "" {
			in.NoveltyDescription = latest.Description
		}
		if d := s.now().Sub(latest.EventTime); d > 0 {
			in.DaysWithoutMovement = int(d.Hours() / 24)
		}
	}

	item, err := s.rescue.AddToQueue(ctx, in)
	if err != nil {
		slog.Warn("auto-enqueue rescue", "tracking_number", sh.TrackingNumber, "err", err)
		return
	}
	slog.Info("shipment enqueued for rescue",
		"tracking_number", item.TrackingNumber,
		"priority", item.Priority,
		"novelty", item.NoveltyType,
	)
}

func (s *Service) cacheEnabled() bool {
	return s.cache != nil && s.currentTTL > 0
}

func (s *Service) cacheCurrent(ctx context.Context, sh *models.Shipment) {
	if !s.cacheEnabled() {
		return
	}
	b, _ := json.Marshal(sh)
	_ = s.cache.Set(ctx, currentKey(sh.ID), b, s.currentTTL)
}

func latestEvent(events []messages.ShipmentEvent) *messages.ShipmentEvent {
	var latest *messages.ShipmentEvent
	for i := range events {
		if latest == nil || events[i].EventTime.After(latest.EventTime) {
			latest = &events[i]
		}
	}
	return latest
}

func currentKey(id uint64) string {
	return fmt.Sprintf("shipment:%d:current", id)
}
