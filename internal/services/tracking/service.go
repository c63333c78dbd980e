package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/litperpro/litper/internal/cache"
	"github.com/litperpro/litper/internal/integrations/carrier"
	"github.com/litperpro/litper/internal/metrics"
	"github.com/litperpro/litper/internal/models"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL           = 300 * time.Second
	DefaultMaxConcurrent = 10

	l2Prefix = "tracking:result:"

	// при таком размере локального кэша store вычищает протухшие записи
	sweepThreshold = 10000
)

// Recorder получает каждый свежий (не из кэша) результат. Реализация не должна блокировать.
type Recorder interface {
	RecordTracking(ctx context.Context, res models.TrackingResult)
}

type CacheStats struct {
	TotalEntries   int    `json:"total_entries"`
	ValidEntries   int    `json:"valid_entries"`
	ExpiredEntries int    `json:"expired_entries"`
	TTLSeconds     int    `json:"ttl_seconds"`
	Hits           uint64 `json:"hits"`
	Misses         uint64 `json:"misses"`
}

type CarrierInfo struct {
	Carrier models.CarrierType `json:"carrier"`
	Mode    carrier.Mode       `json:"mode"`
	Breaker string             `json:"breaker"`
}

type entry struct {
	res      models.TrackingResult
	storedAt time.Time
}

// l2Entry: формат записи в общем кэше (Redis).
type l2Entry struct {
	StoredAt time.Time             `json:"stored_at"`
	Result   models.TrackingResult `json:"result"`
}

type Service struct {
	adapters  []*carrier.Adapter
	byCarrier map[models.CarrierType]*carrier.Adapter

	ttl      time.Duration
	l2       cache.BytesCache
	recorder Recorder
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]entry
	group   singleflight.Group

	hits   atomic.Uint64
	misses atomic.Uint64
}

type Option func(*Service)

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithSharedCache подключает второй уровень кэша, общий для нескольких процессов.
func WithSharedCache(c cache.BytesCache) Option {
	return func(s *Service) { s.l2 = c }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New keeps the adapter order: it is the tie-break when several formats match.
func New(adapters []*carrier.Adapter, opts ...Option) *Service {
	s := &Service{
		adapters:  adapters,
		byCarrier: make(map[models.CarrierType]*carrier.Adapter, len(adapters)),
		ttl:       DefaultTTL,
		now:       func() time.Time { return time.Now().UTC() },
		entries:   make(map[string]entry),
	}
	for _, a := range adapters {
		if _, ok := s.byCarrier[a.Carrier()]; !ok {
			s.byCarrier[a.Carrier()] = a
		}
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

var twelveDigits = regexp.MustCompile(`^\d{12}$`)

func (s *Service) DetectCarrier(trackingNumber string) models.CarrierType {
	tn := normalize(trackingNumber)
	if tn == "" {
		return models.CarrierUnknown
	}
	for _, a := range s.adapters {
		if a.Detect(tn) {
			return a.Carrier()
		}
	}

	// Эвристики для номеров, которые не попали ни в один формат.
	switch {
	case twelveDigits.MatchString(tn):
		return models.CarrierCoordinadora
	case strings.HasPrefix(tn, "SE"):
		return models.CarrierServientrega
	case strings.HasPrefix(tn, "ENV"):
		return models.CarrierEnvia
	case strings.HasPrefix(tn, "IR"):
		return models.CarrierInterrapidisimo
	}
	return models.CarrierUnknown
}

// GetTracking never returns an error. carrier may be empty or UNKNOWN to auto-detect.
func (s *Service) GetTracking(ctx context.Context, trackingNumber string, c models.CarrierType, useCache bool) models.TrackingResult {
	tn := normalize(trackingNumber)
	if tn == "" {
		return models.NewFailedResult(tn, models.CarrierUnknown, "tracking number is required")
	}

	if useCache {
		if res, ok := s.fromCache(ctx, tn); ok {
			s.hits.Add(1)
			metrics.TrackingCache.WithLabelValues("hit").Inc()
			return res
		}
		s.misses.Add(1)
		metrics.TrackingCache.WithLabelValues("miss").Inc()
	}

	if c == "" || c == models.CarrierUnknown {
		c = s.DetectCarrier(tn)
	}
	if c == models.CarrierUnknown {
		return models.NewFailedResult(tn, models.CarrierUnknown, "could not detect carrier for tracking number")
	}
	a, ok := s.byCarrier[c]
	if !ok {
		return models.NewFailedResult(tn, c, fmt.Sprintf("carrier %s is not supported", c))
	}

	// Общий запрос не привязан к отмене первого вызывающего: его результат видят все
	// и он попадает в кэш. Сверху его ограничивает таймаут адаптера.
	lookupCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(string(c)+"|"+tn, func() (any, error) {
		res := a.GetTracking(lookupCtx, tn)
		s.store(lookupCtx, tn, res)
		return res, nil
	})
	var res models.TrackingResult
	select {
	case r := <-ch:
		res = r.Val.(models.TrackingResult)
	case <-ctx.Done():
		return models.NewFailedResult(tn, c, fmt.Sprintf("carrier %s: %s", c, ctx.Err().Error()))
	}

	if s.recorder != nil {
		s.recorder.RecordTracking(ctx, res)
	}
	return res
}

// GetBulkTracking returns results in input order; at most maxConcurrent lookups run at once.
func (s *Service) GetBulkTracking(ctx context.Context, trackingNumbers []string, maxConcurrent int) []models.TrackingResult {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	out := make([]models.TrackingResult, len(trackingNumbers))
	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup

	for i, raw := range trackingNumbers {
		wg.Add(1)
		go func(i int, raw string) {
			defer wg.Done()
			tn := normalize(raw)
			defer func() {
				if r := recover(); r != nil {
					slog.Error("bulk tracking lookup panicked", "tracking_number", tn, "panic", fmt.Sprint(r))
					out[i] = models.NewFailedResult(tn, models.CarrierUnknown, "internal error")
				}
			}()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				out[i] = models.NewFailedResult(tn, models.CarrierUnknown, ctx.Err().Error())
				return
			}
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				out[i] = models.NewFailedResult(tn, models.CarrierUnknown, err.Error())
				return
			}
			out[i] = s.GetTracking(ctx, raw, models.CarrierUnknown, true)
		}(i, raw)
	}
	wg.Wait()
	return out
}

// ClearCache drops every cached entry and returns how many local entries were removed.
func (s *Service) ClearCache(ctx context.Context) int {
	s.mu.Lock()
	n := len(s.entries)
	s.entries = make(map[string]entry)
	s.mu.Unlock()

	if s.l2 != nil {
		if _, err := s.l2.DeletePrefix(ctx, l2Prefix); err != nil {
			slog.Warn("clear shared tracking cache failed", "error", err.Error())
		}
	}
	return n
}

func (s *Service) GetCacheStats() CacheStats {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	st := CacheStats{
		TotalEntries: len(s.entries),
		TTLSeconds:   int(s.ttl / time.Second),
		Hits:         s.hits.Load(),
		Misses:       s.misses.Load(),
	}
	for _, e := range s.entries {
		if now.Sub(e.storedAt) < s.ttl {
			st.ValidEntries++
		} else {
			st.ExpiredEntries++
		}
	}
	return st
}

func (s *Service) Carriers() []CarrierInfo {
	out := make([]CarrierInfo, 0, len(s.adapters))
	for _, a := range s.adapters {
		out = append(out, CarrierInfo{Carrier: a.Carrier(), Mode: a.Mode(), Breaker: a.BreakerState()})
	}
	return out
}

func (s *Service) fromCache(ctx context.Context, tn string) (models.TrackingResult, bool) {
	now := s.now()

	s.mu.Lock()
	e, ok := s.entries[tn]
	if ok && now.Sub(e.storedAt) >= s.ttl {
		delete(s.entries, tn)
		ok = false
	}
	s.mu.Unlock()
	if ok {
		return e.res, true
	}

	if s.l2 == nil {
		return models.TrackingResult{}, false
	}
	b, found, err := s.l2.Get(ctx, l2Prefix+tn)
	if err != nil || !found {
		return models.TrackingResult{}, false
	}
	var le l2Entry
	if json.Unmarshal(b, &le) != nil || now.Sub(le.StoredAt) >= s.ttl {
		return models.TrackingResult{}, false
	}

	s.mu.Lock()
	s.entries[tn] = entry{res: le.Result, storedAt: le.StoredAt}
	s.mu.Unlock()
	return le.Result, true
}

func (s *Service) store(ctx context.Context, tn string, res models.TrackingResult) {
	now := s.now()
	s.mu.Lock()
	if len(s.entries) >= sweepThreshold {
		for k, e := range s.entries {
			if now.Sub(e.storedAt) >= s.ttl {
				delete(s.entries, k)
			}
		}
	}
	s.entries[tn] = entry{res: res, storedAt: now}
	s.mu.Unlock()

	if s.l2 == nil {
		return
	}
	b, err := json.Marshal(l2Entry{StoredAt: now, Result: res})
	if err != nil {
		return
	}
	if err := s.l2.Set(ctx, l2Prefix+tn, b, s.ttl); err != nil {
		slog.Debug("shared tracking cache set failed", "tracking_number", tn, "error", err.Error())
	}
}

func normalize(tn string) string {
	return strings.ToUpper(strings.TrimSpace(tn))
}
