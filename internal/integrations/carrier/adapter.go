package carrier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/litperpro/litper/internal/metrics"
	"github.com/litperpro/litper/internal/models"
	"github.com/pkg/errors"
	gobreaker "github.com/sony/gobreaker/v2"
)

// ErrNotFound: перевозчик не знает такой номер. Это ошибка ввода, а не отказ перевозчика,
// поэтому предохранитель её не считает.
var ErrNotFound = errors.New("tracking number not found")

// Fetcher performs the remote (or simulated) lookup for one carrier API.
// Fetchers may fail; the Adapter turns every failure into a degraded result.
type Fetcher interface {
	Fetch(ctx context.Context, carrier models.CarrierType, trackingNumber string) (models.TrackingResult, error)
}

// FetcherFunc adapts a plain function to Fetcher.
type FetcherFunc func(ctx context.Context, carrier models.CarrierType, trackingNumber string) (models.TrackingResult, error)

func (f FetcherFunc) Fetch(ctx context.Context, carrier models.CarrierType, trackingNumber string) (models.TrackingResult, error) {
	return f(ctx, carrier, trackingNumber)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Mode string

const (
	ModeLive      Mode = "live"
	ModeSimulated Mode = "simulated"
)

const DefaultTimeout = 30 * time.Second

type Adapter struct {
	profile Profile
	fetcher Fetcher
	mode    Mode

	timeout     time.Duration
	rl          RateLimiter
	rlPerMinute int64
	rlBackoff   time.Duration
	breaker     *gobreaker.CircuitBreaker[models.TrackingResult]
}

type Option func(*Adapter)

func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithRateLimit ограничивает число запросов к перевозчику в минуту (общий счётчик в Redis).
func WithRateLimit(rl RateLimiter, perMinute int64) Option {
	return func(a *Adapter) {
		if rl != nil && perMinute > 0 {
			a.rl = rl
			a.rlPerMinute = perMinute
		}
	}
}

// WithBreaker overrides the default breaker policy (5 consecutive failures, 30s open).
func WithBreaker(consecutiveFailures uint32, openFor time.Duration) Option {
	return func(a *Adapter) {
		a.breaker = newBreaker(a.profile.Carrier, consecutiveFailures, openFor)
	}
}

func New(profile Profile, f Fetcher, mode Mode, opts ...Option) *Adapter {
	a := &Adapter{
		profile:   profile,
		fetcher:   f,
		mode:      mode,
		timeout:   DefaultTimeout,
		rlBackoff: 500 * time.Millisecond,
	}
	a.breaker = newBreaker(profile.Carrier, 5, 30*time.Second)
	for _, o := range opts {
		o(a)
	}
	return a
}

// NewLive builds the adapter that talks to the carrier API.
func NewLive(profile Profile, f Fetcher, opts ...Option) *Adapter {
	return New(profile, f, ModeLive, opts...)
}

// NewSimulated builds the adapter used when no credentials are configured.
func NewSimulated(profile Profile, f Fetcher, opts ...Option) *Adapter {
	return New(profile, f, ModeSimulated, opts...)
}

func newBreaker(c models.CarrierType, consecutiveFailures uint32, openFor time.Duration) *gobreaker.CircuitBreaker[models.TrackingResult] {
	if consecutiveFailures == 0 {
		consecutiveFailures = 5
	}
	return gobreaker.NewCircuitBreaker[models.TrackingResult](gobreaker.Settings{
		Name:        "carrier:" + string(c),
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveFailures
		},
		IsSuccessful: breakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("carrier breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

func breakerSuccess(err error) bool {
	return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
}

func (a *Adapter) Carrier() models.CarrierType { return a.profile.Carrier }

func (a *Adapter) Mode() Mode { return a.mode }

func (a *Adapter) Detect(trackingNumber string) bool {
	return a.profile.Detect(trackingNumber)
}

// BreakerState is exposed for the admin endpoints.
func (a *Adapter) BreakerState() string {
	return a.breaker.State().String()
}

// GetTracking never returns an error: every failure becomes a result with Success=false.
func (a *Adapter) GetTracking(ctx context.Context, trackingNumber string) (res models.TrackingResult) {
	tn := strings.ToUpper(strings.TrimSpace(trackingNumber))
	carrierName := string(a.profile.Carrier)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("carrier fetch panicked", "carrier", carrierName, "tracking_number", tn, "panic", fmt.Sprint(r))
			res = models.NewFailedResult(tn, a.profile.Carrier, fmt.Sprintf("carrier %s: internal error", carrierName))
		}
		outcome := "ok"
		if !res.Success {
			outcome = "error"
		}
		metrics.CarrierLookups.WithLabelValues(carrierName, string(a.mode), outcome).Inc()
		metrics.CarrierLookupDuration.WithLabelValues(carrierName).Observe(time.Since(start).Seconds())
	}()

	a.waitRateLimit(ctx)

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	out, err := a.breaker.Execute(func() (models.TrackingResult, error) {
		return a.fetcher.Fetch(callCtx, a.profile.Carrier, tn)
	})
	if err != nil {
		slog.Warn("carrier lookup failed", "carrier", carrierName, "tracking_number", tn, "error", err.Error())
		return models.NewFailedResult(tn, a.profile.Carrier, fmt.Sprintf("carrier %s: %s", carrierName, err.Error()))
	}

	out.TrackingNumber = tn
	out.Carrier = a.profile.Carrier
	out.Success = true
	out.ErrorMessage = ""
	out.Simulated = a.mode == ModeSimulated
	if out.CurrentStatus == "" {
		out.CurrentStatus = NormalizeStatus(out.StatusRaw)
	}
	out.HasIssue = out.CurrentStatus == models.TrackingStatusException
	if out.Events == nil {
		out.Events = []models.TrackingEvent{}
	}
	if out.CheckedAt.IsZero() {
		out.CheckedAt = time.Now().UTC()
	}
	return out
}

func (a *Adapter) waitRateLimit(ctx context.Context) {
	if a.rl == nil || a.rlPerMinute <= 0 {
		return
	}
	now := time.Now().UTC()
	key := fmt.Sprintf("rl:carrier:%s:%s", a.profile.Carrier, now.Format("200601021504"))
	allowed, n, err := a.rl.Allow(ctx, key, a.rlPerMinute, 70*time.Second)
	if err != nil {
		// Redis недоступен: не блокируем трекинг из-за лимитера.
		slog.Warn("carrier rate limiter unavailable", "carrier", string(a.profile.Carrier), "error", err.Error())
		return
	}
	if allowed {
		return
	}
	slog.Warn("carrier rate limit exceeded", "carrier", string(a.profile.Carrier), "count", n)
	t := time.NewTimer(a.rlBackoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
