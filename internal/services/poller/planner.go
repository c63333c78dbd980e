package poller

import (
	"math/rand"
	"time"

	"github.com/litperpro/litper/internal/models"
)

type Rand interface {
	Intn(n int) int
}

type PlannerConfig struct {
	FinalDelay time.Duration // default: 365 days

	InTransitMinDelay time.Duration // default: 30 minutes
	InTransitMaxDelay time.Duration // default: 120 minutes

	ExceptionDelay time.Duration // default: 20 minutes
	UnknownDelay   time.Duration // default: 90 minutes

	Backoff1 time.Duration // default: 5 minutes
	Backoff2 time.Duration // default: 15 minutes
	Backoff3 time.Duration // default: 30 minutes
	Backoff4 time.Duration // default: 60 minutes
}

func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		FinalDelay: 365 * 24 * time.Hour,

		InTransitMinDelay: 30 * time.Minute,
		InTransitMaxDelay: 120 * time.Minute,

		// новедад решается за часы, проверяем чаще обычного
		ExceptionDelay: 20 * time.Minute,
		UnknownDelay:   90 * time.Minute,

		Backoff1: 5 * time.Minute,
		Backoff2: 15 * time.Minute,
		Backoff3: 30 * time.Minute,
		Backoff4: 60 * time.Minute,
	}
}

type Planner struct {
	cfg PlannerConfig
	r   Rand
}

func NewPlanner(cfg PlannerConfig, r Rand) *Planner {
	def := DefaultPlannerConfig()
	for _, f := range []struct{ v, d *time.Duration }{
		{&cfg.FinalDelay, &def.FinalDelay},
		{&cfg.InTransitMinDelay, &def.InTransitMinDelay},
		{&cfg.InTransitMaxDelay, &def.InTransitMaxDelay},
		{&cfg.ExceptionDelay, &def.ExceptionDelay},
		{&cfg.UnknownDelay, &def.UnknownDelay},
		{&cfg.Backoff1, &def.Backoff1},
		{&cfg.Backoff2, &def.Backoff2},
		{&cfg.Backoff3, &def.Backoff3},
		{&cfg.Backoff4, &def.Backoff4},
	} {
		if *f.v <= 0 {
			*f.v = *f.d
		}
	}
	if cfg.InTransitMaxDelay < cfg.InTransitMinDelay {
		cfg.InTransitMaxDelay = cfg.InTransitMinDelay
	}
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Planner{cfg: cfg, r: r}
}

// NextCheckDelay: движущиеся статусы получают случайную задержку из окна [min, max].
func (p *Planner) NextCheckDelay(status models.TrackingStatus) time.Duration {
	switch status {
	case models.TrackingStatusDelivered, models.TrackingStatusReturned, models.TrackingStatusCancelled:
		return p.cfg.FinalDelay
	case models.TrackingStatusException:
		return p.cfg.ExceptionDelay
	case models.TrackingStatusCreated,
		models.TrackingStatusPickedUp,
		models.TrackingStatusInTransit,
		models.TrackingStatusInWarehouse,
		models.TrackingStatusOutForDelivery:
		return p.inTransitDelay()
	default:
		return p.cfg.UnknownDelay
	}
}

func (p *Planner) inTransitDelay() time.Duration {
	lo := int(p.cfg.InTransitMinDelay / time.Second)
	hi := int(p.cfg.InTransitMaxDelay / time.Second)
	if hi <= lo {
		return p.cfg.InTransitMinDelay
	}
	return time.Duration(lo+p.r.Intn(hi-lo+1)) * time.Second
}

// BackoffDelay: ступени 1, 2, 3 и 4+ подряд идущих ошибок.
func (p *Planner) BackoffDelay(nextFailCount int32) time.Duration {
	ladder := [...]time.Duration{p.cfg.Backoff1, p.cfg.Backoff2, p.cfg.Backoff3, p.cfg.Backoff4}
	i := int(nextFailCount) - 1
	if i < 0 {
		i = 0
	}
	if i >= len(ladder) {
		i = len(ladder) - 1
	}
	return ladder[i]
}
