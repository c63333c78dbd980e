package registry

import (
	"time"

	"github.com/litperpro/litper/config"
	"github.com/litperpro/litper/internal/integrations/carrier"
	"github.com/litperpro/litper/internal/integrations/carrier/aggregator"
	"github.com/litperpro/litper/internal/integrations/carrier/coordinadora"
	"github.com/litperpro/litper/internal/integrations/carrier/servientrega"
	"github.com/litperpro/litper/internal/integrations/carrier/simulated"
	"github.com/litperpro/litper/internal/models"
)

// Build returns one adapter per known carrier in detection order.
// A carrier without credentials gets an explicit simulation-mode adapter.
func Build(cfg config.CarriersConfig, timeout time.Duration, rl carrier.RateLimiter, r simulated.Rand) []*carrier.Adapter {
	sim := simulated.New(r)
	agg := aggregator.New(cfg.Aggregator.BaseURL, cfg.Aggregator.APIKey)

	out := make([]*carrier.Adapter, 0, len(models.KnownCarriers()))
	for _, c := range models.KnownCarriers() {
		profile, _ := carrier.ProfileFor(c)

		var (
			cc config.CarrierConfig
			f  carrier.Fetcher
		)
		switch c {
		case models.CarrierCoordinadora:
			cc = cfg.Coordinadora
			f = coordinadora.New(cc.BaseURL, cc.APIKey)
		case models.CarrierServientrega:
			cc = cfg.Servientrega
			f = servientrega.New(cc.BaseURL, cc.APIKey)
		default:
			cc = cfg.Aggregator
			f = agg
		}

		opts := []carrier.Option{
			carrier.WithTimeout(timeout),
			carrier.WithRateLimit(rl, int64(cc.RateLimitPerMinute)),
		}
		if cfg.BreakerConsecutiveFailures > 0 || cfg.BreakerOpenSeconds > 0 {
			opts = append(opts, carrier.WithBreaker(uint32(cfg.BreakerConsecutiveFailures), time.Duration(cfg.BreakerOpenSeconds)*time.Second))
		}

		if cc.Live() {
			out = append(out, carrier.NewLive(profile, f, opts...))
		} else {
			out = append(out, carrier.NewSimulated(profile, sim, opts...))
		}
	}
	return out
}
