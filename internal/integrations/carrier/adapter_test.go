package carrier

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/litperpro/litper/internal/models"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type rateLimiterMock struct {
	mock.Mock
}

func (m *rateLimiterMock) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Get(1).(int64), args.Error(2)
}

type AdapterSuite struct {
	suite.Suite
	profile Profile
}

func (s *AdapterSuite) SetupTest() {
	s.profile, _ = ProfileFor(models.CarrierCoordinadora)
}

func TestAdapterSuite(t *testing.T) {
	suite.Run(t, new(AdapterSuite))
}

func (s *AdapterSuite) TestGetTracking_OK_FillsDerivedFields() {
	a := NewLive(s.profile, FetcherFunc(func(_ context.Context, c models.CarrierType, tn string) (models.TrackingResult, error) {
		s.Require().Equal(models.CarrierCoordinadora, c)
		s.Require().Equal("1234567890", tn)
		return models.TrackingResult{StatusRaw: "Novedad: dirección errada"}, nil
	}))

	res := a.GetTracking(context.Background(), " 1234567890 ")
	s.Require().True(res.Success)
	s.Require().Equal("1234567890", res.TrackingNumber)
	s.Require().Equal(models.CarrierCoordinadora, res.Carrier)
	s.Require().Equal(models.TrackingStatusException, res.CurrentStatus)
	s.Require().True(res.HasIssue)
	s.Require().False(res.Simulated)
	s.Require().NotNil(res.Events)
	s.Require().False(res.CheckedAt.IsZero())
	s.Require().Equal(ModeLive, a.Mode())
}

func (s *AdapterSuite) TestGetTracking_FetchErrorDegrades() {
	a := NewLive(s.profile, FetcherFunc(func(context.Context, models.CarrierType, string) (models.TrackingResult, error) {
		return models.TrackingResult{}, errors.New("coordinadora http 502")
	}))

	res := a.GetTracking(context.Background(), "1234567890")
	s.Require().False(res.Success)
	s.Require().Equal(models.TrackingStatusUnknown, res.CurrentStatus)
	s.Require().Contains(res.ErrorMessage, "502")
	s.Require().Contains(res.ErrorMessage, "COORDINADORA")
}

func (s *AdapterSuite) TestGetTracking_Timeout() {
	a := NewLive(s.profile, FetcherFunc(func(ctx context.Context, _ models.CarrierType, _ string) (models.TrackingResult, error) {
		<-ctx.Done()
		return models.TrackingResult{}, ctx.Err()
	}), WithTimeout(20*time.Millisecond))

	start := time.Now()
	res := a.GetTracking(context.Background(), "1234567890")
	s.Require().False(res.Success)
	s.Require().Contains(res.ErrorMessage, "deadline exceeded")
	s.Require().Less(time.Since(start), 2*time.Second)
}

func (s *AdapterSuite) TestGetTracking_PanicDegrades() {
	a := NewLive(s.profile, FetcherFunc(func(context.Context, models.CarrierType, string) (models.TrackingResult, error) {
		panic("nil map")
	}))

	res := a.GetTracking(context.Background(), "1234567890")
	s.Require().False(res.Success)
	s.Require().Contains(res.ErrorMessage, "internal error")
}

func (s *AdapterSuite) TestGetTracking_BreakerOpensAfterFailures() {
	var calls atomic.Int32
	a := NewLive(s.profile, FetcherFunc(func(context.Context, models.CarrierType, string) (models.TrackingResult, error) {
		calls.Add(1)
		return models.TrackingResult{}, errors.New("down")
	}), WithBreaker(2, time.Minute))

	a.GetTracking(context.Background(), "1234567890")
	a.GetTracking(context.Background(), "1234567890")
	s.Require().Equal("open", a.BreakerState())

	res := a.GetTracking(context.Background(), "1234567890")
	s.Require().False(res.Success)
	s.Require().Contains(res.ErrorMessage, "circuit breaker is open")
	s.Require().EqualValues(2, calls.Load())
}

func (s *AdapterSuite) TestGetTracking_NotFoundDoesNotTripBreaker() {
	a := NewLive(s.profile, FetcherFunc(func(_ context.Context, _ models.CarrierType, tn string) (models.TrackingResult, error) {
		if tn == "1234567890" {
			return models.TrackingResult{StatusRaw: "En reparto"}, nil
		}
		return models.TrackingResult{}, fmt.Errorf("guia %s: %w", tn, ErrNotFound)
	}), WithBreaker(2, time.Minute))

	for i := 0; i < 5; i++ {
		res := a.GetTracking(context.Background(), fmt.Sprintf("99999999%02d", i))
		s.Require().False(res.Success)
		s.Require().Contains(res.ErrorMessage, "not found")
	}
	s.Require().Equal("closed", a.BreakerState())

	res := a.GetTracking(context.Background(), "1234567890")
	s.Require().True(res.Success)
}

func (s *AdapterSuite) TestGetTracking_CanceledCallerDoesNotTripBreaker() {
	a := NewLive(s.profile, FetcherFunc(func(ctx context.Context, _ models.CarrierType, _ string) (models.TrackingResult, error) {
		return models.TrackingResult{}, ctx.Err()
	}), WithBreaker(2, time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 3; i++ {
		s.Require().False(a.GetTracking(ctx, "1234567890").Success)
	}
	s.Require().Equal("closed", a.BreakerState())
}

func (s *AdapterSuite) TestGetTracking_SimulatedModeFlag() {
	a := NewSimulated(s.profile, FetcherFunc(func(context.Context, models.CarrierType, string) (models.TrackingResult, error) {
		return models.TrackingResult{CurrentStatus: models.TrackingStatusInTransit}, nil
	}))
	res := a.GetTracking(context.Background(), "1234567890")
	s.Require().True(res.Success)
	s.Require().True(res.Simulated)
	s.Require().Equal(ModeSimulated, a.Mode())
}

func (s *AdapterSuite) TestGetTracking_RateLimited_WaitsBackoff() {
	rl := &rateLimiterMock{}
	rl.On("Allow", mock.Anything, mock.MatchedBy(func(k string) bool { return len(k) > len("rl:carrier:COORDINADORA:") }), int64(10), 70*time.Second).
		Return(false, int64(11), nil).Once()

	a := NewLive(s.profile, FetcherFunc(func(context.Context, models.CarrierType, string) (models.TrackingResult, error) {
		return models.TrackingResult{StatusRaw: "Entregado"}, nil
	}), WithRateLimit(rl, 10))
	a.rlBackoff = 10 * time.Millisecond

	start := time.Now()
	res := a.GetTracking(context.Background(), "1234567890")
	s.Require().True(res.Success)
	s.Require().GreaterOrEqual(time.Since(start), 10*time.Millisecond)
	rl.AssertExpectations(s.T())
}

func (s *AdapterSuite) TestGetTracking_RateLimiterErrorIgnored() {
	rl := &rateLimiterMock{}
	rl.On("Allow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(false, int64(0), errors.New("redis down")).Once()

	a := NewLive(s.profile, FetcherFunc(func(context.Context, models.CarrierType, string) (models.TrackingResult, error) {
		return models.TrackingResult{StatusRaw: "Entregado"}, nil
	}), WithRateLimit(rl, 10))

	res := a.GetTracking(context.Background(), "1234567890")
	s.Require().True(res.Success)
	s.Require().Equal(models.TrackingStatusDelivered, res.CurrentStatus)
}

func TestAdapterDetect(t *testing.T) {
	p, _ := ProfileFor(models.CarrierTCC)
	a := NewLive(p, FetcherFunc(func(context.Context, models.CarrierType, string) (models.TrackingResult, error) {
		return models.TrackingResult{}, nil
	}))
	require.True(t, a.Detect("tcc123456"))
	require.False(t, a.Detect("1234567890"))
	require.Equal(t, models.CarrierTCC, a.Carrier())
	require.Equal(t, "closed", a.BreakerState())
}
