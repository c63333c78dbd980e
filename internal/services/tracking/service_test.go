package tracking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/litperpro/litper/internal/cache/mocks"
	"github.com/litperpro/litper/internal/cache/rediscache"
	"github.com/litperpro/litper/internal/integrations/carrier"
	"github.com/litperpro/litper/internal/models"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type countingFetcher struct {
	calls atomic.Int32
	fn    func(ctx context.Context, c models.CarrierType, tn string) (models.TrackingResult, error)
}

func (f *countingFetcher) Fetch(ctx context.Context, c models.CarrierType, tn string) (models.TrackingResult, error) {
	f.calls.Add(1)
	if f.fn != nil {
		return f.fn(ctx, c, tn)
	}
	return models.TrackingResult{StatusRaw: "En transito"}, nil
}

func adaptersFor(f carrier.Fetcher) []*carrier.Adapter {
	out := make([]*carrier.Adapter, 0, 5)
	for _, c := range models.KnownCarriers() {
		p, _ := carrier.ProfileFor(c)
		out = append(out, carrier.NewLive(p, f, carrier.WithTimeout(2*time.Second)))
	}
	return out
}

type ServiceSuite struct {
	suite.Suite

	fetcher *countingFetcher
	now     time.Time
	svc     *Service
}

func (s *ServiceSuite) SetupTest() {
	s.fetcher = &countingFetcher{}
	s.now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s.svc = New(adaptersFor(s.fetcher), WithClock(func() time.Time { return s.now }))
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) TestDetectCarrier() {
	cases := map[string]models.CarrierType{
		"1234567890":      models.CarrierCoordinadora,
		"12345678901":     models.CarrierCoordinadora,
		"123456789":       models.CarrierServientrega,
		"SE12345678":      models.CarrierServientrega,
		"IR12345678":      models.CarrierInterrapidisimo,
		"1234567890123":   models.CarrierInterrapidisimo,
		"ENV123456":       models.CarrierEnvia,
		"12345678":        models.CarrierEnvia,
		"TCC123456":       models.CarrierTCC,
		"123456789012345": models.CarrierTCC,
		" tcc123456 ":     models.CarrierTCC,
		// эвристики
		"123456789012": models.CarrierCoordinadora,
		"SE-12":        models.CarrierServientrega,
		"ENVX1":        models.CarrierEnvia,
		"IR-1":         models.CarrierInterrapidisimo,
		"ABC":          models.CarrierUnknown,
		"":             models.CarrierUnknown,
		"1234567":      models.CarrierUnknown,
	}
	for tn, want := range cases {
		s.Require().Equal(want, s.svc.DetectCarrier(tn), tn)
	}
}

func (s *ServiceSuite) TestGetTracking_CachedWithinTTL() {
	ctx := context.Background()

	first := s.svc.GetTracking(ctx, "1234567890", "", true)
	s.Require().True(first.Success)
	s.Require().Equal(models.CarrierCoordinadora, first.Carrier)
	s.Require().Equal(models.TrackingStatusInTransit, first.CurrentStatus)

	s.now = s.now.Add(299 * time.Second)
	second := s.svc.GetTracking(ctx, " 1234567890 ", "", true)
	s.Require().Equal(first, second)
	s.Require().EqualValues(1, s.fetcher.calls.Load())

	st := s.svc.GetCacheStats()
	s.Require().EqualValues(1, st.Hits)
	s.Require().EqualValues(1, st.Misses)
	s.Require().Equal(300, st.TTLSeconds)
}

func (s *ServiceSuite) TestGetTracking_ExpiredEntryRefetched() {
	ctx := context.Background()
	s.svc.GetTracking(ctx, "1234567890", "", true)

	s.now = s.now.Add(301 * time.Second)
	st := s.svc.GetCacheStats()
	s.Require().Equal(1, st.TotalEntries)
	s.Require().Equal(1, st.ExpiredEntries)

	s.svc.GetTracking(ctx, "1234567890", "", true)
	s.Require().EqualValues(2, s.fetcher.calls.Load())
}

func (s *ServiceSuite) TestGetTracking_NoCacheAlwaysFetches() {
	ctx := context.Background()
	s.svc.GetTracking(ctx, "1234567890", "", true)
	s.svc.GetTracking(ctx, "1234567890", "", false)
	s.Require().EqualValues(2, s.fetcher.calls.Load())
}

func (s *ServiceSuite) TestGetTracking_UnknownCarrierNoNetworkCall() {
	res := s.svc.GetTracking(context.Background(), "XYZ", "", true)
	s.Require().False(res.Success)
	s.Require().Equal(models.CarrierUnknown, res.Carrier)
	s.Require().Equal(models.TrackingStatusUnknown, res.CurrentStatus)
	s.Require().NotEmpty(res.ErrorMessage)
	s.Require().EqualValues(0, s.fetcher.calls.Load())
}

func (s *ServiceSuite) TestGetTracking_ExplicitCarrierOverridesDetection() {
	res := s.svc.GetTracking(context.Background(), "1234567890", models.CarrierTCC, true)
	s.Require().True(res.Success)
	s.Require().Equal(models.CarrierTCC, res.Carrier)
}

func (s *ServiceSuite) TestGetTracking_DegradedResultIsCached() {
	s.fetcher.fn = func(context.Context, models.CarrierType, string) (models.TrackingResult, error) {
		return models.TrackingResult{}, errors.New("502 bad gateway")
	}
	ctx := context.Background()

	res := s.svc.GetTracking(ctx, "123456789", "", true)
	s.Require().False(res.Success)
	s.Require().Contains(res.ErrorMessage, "502")

	s.svc.GetTracking(ctx, "123456789", "", true)
	s.Require().EqualValues(1, s.fetcher.calls.Load())
}

func (s *ServiceSuite) TestGetTracking_ConcurrentLookupsCollapse() {
	release := make(chan struct{})
	s.fetcher.fn = func(context.Context, models.CarrierType, string) (models.TrackingResult, error) {
		<-release
		return models.TrackingResult{StatusRaw: "Entregado"}, nil
	}

	var wg sync.WaitGroup
	results := make([]models.TrackingResult, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.svc.GetTracking(context.Background(), "TCC123456", "", true)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	s.Require().EqualValues(1, s.fetcher.calls.Load())
	for _, r := range results {
		s.Require().Equal(models.TrackingStatusDelivered, r.CurrentStatus)
	}
}

func (s *ServiceSuite) TestGetBulkTracking_OrderAndFailures() {
	s.fetcher.fn = func(_ context.Context, _ models.CarrierType, tn string) (models.TrackingResult, error) {
		switch tn {
		case "1234567890":
			time.Sleep(30 * time.Millisecond)
			return models.TrackingResult{StatusRaw: "Entregado"}, nil
		case "123456789":
			return models.TrackingResult{}, errors.New("timeout")
		case "TCC123456":
			panic("boom")
		}
		return models.TrackingResult{StatusRaw: "En reparto"}, nil
	}

	in := []string{"1234567890", "123456789", "TCC123456", "ENV123456", "???"}
	out := s.svc.GetBulkTracking(context.Background(), in, 2)

	s.Require().Len(out, len(in))
	s.Require().Equal("1234567890", out[0].TrackingNumber)
	s.Require().True(out[0].Success)
	s.Require().False(out[1].Success)
	s.Require().Equal("TCC123456", out[2].TrackingNumber)
	s.Require().False(out[2].Success)
	s.Require().Equal(models.TrackingStatusOutForDelivery, out[3].CurrentStatus)
	s.Require().Equal(models.CarrierUnknown, out[4].Carrier)
	s.Require().False(out[4].Success)
}

func (s *ServiceSuite) TestGetBulkTracking_RespectsConcurrencyLimit() {
	var inFlight, peak atomic.Int32
	s.fetcher.fn = func(context.Context, models.CarrierType, string) (models.TrackingResult, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return models.TrackingResult{StatusRaw: "En transito"}, nil
	}

	in := []string{"1000000001", "1000000002", "1000000003", "1000000004", "1000000005", "1000000006"}
	out := s.svc.GetBulkTracking(context.Background(), in, 2)
	s.Require().Len(out, 6)
	s.Require().LessOrEqual(peak.Load(), int32(2))
}

func (s *ServiceSuite) TestGetBulkTracking_CancelledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := s.svc.GetBulkTracking(ctx, []string{"1234567890", "123456789"}, 0)
	s.Require().Len(out, 2)
	for _, r := range out {
		s.Require().False(r.Success)
	}
	s.Require().EqualValues(0, s.fetcher.calls.Load())
}

func (s *ServiceSuite) TestGetTracking_CancelledCallerDoesNotPoisonCache() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.svc.GetTracking(ctx, "1234567890", "", true)

	res := s.svc.GetTracking(context.Background(), "1234567890", "", true)
	s.Require().True(res.Success)
	s.Require().Empty(res.ErrorMessage)
	s.Require().EqualValues(1, s.fetcher.calls.Load())
}

func (s *ServiceSuite) TestGetTracking_CallerGivesUpLookupCompletes() {
	release := make(chan struct{})
	s.fetcher.fn = func(context.Context, models.CarrierType, string) (models.TrackingResult, error) {
		<-release
		return models.TrackingResult{StatusRaw: "Entregado"}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	res := s.svc.GetTracking(ctx, "1234567890", "", true)
	s.Require().False(res.Success)
	s.Require().Contains(res.ErrorMessage, "deadline exceeded")
	s.Require().Less(time.Since(start), time.Second)

	// запрос к перевозчику дорабатывает и кладёт результат в кэш
	close(release)
	s.Require().Eventually(func() bool {
		return s.svc.GetCacheStats().ValidEntries == 1
	}, time.Second, 5*time.Millisecond)

	res = s.svc.GetTracking(context.Background(), "1234567890", "", true)
	s.Require().True(res.Success)
	s.Require().Equal(models.TrackingStatusDelivered, res.CurrentStatus)
	s.Require().EqualValues(1, s.fetcher.calls.Load())
}

func (s *ServiceSuite) TestClearCache() {
	ctx := context.Background()
	s.svc.GetTracking(ctx, "1234567890", "", true)
	s.svc.GetTracking(ctx, "123456789", "", true)

	s.Require().Equal(2, s.svc.ClearCache(ctx))
	s.Require().Equal(0, s.svc.GetCacheStats().TotalEntries)

	s.svc.GetTracking(ctx, "1234567890", "", true)
	s.Require().EqualValues(3, s.fetcher.calls.Load())
}

type recorderStub struct {
	mu  sync.Mutex
	got []models.TrackingResult
}

func (r *recorderStub) RecordTracking(_ context.Context, res models.TrackingResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, res)
}

func TestGetTracking_RecorderSeesFreshLookupsOnly(t *testing.T) {
	f := &countingFetcher{}
	rec := &recorderStub{}
	svc := New(adaptersFor(f), WithRecorder(rec))

	svc.GetTracking(context.Background(), "1234567890", "", true)
	svc.GetTracking(context.Background(), "1234567890", "", true)

	require.Len(t, rec.got, 1)
	require.Equal(t, "1234567890", rec.got[0].TrackingNumber)
}

func TestGetTracking_SharedCacheBetweenInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	shared := rediscache.New(mr.Addr())
	f := &countingFetcher{}

	a := New(adaptersFor(f), WithSharedCache(shared))
	b := New(adaptersFor(f), WithSharedCache(shared))

	first := a.GetTracking(context.Background(), "ENV123456", "", true)
	second := b.GetTracking(context.Background(), "ENV123456", "", true)

	require.EqualValues(t, 1, f.calls.Load())
	require.Equal(t, first.CurrentStatus, second.CurrentStatus)
	require.True(t, mr.Exists("tracking:result:ENV123456"))

	a.ClearCache(context.Background())
	require.False(t, mr.Exists("tracking:result:ENV123456"))
}

func TestGetTracking_SharedCacheErrorsIgnored(t *testing.T) {
	c := &mocks.MockBytesCache{}
	c.On("Get", mock.Anything, "tracking:result:1234567890").Return(nil, false, errors.New("redis down")).Once()
	c.On("Set", mock.Anything, "tracking:result:1234567890", mock.Anything, DefaultTTL).Return(errors.New("redis down")).Once()

	f := &countingFetcher{}
	svc := New(adaptersFor(f), WithSharedCache(c))

	res := svc.GetTracking(context.Background(), "1234567890", "", true)
	require.True(t, res.Success)
	c.AssertExpectations(t)
}
