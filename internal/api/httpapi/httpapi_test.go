package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/litperpro/litper/internal/broker/messages"
	"github.com/litperpro/litper/internal/integrations/carrier"
	"github.com/litperpro/litper/internal/models"
	"github.com/litperpro/litper/internal/services/rescue"
	rescuemocks "github.com/litperpro/litper/internal/services/rescue/mocks"
	"github.com/litperpro/litper/internal/services/shipments"
	shipmentsmocks "github.com/litperpro/litper/internal/services/shipments/mocks"
	"github.com/litperpro/litper/internal/services/tracking"
	"github.com/litperpro/litper/internal/storage/pgstore"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type fakeActivityLog struct {
	list []messages.RescueActivity
}

func (f *fakeActivityLog) ListRescueActivity(_ context.Context, tn string, _ int) ([]messages.RescueActivity, error) {
	out := []messages.RescueActivity{}
	for _, a := range f.list {
		if a.TrackingNumber == tn {
			out = append(out, a)
		}
	}
	return out, nil
}

type APISuite struct {
	suite.Suite

	messenger *rescuemocks.MockMessenger
	repo      *shipmentsmocks.MockRepository
	rescue    *rescue.Service
	srv       *httptest.Server
}

func (s *APISuite) SetupTest() {
	fetch := carrier.FetcherFunc(func(_ context.Context, _ models.CarrierType, tn string) (models.TrackingResult, error) {
		if strings.HasSuffix(tn, "0000") {
			return models.TrackingResult{}, errors.New("upstream 503")
		}
		return models.TrackingResult{
			CurrentStatus: models.TrackingStatusInTransit,
			StatusRaw:     "En transito",
			Events: []models.TrackingEvent{
				{Timestamp: time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC), Status: models.TrackingStatusInTransit, Description: "En transito"},
			},
		}, nil
	})
	adapters := make([]*carrier.Adapter, 0, len(models.KnownCarriers()))
	for _, c := range models.KnownCarriers() {
		p, _ := carrier.ProfileFor(c)
		adapters = append(adapters, carrier.NewLive(p, fetch, carrier.WithTimeout(time.Second)))
	}

	s.messenger = &rescuemocks.MockMessenger{}
	s.repo = &shipmentsmocks.MockRepository{}
	s.rescue = rescue.New(s.messenger, rescue.WithSendInterval(time.Millisecond))

	api := New(
		tracking.New(adapters),
		s.rescue,
		shipments.New(s.repo, nil, 0),
		&fakeActivityLog{list: []messages.RescueActivity{
			{ID: "a1", TrackingNumber: "1234567890", Action: messages.RescueActionQueued},
		}},
		Options{BulkMaxConcurrent: 4},
	)
	s.srv = httptest.NewServer(api.Router())
}

func (s *APISuite) TearDownTest() {
	s.srv.Close()
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}

func (s *APISuite) do(method, path, body string) (*http.Response, []byte) {
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, rd)
	s.Require().NoError(err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	return resp, b
}

func (s *APISuite) decode(b []byte, v any) {
	s.Require().NoError(json.Unmarshal(b, v), string(b))
}

func (s *APISuite) TestHealthAndDocs() {
	resp, _ := s.do(http.MethodGet, "/healthz", "")
	s.Equal(http.StatusOK, resp.StatusCode)

	resp, _ = s.do(http.MethodGet, "/readyz", "")
	s.Equal(http.StatusOK, resp.StatusCode)

	resp, b := s.do(http.MethodGet, "/swagger.json", "")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Contains(string(b), `"openapi"`)

	resp, _ = s.do(http.MethodGet, "/metrics", "")
	s.Equal(http.StatusOK, resp.StatusCode)
}

func (s *APISuite) TestGetTracking() {
	resp, b := s.do(http.MethodGet, "/api/v1/tracking/1234567890", "")
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var res models.TrackingResult
	s.decode(b, &res)
	s.True(res.Success)
	s.Equal(models.CarrierCoordinadora, res.Carrier)
	s.Equal(models.TrackingStatusInTransit, res.CurrentStatus)
	s.Len(res.Events, 1)
}

func (s *APISuite) TestGetTracking_BadQuery() {
	resp, _ := s.do(http.MethodGet, "/api/v1/tracking/1234567890?carrier=DHL", "")
	s.Equal(http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(http.MethodGet, "/api/v1/tracking/1234567890?use_cache=maybe", "")
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *APISuite) TestBulkTracking() {
	resp, b := s.do(http.MethodPost, "/api/v1/tracking/bulk", `{"tracking_numbers":["1234567890","1234560000","???"]}`)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var out bulkTrackingResponse
	s.decode(b, &out)
	s.Equal(3, out.Total)
	s.Equal(1, out.Successful)
	s.Equal(2, out.Failed)
	s.Equal("1234567890", out.Results[0].TrackingNumber)
	s.Equal("1234560000", out.Results[1].TrackingNumber)
	s.Equal("???", out.Results[2].TrackingNumber)

	resp, _ = s.do(http.MethodPost, "/api/v1/tracking/bulk", `{"tracking_numbers":[]}`)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *APISuite) TestDetectAndCache() {
	resp, b := s.do(http.MethodGet, "/api/v1/tracking/detect/1234567890", "")
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Contains(string(b), `"COORDINADORA"`)

	s.do(http.MethodGet, "/api/v1/tracking/1234567890", "")
	s.do(http.MethodGet, "/api/v1/tracking/1234567890", "")

	resp, b = s.do(http.MethodGet, "/api/v1/tracking/cache/stats", "")
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var st tracking.CacheStats
	s.decode(b, &st)
	s.Equal(1, st.TotalEntries)
	s.Equal(uint64(1), st.Hits)

	resp, b = s.do(http.MethodDelete, "/api/v1/tracking/cache", "")
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.JSONEq(`{"cleared":1}`, string(b))

	resp, _ = s.do(http.MethodGet, "/api/v1/tracking/carriers", "")
	s.Equal(http.StatusOK, resp.StatusCode)
}

func (s *APISuite) TestRescueFlow() {
	resp, b := s.do(http.MethodPost, "/api/v1/rescue/queue",
		`{"tracking_number":"1234567890","customer_name":"Ana","customer_phone":"3001234567","novelty_description":"Cliente no estaba en casa","days_without_movement":6}`)
	s.Require().Equal(http.StatusCreated, resp.StatusCode, string(b))
	var it models.RescueItem
	s.decode(b, &it)
	s.Equal(models.PriorityCritical, it.Priority)
	s.Equal(models.NoveltyNoEstaba, it.NoveltyType)

	resp, b = s.do(http.MethodGet, "/api/v1/rescue/queue?priority=CRITICAL", "")
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Contains(string(b), `"total":1`)

	resp, b = s.do(http.MethodGet, "/api/v1/rescue/queue/1234567890/script", "")
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Contains(string(b), "Ana")

	s.messenger.On("SendRescueContact", mock.Anything, "3001234567", "Ana", "1234567890").
		Return(models.SendResult{Success: true, MessageID: "wamid.1"}).Once()
	resp, b = s.do(http.MethodPost, "/api/v1/rescue/queue/1234567890/whatsapp", "")
	s.Require().Equal(http.StatusOK, resp.StatusCode, string(b))
	s.Contains(string(b), "wamid.1")

	resp, _ = s.do(http.MethodPost, "/api/v1/rescue/queue/1234567890/call-completed", "")
	s.Equal(http.StatusOK, resp.StatusCode)

	resp, _ = s.do(http.MethodPost, "/api/v1/rescue/queue/1234567890/reschedule", `{"at":"2026-03-12T15:00:00Z","notes":"tarde"}`)
	s.Equal(http.StatusOK, resp.StatusCode)

	resp, _ = s.do(http.MethodPost, "/api/v1/rescue/queue/1234567890/recovered", `{"notes":"entregado"}`)
	s.Equal(http.StatusOK, resp.StatusCode)

	// повторный терминальный переход отклоняется
	resp, b = s.do(http.MethodPost, "/api/v1/rescue/queue/1234567890/lost", `{"reason":"x"}`)
	s.Equal(http.StatusConflict, resp.StatusCode)
	s.Contains(string(b), "already resolved")

	resp, b = s.do(http.MethodGet, "/api/v1/rescue/queue/1234567890", "")
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.decode(b, &it)
	s.Equal(models.RescueStatusRecovered, it.Status)

	resp, b = s.do(http.MethodGet, "/api/v1/rescue/stats", "")
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var st models.RescueQueueStats
	s.decode(b, &st)
	s.Equal(1, st.TotalRecovered)
	s.Equal(0, st.TotalInQueue)

	resp, b = s.do(http.MethodGet, "/api/v1/rescue/queue/1234567890/activity", "")
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Contains(string(b), `"a1"`)

	s.messenger.AssertExpectations(s.T())
}

func (s *APISuite) TestRescueErrors() {
	resp, _ := s.do(http.MethodPost, "/api/v1/rescue/queue", `{"tracking_number":""}`)
	s.Equal(http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(http.MethodPost, "/api/v1/rescue/queue", `{"tracking_number":"1","unknown_field":1}`)
	s.Equal(http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(http.MethodGet, "/api/v1/rescue/queue/NOPE", "")
	s.Equal(http.StatusNotFound, resp.StatusCode)

	resp, _ = s.do(http.MethodPost, "/api/v1/rescue/queue/NOPE/cancel", "")
	s.Equal(http.StatusNotFound, resp.StatusCode)

	resp, _ = s.do(http.MethodGet, "/api/v1/rescue/queue?priority=URGENT", "")
	s.Equal(http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(http.MethodPost, "/api/v1/rescue/whatsapp/bulk?priority=URGENT", "")
	s.Equal(http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(http.MethodPost, "/api/v1/rescue/queue/NOPE/reschedule", `{"notes":"x"}`)
	s.Equal(http.StatusBadRequest, resp.StatusCode)

	// без телефона
	s.do(http.MethodPost, "/api/v1/rescue/queue", `{"tracking_number":"SV1","days_without_movement":1}`)
	resp, b := s.do(http.MethodPost, "/api/v1/rescue/queue/SV1/whatsapp", "")
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Contains(string(b), "phone")

	for _, q := range []string{"-1", "abc"} {
		resp, _ = s.do(http.MethodGet, "/api/v1/rescue/queue/1234567890/activity?limit="+q, "")
		s.Equal(http.StatusBadRequest, resp.StatusCode, q)
		resp, _ = s.do(http.MethodGet, "/api/v1/rescue/queue?limit="+q, "")
		s.Equal(http.StatusBadRequest, resp.StatusCode, q)
	}
	resp, _ = s.do(http.MethodGet, "/api/v1/rescue/queue/1234567890/activity?limit=5", "")
	s.Equal(http.StatusOK, resp.StatusCode)
}

func (s *APISuite) TestRescueBulkAndExport() {
	resp, b := s.do(http.MethodPost, "/api/v1/rescue/queue/bulk",
		`{"items":[{"tracking_number":"A1","customer_phone":"3001112233","days_without_movement":2},{"tracking_number":"A2","days_without_movement":4}]}`)
	s.Require().Equal(http.StatusOK, resp.StatusCode, string(b))
	s.Contains(string(b), `"added":2`)

	s.messenger.On("SendRescueContact", mock.Anything, "3001112233", "", "A1").
		Return(models.SendResult{Success: true, MessageID: "m1"}).Once()
	resp, b = s.do(http.MethodPost, "/api/v1/rescue/whatsapp/bulk", "")
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var bulk models.BulkSendResult
	s.decode(b, &bulk)
	s.Equal(1, bulk.Total)
	s.Equal(1, bulk.Sent)

	resp, b = s.do(http.MethodGet, "/api/v1/rescue/export.csv", "")
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Contains(resp.Header.Get("Content-Type"), "text/csv")
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	s.Len(lines, 3)
	s.True(strings.HasPrefix(lines[0], "Guia,Transportadora"))
	s.True(strings.HasPrefix(lines[1], "A2,"))
}

func (s *APISuite) TestShipments() {
	s.repo.On("CreateOrGetShipments", mock.Anything, []models.ShipmentCreateInput{
		{Carrier: models.CarrierCoordinadora, TrackingNumber: "1234567890", CustomerPhone: "3001234567"},
	}).Return([]*models.Shipment{{ID: 1, Carrier: models.CarrierCoordinadora, TrackingNumber: "1234567890"}}, nil).Once()

	resp, b := s.do(http.MethodPost, "/api/v1/shipments",
		`{"items":[{"carrier":"COORDINADORA","tracking_number":"1234567890","customer_phone":"3001234567"}]}`)
	s.Require().Equal(http.StatusCreated, resp.StatusCode, string(b))
	s.Contains(string(b), `"id":1`)

	s.repo.On("GetShipmentsByIDs", mock.Anything, []uint64{1, 2}).
		Return([]*models.Shipment{{ID: 2}, {ID: 1}}, nil).Once()
	resp, b = s.do(http.MethodGet, "/api/v1/shipments?ids=1,2", "")
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var got struct {
		Shipments []models.Shipment `json:"shipments"`
	}
	s.decode(b, &got)
	s.Require().Len(got.Shipments, 2)
	s.Equal(uint64(1), got.Shipments[0].ID)

	resp, _ = s.do(http.MethodGet, "/api/v1/shipments?ids=x", "")
	s.Equal(http.StatusBadRequest, resp.StatusCode)

	s.repo.On("ListShipmentEvents", mock.Anything, uint64(1), 10, 0).
		Return([]*models.ShipmentEvent{{ID: 5, ShipmentID: 1}}, nil).Once()
	resp, b = s.do(http.MethodGet, "/api/v1/shipments/1/events?limit=10", "")
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Contains(string(b), `"shipment_id":1`)

	s.repo.On("RefreshShipment", mock.Anything, uint64(1)).Return(nil).Once()
	s.repo.On("RefreshShipment", mock.Anything, uint64(9)).Return(pgstore.ErrNotFound).Once()
	resp, _ = s.do(http.MethodPost, "/api/v1/shipments/1/refresh", "")
	s.Equal(http.StatusAccepted, resp.StatusCode)
	resp, _ = s.do(http.MethodPost, "/api/v1/shipments/9/refresh", "")
	s.Equal(http.StatusNotFound, resp.StatusCode)
	resp, _ = s.do(http.MethodPost, "/api/v1/shipments/abc/refresh", "")
	s.Equal(http.StatusBadRequest, resp.StatusCode)

	s.repo.AssertExpectations(s.T())
}

func TestRouter_RateLimit(t *testing.T) {
	api := New(tracking.New(nil), rescue.New(nil), nil, nil, Options{RateLimitPerMinute: 2})
	srv := httptest.NewServer(api.Router())
	defer srv.Close()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := http.Get(srv.URL + "/api/v1/rescue/stats")
		if err != nil {
			t.Fatal(err)
		}
		_ = resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	if codes[0] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status codes %v", codes)
	}

	// без хранилища маршруты shipments не регистрируются
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
}

func TestRouter_ReadyzFailure(t *testing.T) {
	api := New(tracking.New(nil), rescue.New(nil), nil, nil, Options{
		Ready: func(context.Context) error { return errors.New("redis down") },
	})
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
