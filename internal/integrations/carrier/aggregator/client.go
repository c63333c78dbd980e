package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/litperpro/litper/internal/integrations/carrier"
	"github.com/litperpro/litper/internal/models"
	"github.com/pkg/errors"
)

// Client: агрегатор трекинга для перевозчиков без собственного публичного API
// (Interrapidísimo, Envía, TCC). Перевозчик передаётся параметром.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9000"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: 45 * time.Second},
	}
}

type aggResp struct {
	Status string `json:"status"`
	Data   struct {
		Origin      string `json:"origin"`
		Destination string `json:"destination"`
		Events      []struct {
			OperationDateTime  string `json:"operationDateTime"`
			OperationAttribute string `json:"operationAttribute"`
			OperationType      string `json:"operationType"`
			OperationPlaceName string `json:"operationPlaceName"`
		} `json:"events"`
	} `json:"data"`
	Message string `json:"message"`
}

func (c *Client) Fetch(ctx context.Context, carrierCode models.CarrierType, trackingNumber string) (models.TrackingResult, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return models.TrackingResult{}, errors.Wrap(err, "parse base url")
	}
	u.Path = "/tracking.json"

	q := u.Query()
	q.Set("apiKey", c.apiKey)
	q.Set("carrier", strings.ToLower(string(carrierCode)))
	q.Set("code", trackingNumber)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return models.TrackingResult{}, errors.Wrap(err, "new request")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return models.TrackingResult{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return models.TrackingResult{}, errors.Wrapf(carrier.ErrNotFound, "aggregator %s", trackingNumber)
	}
	if resp.StatusCode/100 != 2 {
		return models.TrackingResult{}, fmt.Errorf("aggregator http %d", resp.StatusCode)
	}

	var r aggResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return models.TrackingResult{}, errors.Wrap(err, "decode")
	}
	if r.Status != "ok" && strings.Contains(strings.ToLower(r.Message), "not found") {
		return models.TrackingResult{}, errors.Wrapf(carrier.ErrNotFound, "aggregator status=%s %s", r.Status, r.Message)
	}
	if r.Status != "ok" {
		return models.TrackingResult{}, fmt.Errorf("aggregator status=%s %s", r.Status, r.Message)
	}

	now := time.Now().UTC()
	var events []models.TrackingEvent
	for _, e := range r.Data.Events {
		evTime := now
		// Формат агрегатора: "14.10.2026 19:16:00"
		if e.OperationDateTime != "" {
			if t, err := time.ParseInLocation("02.01.2006 15:04:05", e.OperationDateTime, time.UTC); err == nil {
				evTime = t.UTC()
			}
		}
		events = append(events, models.TrackingEvent{
			Timestamp:   evTime,
			Status:      carrier.NormalizeStatus(e.OperationAttribute),
			Description: e.OperationAttribute,
			Location:    e.OperationPlaceName,
		})
	}

	// Агрегатор отдаёт события от старых к новым; текущий статус: по последнему.
	statusRaw := ""
	if len(r.Data.Events) > 0 {
		statusRaw = r.Data.Events[len(r.Data.Events)-1].OperationAttribute
	}

	return models.TrackingResult{
		TrackingNumber: trackingNumber,
		CurrentStatus:  carrier.NormalizeStatus(statusRaw),
		StatusRaw:      statusRaw,
		Events:         events,
		Origin:         r.Data.Origin,
		Destination:    r.Data.Destination,
		CheckedAt:      now,
	}, nil
}
