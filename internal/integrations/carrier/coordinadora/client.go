package coordinadora

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/litperpro/litper/internal/integrations/carrier"
	"github.com/litperpro/litper/internal/models"
	"github.com/pkg/errors"
)

// Client ходит в REST API Coordinadora (JSON, ключ в заголовке).
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "https://api.coordinadora.com"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		// Общий таймаут задаёт адаптер через контекст; здесь только страховка от зависших соединений.
		httpc: &http.Client{Timeout: 45 * time.Second},
	}
}

type respEvent struct {
	Fecha       time.Time `json:"fecha"`
	Descripcion string    `json:"descripcion"`
	Ciudad      string    `json:"ciudad"`
}

type respBody struct {
	Guia          string      `json:"guia"`
	Estado        string      `json:"estado"`
	Origen        string      `json:"origen"`
	Destino       string      `json:"destino"`
	FechaEstimada string      `json:"fecha_estimada"`
	Eventos       []respEvent `json:"eventos"`
}

func (c *Client) Fetch(ctx context.Context, _ models.CarrierType, trackingNumber string) (models.TrackingResult, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return models.TrackingResult{}, errors.Wrap(err, "parse base url")
	}
	u.Path = fmt.Sprintf("/api/v1/guias/%s", url.PathEscape(trackingNumber))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return models.TrackingResult{}, errors.Wrap(err, "new request")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return models.TrackingResult{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return models.TrackingResult{}, errors.Wrapf(carrier.ErrNotFound, "guia %s", trackingNumber)
	case resp.StatusCode == http.StatusTooManyRequests:
		return models.TrackingResult{}, fmt.Errorf("coordinadora rate limit (429)")
	case resp.StatusCode/100 != 2:
		return models.TrackingResult{}, fmt.Errorf("coordinadora http %d", resp.StatusCode)
	}

	var rb respBody
	if err := json.NewDecoder(resp.Body).Decode(&rb); err != nil {
		return models.TrackingResult{}, errors.Wrap(err, "decode")
	}

	events := make([]models.TrackingEvent, 0, len(rb.Eventos))
	for _, e := range rb.Eventos {
		events = append(events, models.TrackingEvent{
			Timestamp:   e.Fecha.UTC(),
			Status:      carrier.NormalizeStatus(e.Descripcion),
			Description: e.Descripcion,
			Location:    e.Ciudad,
		})
	}

	res := models.TrackingResult{
		TrackingNumber: trackingNumber,
		CurrentStatus:  carrier.NormalizeStatus(rb.Estado),
		StatusRaw:      rb.Estado,
		Events:         events,
		Origin:         rb.Origen,
		Destination:    rb.Destino,
		CheckedAt:      time.Now().UTC(),
	}
	if rb.FechaEstimada != "" {
		if t, err := time.Parse("2006-01-02", rb.FechaEstimada); err == nil {
			res.EstimatedDelivery = &t
		}
	}
	return res, nil
}
