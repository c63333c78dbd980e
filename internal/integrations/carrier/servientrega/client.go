package servientrega

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

// Bogotá, UTC-5 без перехода на летнее время.
var colombia = time.FixedZone("COT", -5*60*60)

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "https://mobile.servientrega.com"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: 45 * time.Second},
	}
}

type seResp struct {
	Resultado string `json:"Resultado"`
	Guia      struct {
		NumGui      string `json:"NumGui"`
		EstAct      string `json:"EstAct"`
		CiuRem      string `json:"CiuRem"`
		CiuDes      string `json:"CiuDes"`
		FecEst      string `json:"FecEst"`
		Movimientos []struct {
			FecMov  string `json:"FecMov"`
			DesMov  string `json:"DesMov"`
			OriMov  string `json:"OriMov"`
			NomConc string `json:"NomConc"`
		} `json:"Mov"`
	} `json:"Guia"`
}

func (c *Client) Fetch(ctx context.Context, _ models.CarrierType, trackingNumber string) (models.TrackingResult, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return models.TrackingResult{}, errors.Wrap(err, "parse base url")
	}
	u.Path = "/ApiIngresoCLientes/api/ConsultaGuia"

	q := u.Query()
	q.Set("guia", trackingNumber)
	q.Set("apiKey", c.apiKey)
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
		return models.TrackingResult{}, errors.Wrapf(carrier.ErrNotFound, "guia %s", trackingNumber)
	}
	if resp.StatusCode/100 != 2 {
		return models.TrackingResult{}, fmt.Errorf("servientrega http %d", resp.StatusCode)
	}

	var r seResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return models.TrackingResult{}, errors.Wrap(err, "decode")
	}
	if strings.Contains(strings.ToUpper(r.Resultado), "NO EXISTE") {
		return models.TrackingResult{}, errors.Wrapf(carrier.ErrNotFound, "servientrega resultado=%s", r.Resultado)
	}
	if r.Resultado != "OK" {
		return models.TrackingResult{}, fmt.Errorf("servientrega resultado=%s", r.Resultado)
	}

	now := time.Now().UTC()
	events := make([]models.TrackingEvent, 0, len(r.Guia.Movimientos))
	for _, m := range r.Guia.Movimientos {
		evTime := now
		// Пример: "14/10/2026 08:35"
		if t, err := time.ParseInLocation("02/01/2006 15:04", m.FecMov, colombia); err == nil {
			evTime = t.UTC()
		}
		text := m.NomConc
		if text == "" {
			text = m.DesMov
		}
		events = append(events, models.TrackingEvent{
			Timestamp:   evTime,
			Status:      carrier.NormalizeStatus(text),
			Description: text,
			Location:    m.OriMov,
		})
	}

	res := models.TrackingResult{
		TrackingNumber: trackingNumber,
		CurrentStatus:  carrier.NormalizeStatus(r.Guia.EstAct),
		StatusRaw:      r.Guia.EstAct,
		Events:         events,
		Origin:         r.Guia.CiuRem,
		Destination:    r.Guia.CiuDes,
		CheckedAt:      now,
	}
	if r.Guia.FecEst != "" {
		if t, err := time.ParseInLocation("02/01/2006", r.Guia.FecEst, colombia); err == nil {
			res.EstimatedDelivery = &t
		}
	}
	return res, nil
}
