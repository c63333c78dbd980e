package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/litperpro/litper/config"
	"github.com/litperpro/litper/internal/integrations/carrier"
	"github.com/litperpro/litper/internal/models"
	"github.com/stretchr/testify/require"
)

func TestBuild_NoCredentialsAllSimulated(t *testing.T) {
	adapters := Build(config.CarriersConfig{}, time.Second, nil, nil)

	require.Len(t, adapters, len(models.KnownCarriers()))
	for i, a := range adapters {
		require.Equal(t, models.KnownCarriers()[i], a.Carrier())
		require.Equal(t, carrier.ModeSimulated, a.Mode())
	}

	res := adapters[0].GetTracking(context.Background(), "1234567890")
	require.True(t, res.Success)
	require.True(t, res.Simulated)
}

func TestBuild_LiveWhenConfigured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"guia":"1234567890","estado":"Entregado","eventos":[]}`))
	}))
	defer srv.Close()

	adapters := Build(config.CarriersConfig{
		Coordinadora:               config.CarrierConfig{BaseURL: srv.URL, APIKey: "k"},
		Aggregator:                 config.CarrierConfig{BaseURL: srv.URL},
		BreakerConsecutiveFailures: 3,
		BreakerOpenSeconds:         10,
	}, time.Second, nil, nil)

	require.Equal(t, carrier.ModeLive, adapters[0].Mode())
	require.Equal(t, carrier.ModeSimulated, adapters[1].Mode())
	// агрегатор без ключа остаётся в симуляции
	require.Equal(t, carrier.ModeSimulated, adapters[2].Mode())

	res := adapters[0].GetTracking(context.Background(), "1234567890")
	require.True(t, res.Success)
	require.False(t, res.Simulated)
	require.Equal(t, models.TrackingStatusDelivered, res.CurrentStatus)
}
