package carrier

import (
	"testing"

	"github.com/litperpro/litper/internal/models"
	"github.com/stretchr/testify/require"
)

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]models.TrackingStatus{
		"ENTREGADO":                            models.TrackingStatusDelivered,
		"Entrega exitosa al destinatario":      models.TrackingStatusDelivered,
		"En reparto":                           models.TrackingStatusOutForDelivery,
		"Out for delivery":                     models.TrackingStatusOutForDelivery,
		"Devuelto al remitente":                models.TrackingStatusReturned,
		"Novedad: destinatario ausente":        models.TrackingStatusException,
		"Ingreso a bodega":                     models.TrackingStatusInWarehouse,
		"En Tránsito":                          models.TrackingStatusInTransit,
		"Despachado a ciudad destino":          models.TrackingStatusInTransit,
		"Envío recogido":                       models.TrackingStatusPickedUp,
		"Guía generada":                        models.TrackingStatusCreated,
		"Guía anulada":                         models.TrackingStatusCancelled,
		"":                                     models.TrackingStatusUnknown,
		"???":                                  models.TrackingStatusUnknown,
		// несколько классов в одной строке: побеждает более ранний
		"Entregado tras novedad en reparto":    models.TrackingStatusDelivered,
		"En reparto, salió de bodega":          models.TrackingStatusOutForDelivery,
		"Novedad en tránsito":                  models.TrackingStatusException,
		"Recogido y despachado en tránsito":    models.TrackingStatusInTransit,
	}
	for raw, want := range cases {
		require.Equal(t, want, NormalizeStatus(raw), raw)
	}
}
