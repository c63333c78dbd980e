package carrier

import (
	"github.com/litperpro/litper/internal/models"
	"github.com/litperpro/litper/internal/textfold"
)

type statusRule struct {
	status   models.TrackingStatus
	keywords []string
}

// statusRules проверяются строго по порядку: текст перевозчика шумный, и в одной
// строке могут встретиться ключевые слова нескольких статусов. Первое совпадение выигрывает.
var statusRules = []statusRule{
	{models.TrackingStatusDelivered, []string{"entregado", "entregada", "entrega exitosa", "delivered"}},
	{models.TrackingStatusOutForDelivery, []string{"en reparto", "reparto", "en ruta de entrega", "en distribucion", "out for delivery"}},
	{models.TrackingStatusReturned, []string{"devuelto", "devolucion", "retorno", "returned"}},
	{models.TrackingStatusException, []string{"novedad", "excepcion", "exception", "no se pudo", "rechazad", "direccion errada", "ausente", "siniestro"}},
	{models.TrackingStatusInWarehouse, []string{"bodega", "almacen", "centro logistico", "terminal", "warehouse"}},
	{models.TrackingStatusInTransit, []string{"transito", "en camino", "viajando", "despachad", "in transit"}},
	{models.TrackingStatusPickedUp, []string{"recogid", "recolectad", "recoleccion", "admitid", "picked up"}},
	{models.TrackingStatusCreated, []string{"creado", "creada", "generada", "registrad", "created"}},
	{models.TrackingStatusCancelled, []string{"anulad", "cancelad", "cancelled", "canceled"}},
}

// NormalizeStatus maps carrier free text to the unified status vocabulary.
func NormalizeStatus(raw string) models.TrackingStatus {
	text := textfold.Fold(raw)
	if text == "" {
		return models.TrackingStatusUnknown
	}
	for _, r := range statusRules {
		if textfold.ContainsAny(text, r.keywords) {
			return r.status
		}
	}
	return models.TrackingStatusUnknown
}
