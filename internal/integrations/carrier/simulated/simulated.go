package simulated

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/litperpro/litper/internal/models"
)

type Rand interface {
	Intn(n int) int
}

// Fetcher: режим симуляции перевозчика, когда нет учётных данных.
// Значения случайные, но всегда корректно типизированы: статус из словаря, город из списка, дни в пределах недели.
type Fetcher struct {
	mu  sync.Mutex
	r   Rand
	now func() time.Time
}

func New(r Rand) *Fetcher {
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Fetcher{r: r, now: func() time.Time { return time.Now().UTC() }}
}

var cities = []string{
	"BOGOTA", "MEDELLIN", "CALI", "BARRANQUILLA", "CARTAGENA",
	"BUCARAMANGA", "PEREIRA", "MANIZALES", "CUCUTA", "IBAGUE",
}

type step struct {
	status models.TrackingStatus
	text   string
}

// Линейная история доставки; симуляция обрезает её на случайном шаге.
var happyPath = []step{
	{models.TrackingStatusCreated, "Guia generada"},
	{models.TrackingStatusPickedUp, "Envio recogido por el mensajero"},
	{models.TrackingStatusInWarehouse, "Ingreso a bodega de origen"},
	{models.TrackingStatusInTransit, "En transito hacia ciudad destino"},
	{models.TrackingStatusOutForDelivery, "En reparto"},
	{models.TrackingStatusDelivered, "Entregado al destinatario"},
}

var endings = []step{
	{models.TrackingStatusException, "Novedad: destinatario ausente"},
	{models.TrackingStatusException, "Novedad: direccion errada o incompleta"},
	{models.TrackingStatusException, "Novedad: cliente rechaza el envio"},
	{models.TrackingStatusReturned, "Devuelto al remitente"},
}

func (f *Fetcher) Fetch(ctx context.Context, carrier models.CarrierType, trackingNumber string) (models.TrackingResult, error) {
	if err := ctx.Err(); err != nil {
		return models.TrackingResult{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	origin := cities[f.r.Intn(len(cities))]
	dest := cities[f.r.Intn(len(cities))]

	path := append([]step{}, happyPath[:1+f.r.Intn(len(happyPath))]...)
	last := path[len(path)-1]
	// ~25% незавершённых отправлений получают новедад или возврат.
	if last.status != models.TrackingStatusDelivered && f.r.Intn(4) == 0 {
		path = append(path, endings[f.r.Intn(len(endings))])
	}

	// События от старых к новым, шаг 0..2 дня.
	daysBack := 0
	events := make([]models.TrackingEvent, len(path))
	for i := len(path) - 1; i >= 0; i-- {
		loc := origin
		if i >= len(path)/2 {
			loc = dest
		}
		events[i] = models.TrackingEvent{
			Timestamp:   now.Add(-time.Duration(daysBack)*24*time.Hour - time.Duration(len(path)-i)*time.Hour),
			Status:      path[i].status,
			Description: path[i].text,
			Location:    loc,
		}
		daysBack += f.r.Intn(3)
	}

	final := path[len(path)-1]
	res := models.TrackingResult{
		TrackingNumber: trackingNumber,
		Carrier:        carrier,
		CurrentStatus:  final.status,
		StatusRaw:      final.text,
		Events:         events,
		Origin:         origin,
		Destination:    dest,
		CheckedAt:      now,
	}
	if final.status != models.TrackingStatusDelivered {
		eta := now.Add(time.Duration(1+f.r.Intn(5)) * 24 * time.Hour)
		res.EstimatedDelivery = &eta
	}
	return res, nil
}
