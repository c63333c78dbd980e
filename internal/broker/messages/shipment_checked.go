package messages

import (
	"time"

	"github.com/litperpro/litper/internal/models"
)

// ShipmentChecked публикует worker после каждой проверки отслеживаемого отправления.
type ShipmentChecked struct {
	ShipmentID     uint64             `json:"shipment_id"`
	Carrier        models.CarrierType `json:"carrier"`
	TrackingNumber string             `json:"tracking_number"`
	CheckedAt      time.Time          `json:"checked_at"`

	Status    models.TrackingStatus `json:"status,omitempty"`
	StatusRaw string                `json:"status_raw,omitempty"`
	StatusAt  *time.Time            `json:"status_at,omitempty"`
	HasIssue  bool                  `json:"has_issue"`
	Simulated bool                  `json:"simulated,omitempty"`

	NextCheckAt time.Time `json:"next_check_at"`

	Events []ShipmentEvent `json:"events,omitempty"`

	Error *string `json:"error,omitempty"`
}

type ShipmentEvent struct {
	Status      models.TrackingStatus `json:"status"`
	Description string                `json:"description"`
	Location    *string               `json:"location,omitempty"`
	EventTime   time.Time             `json:"event_time"`
}
