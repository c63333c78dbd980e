package models

import "time"

// Shipment: guía из листа наблюдения, которую воркер периодически проверяет.
type Shipment struct {
	ID              uint64         `json:"id"`
	Carrier         CarrierType    `json:"carrier"`
	TrackingNumber  string         `json:"tracking_number"`
	CustomerName    string         `json:"customer_name,omitempty"`
	CustomerPhone   string         `json:"customer_phone,omitempty"`
	DestinationCity string         `json:"destination_city,omitempty"`
	Status          TrackingStatus `json:"status"`
	StatusRaw       string         `json:"status_raw"`
	StatusAt        *time.Time     `json:"status_at,omitempty"`
	LastCheckedAt   *time.Time     `json:"last_checked_at,omitempty"`
	NextCheckAt     time.Time      `json:"next_check_at"`
	CheckFailCount  int32          `json:"check_fail_count"`
	LastError       *string        `json:"last_error,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// IsFinal reports whether the watcher can stop polling the shipment.
func (s *Shipment) IsFinal() bool {
	switch s.Status {
	case TrackingStatusDelivered, TrackingStatusReturned, TrackingStatusCancelled:
		return true
	}
	return false
}

type ShipmentEvent struct {
	ID          uint64         `json:"id"`
	ShipmentID  uint64         `json:"shipment_id"`
	Status      TrackingStatus `json:"status"`
	Description string         `json:"description"`
	Location    string         `json:"location,omitempty"`
	EventTime   time.Time      `json:"event_time"`
	CreatedAt   time.Time      `json:"created_at"`
}

type ShipmentCreateInput struct {
	Carrier         CarrierType `json:"carrier"`
	TrackingNumber  string      `json:"tracking_number" validate:"required,max=64"`
	CustomerName    string      `json:"customer_name" validate:"max=200"`
	CustomerPhone   string      `json:"customer_phone" validate:"max=32"`
	DestinationCity string      `json:"destination_city" validate:"max=120"`
}
