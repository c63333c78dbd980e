package models

import (
	"strings"
	"time"
)

// CarrierType: перевозчик, которому принадлежит guía.
type CarrierType string

const (
	CarrierCoordinadora    CarrierType = "COORDINADORA"
	CarrierServientrega    CarrierType = "SERVIENTREGA"
	CarrierInterrapidisimo CarrierType = "INTERRAPIDISIMO"
	CarrierEnvia           CarrierType = "ENVIA"
	CarrierTCC             CarrierType = "TCC"
	CarrierUnknown         CarrierType = "UNKNOWN"
)

// KnownCarriers returns carriers in detection order.
func KnownCarriers() []CarrierType {
	return []CarrierType{
		CarrierCoordinadora,
		CarrierServientrega,
		CarrierInterrapidisimo,
		CarrierEnvia,
		CarrierTCC,
	}
}

// ParseCarrier maps free input to a CarrierType, UNKNOWN when it is not recognized.
func ParseCarrier(s string) CarrierType {
	c := CarrierType(strings.ToUpper(strings.TrimSpace(s)))
	for _, k := range KnownCarriers() {
		if c == k {
			return c
		}
	}
	return CarrierUnknown
}

// TrackingStatus: нормализованный статус отправления.
type TrackingStatus string

const (
	TrackingStatusCreated        TrackingStatus = "CREATED"
	TrackingStatusPickedUp       TrackingStatus = "PICKED_UP"
	TrackingStatusInTransit      TrackingStatus = "IN_TRANSIT"
	TrackingStatusInWarehouse    TrackingStatus = "IN_WAREHOUSE"
	TrackingStatusOutForDelivery TrackingStatus = "OUT_FOR_DELIVERY"
	TrackingStatusDelivered      TrackingStatus = "DELIVERED"
	TrackingStatusReturned       TrackingStatus = "RETURNED"
	TrackingStatusException      TrackingStatus = "EXCEPTION"
	TrackingStatusCancelled      TrackingStatus = "CANCELLED"
	TrackingStatusUnknown        TrackingStatus = "UNKNOWN"
)

type TrackingEvent struct {
	Timestamp   time.Time      `json:"timestamp"`
	Status      TrackingStatus `json:"status"`
	Description string         `json:"description"`
	Location    string         `json:"location,omitempty"`
}

// TrackingResult is a snapshot of a shipment as reported by its carrier.
// Events keep the carrier's order.
type TrackingResult struct {
	TrackingNumber    string          `json:"tracking_number"`
	Carrier           CarrierType     `json:"carrier"`
	CurrentStatus     TrackingStatus  `json:"current_status"`
	StatusRaw         string          `json:"status_raw,omitempty"`
	Events            []TrackingEvent `json:"events"`
	Origin            string          `json:"origin,omitempty"`
	Destination       string          `json:"destination,omitempty"`
	EstimatedDelivery *time.Time      `json:"estimated_delivery,omitempty"`
	HasIssue          bool            `json:"has_issue"`
	Success           bool            `json:"success"`
	ErrorMessage      string          `json:"error_message,omitempty"`
	Simulated         bool            `json:"simulated"`
	CheckedAt         time.Time       `json:"checked_at"`
}

// NewFailedResult builds the degraded result returned instead of an error.
func NewFailedResult(trackingNumber string, carrier CarrierType, msg string) TrackingResult {
	return TrackingResult{
		TrackingNumber: trackingNumber,
		Carrier:        carrier,
		CurrentStatus:  TrackingStatusUnknown,
		Events:         []TrackingEvent{},
		Success:        false,
		ErrorMessage:   msg,
		CheckedAt:      time.Now().UTC(),
	}
}

// LatestEventTime returns the newest event timestamp regardless of the carrier's ordering.
func (r TrackingResult) LatestEventTime() (time.Time, bool) {
	var latest time.Time
	for _, e := range r.Events {
		if e.Timestamp.After(latest) {
			latest = e.Timestamp
		}
	}
	return latest, !latest.IsZero()
}

// LatestEventDescription returns the description of the newest event.
func (r TrackingResult) LatestEventDescription() string {
	var (
		latest time.Time
		desc   string
	)
	for _, e := range r.Events {
		if desc == "" || e.Timestamp.After(latest) {
			latest = e.Timestamp
			desc = e.Description
		}
	}
	return desc
}
