package messages

import (
	"time"

	"github.com/litperpro/litper/internal/models"
)

type RescueAction string

const (
	RescueActionQueued        RescueAction = "queued"
	RescueActionUpdated       RescueAction = "updated"
	RescueActionWhatsAppSent  RescueAction = "whatsapp_sent"
	RescueActionCallPending   RescueAction = "call_pending"
	RescueActionCallCompleted RescueAction = "call_completed"
	RescueActionRescheduled   RescueAction = "rescheduled"
	RescueActionRecovered     RescueAction = "recovered"
	RescueActionLost          RescueAction = "lost"
	RescueActionCancelled     RescueAction = "cancelled"
)

// RescueActivity: запись аудита об изменении элемента очереди.
type RescueActivity struct {
	ID             string                `json:"id"`
	TrackingNumber string                `json:"tracking_number"`
	Carrier        models.CarrierType    `json:"carrier"`
	Action         RescueAction          `json:"action"`
	FromStatus     models.RescueStatus   `json:"from_status,omitempty"`
	ToStatus       models.RescueStatus   `json:"to_status"`
	Priority       models.RescuePriority `json:"priority"`
	Attempts       int                   `json:"attempts"`
	Note           string                `json:"note,omitempty"`
	MessageID      string                `json:"message_id,omitempty"`
	At             time.Time             `json:"at"`
}
