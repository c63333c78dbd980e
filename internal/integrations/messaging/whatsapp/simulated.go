package whatsapp

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/litperpro/litper/internal/models"
)

// Simulated используется, когда токен WhatsApp не настроен: ничего не отправляет, но валидирует номер.
type Simulated struct{}

func NewSimulated() *Simulated {
	return &Simulated{}
}

func (Simulated) SendRescueContact(_ context.Context, phone, _, trackingNumber string) models.SendResult {
	to, err := NormalizePhone(phone)
	if err != nil {
		return models.SendResult{Success: false, ErrorMessage: err.Error()}
	}
	id := "sim-" + uuid.NewString()
	slog.Info("whatsapp simulated send", "to", to, "tracking_number", trackingNumber, "message_id", id)
	return models.SendResult{Success: true, MessageID: id}
}
