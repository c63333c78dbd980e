package models

import "time"

// NoveltyType: тип новедада (причина, по которой доставка не состоялась).
type NoveltyType string

const (
	NoveltyNoEstaba        NoveltyType = "NO_ESTABA"
	NoveltyDireccionErrada NoveltyType = "DIRECCION_ERRADA"
	NoveltyRechazado       NoveltyType = "RECHAZADO"
	NoveltyNoContesta      NoveltyType = "NO_CONTESTA"
	NoveltyZonaDificil     NoveltyType = "ZONA_DIFICIL"
	NoveltyPagoPendiente   NoveltyType = "PAGO_PENDIENTE"
	NoveltyDanado          NoveltyType = "DANADO"
	NoveltyOtro            NoveltyType = "OTRO"
)

func NoveltyTypes() []NoveltyType {
	return []NoveltyType{
		NoveltyNoEstaba,
		NoveltyDireccionErrada,
		NoveltyRechazado,
		NoveltyNoContesta,
		NoveltyZonaDificil,
		NoveltyPagoPendiente,
		NoveltyDanado,
		NoveltyOtro,
	}
}

func (n NoveltyType) Valid() bool {
	for _, k := range NoveltyTypes() {
		if n == k {
			return true
		}
	}
	return false
}

type RescuePriority string

const (
	PriorityCritical RescuePriority = "CRITICAL"
	PriorityHigh     RescuePriority = "HIGH"
	PriorityMedium   RescuePriority = "MEDIUM"
	PriorityLow      RescuePriority = "LOW"
)

func Priorities() []RescuePriority {
	return []RescuePriority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}
}

// Rank orders priorities for triage: 0 is the most urgent.
func (p RescuePriority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	default:
		return 3
	}
}

func (p RescuePriority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

type RescueStatus string

const (
	RescueStatusPending       RescueStatus = "PENDING"
	RescueStatusWhatsAppSent  RescueStatus = "WHATSAPP_SENT"
	RescueStatusCallPending   RescueStatus = "CALL_PENDING"
	RescueStatusCallCompleted RescueStatus = "CALL_COMPLETED"
	RescueStatusRescheduled   RescueStatus = "RESCHEDULED"
	RescueStatusRecovered     RescueStatus = "RECOVERED"
	RescueStatusLost          RescueStatus = "LOST"
	RescueStatusCancelled     RescueStatus = "CANCELLED"
)

func RescueStatuses() []RescueStatus {
	return []RescueStatus{
		RescueStatusPending,
		RescueStatusWhatsAppSent,
		RescueStatusCallPending,
		RescueStatusCallCompleted,
		RescueStatusRescheduled,
		RescueStatusRecovered,
		RescueStatusLost,
		RescueStatusCancelled,
	}
}

func (s RescueStatus) Valid() bool {
	for _, k := range RescueStatuses() {
		if s == k {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the item leaves the live queue in this status.
func (s RescueStatus) IsTerminal() bool {
	return s == RescueStatusRecovered || s == RescueStatusLost || s == RescueStatusCancelled
}

type RescueNote struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

// RescueItem is a shipment being worked because of a delivery exception.
// Priority and RecoveryProbability are derived by the rescue service.
type RescueItem struct {
	TrackingNumber      string         `json:"tracking_number"`
	Carrier             CarrierType    `json:"carrier"`
	CustomerName        string         `json:"customer_name"`
	CustomerPhone       string         `json:"customer_phone,omitempty"`
	DestinationCity     string         `json:"destination_city,omitempty"`
	DestinationAddress  string         `json:"destination_address,omitempty"`
	NoveltyDescription  string         `json:"novelty_description"`
	NoveltyType         NoveltyType    `json:"novelty_type"`
	DaysWithoutMovement int            `json:"days_without_movement"`
	Priority            RescuePriority `json:"priority"`
	RecoveryProbability float64        `json:"recovery_probability"`
	Status              RescueStatus   `json:"status"`
	Attempts            int            `json:"attempts"`
	MaxAttempts         int            `json:"max_attempts"`
	CreatedAt           time.Time      `json:"created_at"`
	LastContactAt       *time.Time     `json:"last_contact_at,omitempty"`
	NextActionAt        *time.Time     `json:"next_action_at,omitempty"`
	ResolvedAt          *time.Time     `json:"resolved_at,omitempty"`
	Notes               []RescueNote   `json:"notes"`
}

// Clone returns a deep copy safe to hand out of the queue.
func (it *RescueItem) Clone() RescueItem {
	out := *it
	out.LastContactAt = cloneTime(it.LastContactAt)
	out.NextActionAt = cloneTime(it.NextActionAt)
	out.ResolvedAt = cloneTime(it.ResolvedAt)
	out.Notes = append([]RescueNote{}, it.Notes...)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// RescueInput: входные данные для постановки guía в очередь.
type RescueInput struct {
	TrackingNumber      string      `json:"tracking_number" validate:"required,max=64"`
	Carrier             CarrierType `json:"carrier"`
	CustomerName        string      `json:"customer_name" validate:"max=200"`
	CustomerPhone       string      `json:"customer_phone" validate:"max=32"`
	DestinationCity     string      `json:"destination_city" validate:"max=120"`
	DestinationAddress  string      `json:"destination_address" validate:"max=300"`
	NoveltyDescription  string      `json:"novelty_description" validate:"max=2000"`
	NoveltyType         NoveltyType `json:"novelty_type"`
	DaysWithoutMovement int         `json:"days_without_movement" validate:"min=0"`
	MaxAttempts         int         `json:"max_attempts" validate:"min=0,max=50"`
}

type RescueQueueStats struct {
	TotalInQueue               int                    `json:"total_in_queue"`
	ByPriority                 map[RescuePriority]int `json:"by_priority"`
	ByStatus                   map[RescueStatus]int   `json:"by_status"`
	RecoveredToday             int                    `json:"recovered_today"`
	RecoveredThisWeek          int                    `json:"recovered_this_week"`
	LostToday                  int                    `json:"lost_today"`
	LostThisWeek               int                    `json:"lost_this_week"`
	TotalRecovered             int                    `json:"total_recovered"`
	TotalLost                  int                    `json:"total_lost"`
	RecoveryRate               float64                `json:"recovery_rate"`
	AverageRecoveryProbability float64                `json:"average_recovery_probability"`
}

// OperationResult: результат операции над очередью; ожидаемые ошибки не идут через error.
type OperationResult struct {
	Success   bool        `json:"success"`
	Error     string      `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	MessageID string      `json:"message_id,omitempty"`
	Item      *RescueItem `json:"item,omitempty"`
}

type BulkSendItem struct {
	TrackingNumber string `json:"tracking_number"`
	Success        bool   `json:"success"`
	Error          string `json:"error,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
}

type BulkSendResult struct {
	Total   int            `json:"total"`
	Sent    int            `json:"sent"`
	Failed  int            `json:"failed"`
	Results []BulkSendItem `json:"results"`
}

type BulkAddResult struct {
	Added  int      `json:"added"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors,omitempty"`
}

type CallScript struct {
	TrackingNumber string      `json:"tracking_number"`
	NoveltyType    NoveltyType `json:"novelty_type"`
	Script         string      `json:"script"`
}

// SendResult: ответ канала уведомлений (WhatsApp и т.п.).
type SendResult struct {
	Success      bool   `json:"success"`
	MessageID    string `json:"message_id,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}
