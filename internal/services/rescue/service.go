package rescue

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/litperpro/litper/internal/broker/messages"
	"github.com/litperpro/litper/internal/metrics"
	"github.com/litperpro/litper/internal/models"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const (
	DefaultMaxAttempts  = 3
	DefaultSendInterval = 500 * time.Millisecond
)

var ErrInvalidInput = errors.New("invalid rescue input")

// Messenger отправляет клиенту сообщение о новедаде.
type Messenger interface {
	SendRescueContact(ctx context.Context, phone, customerName, trackingNumber string) models.SendResult
}

// ActivitySink receives an audit record per state change. Implementations must not block.
type ActivitySink interface {
	RecordActivity(ctx context.Context, a messages.RescueActivity)
}

type QueueFilter struct {
	Priority models.RescuePriority
	Status   models.RescueStatus
	Limit    int
}

type Service struct {
	messenger    Messenger
	sink         ActivitySink
	now          func() time.Time
	loc          *time.Location
	maxAttempts  int
	sendInterval time.Duration
	validate     *validator.Validate

	mu      sync.Mutex
	queue   map[string]*models.RescueItem
	history []models.RescueItem
	// номера, по которым сейчас идёт отправка WhatsApp
	sending map[string]struct{}
}

type Option func(*Service)

func WithActivitySink(sink ActivitySink) Option {
	return func(s *Service) { s.sink = sink }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithSendInterval задаёт паузу между отправками в массовой рассылке.
func WithSendInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sendInterval = d
		}
	}
}

// WithLocation sets the zone used for "today" and "this week" in stats.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func New(m Messenger, opts ...Option) *Service {
	s := &Service{
		messenger:    m,
		now:          func() time.Time { return time.Now().UTC() },
		loc:          time.FixedZone("COT", -5*60*60),
		maxAttempts:  DefaultMaxAttempts,
		sendInterval: DefaultSendInterval,
		validate:     validator.New(),
		queue:        make(map[string]*models.RescueItem),
		sending:      make(map[string]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AddToQueue creates the item or refreshes a live one. Status, attempts and notes of a live item are kept.
func (s *Service) AddToQueue(ctx context.Context, in models.RescueInput) (models.RescueItem, error) {
	in.TrackingNumber = normalize(in.TrackingNumber)
	if in.TrackingNumber == "" {
		return models.RescueItem{}, fmt.Errorf("%w: tracking number is required", ErrInvalidInput)
	}
	if in.DaysWithoutMovement < 0 {
		return models.RescueItem{}, fmt.Errorf("%w: days without movement must be >= 0", ErrInvalidInput)
	}
	if err := s.validate.Struct(in); err != nil {
		return models.RescueItem{}, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}

	now := s.now()

	s.mu.Lock()
	it, exists := s.queue[in.TrackingNumber]
	novelty := ClassifyNovelty(in.NoveltyType, in.NoveltyDescription)
	if exists && !in.NoveltyType.Valid() && strings.TrimSpace(in.NoveltyDescription) == "" {
		// повторное добавление без данных о новедаде: тип остаётся прежним
		novelty = it.NoveltyType
	}
	var (
		from   models.RescueStatus
		action = messages.RescueActionQueued
	)
	if exists {
		from = it.Status
		action = messages.RescueActionUpdated
		if c := models.ParseCarrier(string(in.Carrier)); c != models.CarrierUnknown {
			it.Carrier = c
		}
		setIfNotEmpty(&it.CustomerName, in.CustomerName)
		setIfNotEmpty(&it.CustomerPhone, strings.TrimSpace(in.CustomerPhone))
		setIfNotEmpty(&it.DestinationCity, in.DestinationCity)
		setIfNotEmpty(&it.DestinationAddress, in.DestinationAddress)
		setIfNotEmpty(&it.NoveltyDescription, in.NoveltyDescription)
		it.NoveltyType = novelty
		it.DaysWithoutMovement = in.DaysWithoutMovement
		if in.MaxAttempts > 0 {
			it.MaxAttempts = in.MaxAttempts
		}
		addNote(it, now, fmt.Sprintf("Novedad actualizada: %s (%d días sin movimiento)", novelty, in.DaysWithoutMovement))
	} else {
		maxAttempts := in.MaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = s.maxAttempts
		}
		it = &models.RescueItem{
			TrackingNumber:      in.TrackingNumber,
			Carrier:             models.ParseCarrier(string(in.Carrier)),
			CustomerName:        strings.TrimSpace(in.CustomerName),
			CustomerPhone:       strings.TrimSpace(in.CustomerPhone),
			DestinationCity:     strings.TrimSpace(in.DestinationCity),
			DestinationAddress:  strings.TrimSpace(in.DestinationAddress),
			NoveltyDescription:  strings.TrimSpace(in.NoveltyDescription),
			NoveltyType:         novelty,
			DaysWithoutMovement: in.DaysWithoutMovement,
			Status:              models.RescueStatusPending,
			MaxAttempts:         maxAttempts,
			CreatedAt:           now,
			Notes:               []models.RescueNote{},
		}
		s.queue[it.TrackingNumber] = it
	}
	recompute(it)
	out := it.Clone()
	act := s.activity(it, action, from, "", "", now)
	s.refreshGauges()
	s.mu.Unlock()

	s.emit(ctx, act)
	return out, nil
}

func (s *Service) AddBulkToQueue(ctx context.Context, inputs []models.RescueInput) models.BulkAddResult {
	res := models.BulkAddResult{Errors: []string{}}
	for i, in := range inputs {
		if _, err := s.AddToQueue(ctx, in); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("item %d (%s): %s", i, strings.TrimSpace(in.TrackingNumber), err.Error()))
			continue
		}
		res.Added++
	}
	return res
}

// GetItem returns the live item, or the latest resolved one from history.
func (s *Service) GetItem(trackingNumber string) (models.RescueItem, bool) {
	tn := normalize(trackingNumber)
	s.mu.Lock()
	defer s.mu.Unlock()
	if it, ok := s.queue[tn]; ok {
		return it.Clone(), true
	}
	if it, ok := s.resolved(tn); ok {
		return it.Clone(), true
	}
	return models.RescueItem{}, false
}

// GetQueue returns live items in triage order.
func (s *Service) GetQueue(f QueueFilter) []models.RescueItem {
	s.mu.Lock()
	items := make([]models.RescueItem, 0, len(s.queue))
	for _, it := range s.queue {
		if f.Priority != "" && it.Priority != f.Priority {
			continue
		}
		if f.Status != "" && it.Status != f.Status {
			continue
		}
		items = append(items, it.Clone())
	}
	s.mu.Unlock()

	sortTriage(items)
	if f.Limit > 0 && len(items) > f.Limit {
		items = items[:f.Limit]
	}
	return items
}

func (s *Service) SendWhatsApp(ctx context.Context, trackingNumber string) models.OperationResult {
	tn := normalize(trackingNumber)
	if s.messenger == nil {
		return failed("messenger is not configured")
	}

	s.mu.Lock()
	it, msg := s.live(tn)
	if it == nil {
		s.mu.Unlock()
		return failed(msg)
	}
	if it.CustomerPhone == "" {
		s.mu.Unlock()
		return failed("customer phone is required")
	}
	if it.Attempts >= it.MaxAttempts {
		s.mu.Unlock()
		return failed(fmt.Sprintf("max attempts reached (%d)", it.MaxAttempts))
	}
	if _, busy := s.sending[tn]; busy {
		s.mu.Unlock()
		return failed("whatsapp send already in progress")
	}
	s.sending[tn] = struct{}{}
	phone, name := it.CustomerPhone, it.CustomerName
	s.mu.Unlock()

	// Отправка вне блокировки: провайдер может отвечать секундами.
	// Пока номер в sending, вторая отправка не пройдёт проверку лимита.
	sr := s.messenger.SendRescueContact(ctx, phone, name, tn)
	if !sr.Success {
		s.mu.Lock()
		delete(s.sending, tn)
		s.mu.Unlock()
		metrics.WhatsAppSends.WithLabelValues("error").Inc()
		errMsg := sr.ErrorMessage
		if errMsg == "" {
			errMsg = "whatsapp send failed"
		}
		slog.Warn("rescue whatsapp failed", "tracking_number", tn, "error", errMsg)
		return failed(errMsg)
	}
	metrics.WhatsAppSends.WithLabelValues("ok").Inc()

	now := s.now()
	s.mu.Lock()
	delete(s.sending, tn)
	it, ok := s.queue[tn]
	if !ok {
		s.mu.Unlock()
		return models.OperationResult{
			Success:   true,
			MessageID: sr.MessageID,
			Message:   "message sent, item was resolved meanwhile",
		}
	}
	from := it.Status
	it.Status = models.RescueStatusWhatsAppSent
	it.LastContactAt = &now
	it.Attempts++
	recompute(it)
	addNote(it, now, "WhatsApp enviado (id "+sr.MessageID+")")
	out := it.Clone()
	act := s.activity(it, messages.RescueActionWhatsAppSent, from, "", sr.MessageID, now)
	s.refreshGauges()
	s.mu.Unlock()

	metrics.RescueTransitions.WithLabelValues(string(models.RescueStatusWhatsAppSent)).Inc()
	s.emit(ctx, act)
	return models.OperationResult{Success: true, Message: "whatsapp sent", MessageID: sr.MessageID, Item: &out}
}

// SendBulkWhatsApp contacts every eligible item sequentially. A failed send never stops the batch.
func (s *Service) SendBulkWhatsApp(ctx context.Context, priority *models.RescuePriority) models.BulkSendResult {
	now := s.now()

	s.mu.Lock()
	eligible := make([]models.RescueItem, 0)
	for _, it := range s.queue {
		if priority != nil && it.Priority != *priority {
			continue
		}
		if it.CustomerPhone == "" || it.Attempts >= it.MaxAttempts {
			continue
		}
		due := it.Status == models.RescueStatusPending ||
			(it.Status == models.RescueStatusRescheduled && it.NextActionAt != nil && !it.NextActionAt.After(now))
		if due {
			eligible = append(eligible, it.Clone())
		}
	}
	s.mu.Unlock()
	sortTriage(eligible)

	res := models.BulkSendResult{Total: len(eligible), Results: make([]models.BulkSendItem, 0, len(eligible))}
	limiter := rate.NewLimiter(rate.Every(s.sendInterval), 1)
	for _, it := range eligible {
		item := models.BulkSendItem{TrackingNumber: it.TrackingNumber}
		if err := limiter.Wait(ctx); err != nil {
			item.Error = err.Error()
			res.Failed++
			res.Results = append(res.Results, item)
			continue
		}
		op := s.SendWhatsApp(ctx, it.TrackingNumber)
		item.Success = op.Success
		item.Error = op.Error
		item.MessageID = op.MessageID
		if op.Success {
			res.Sent++
		} else {
			res.Failed++
		}
		res.Results = append(res.Results, item)
	}
	slog.Info("rescue bulk whatsapp done", "total", res.Total, "sent", res.Sent, "failed", res.Failed)
	return res
}

func (s *Service) GetCallScript(trackingNumber string) (models.CallScript, models.OperationResult) {
	tn := normalize(trackingNumber)
	s.mu.Lock()
	defer s.mu.Unlock()
	it, msg := s.live(tn)
	if it == nil {
		return models.CallScript{}, failed(msg)
	}
	return models.CallScript{
		TrackingNumber: it.TrackingNumber,
		NoveltyType:    it.NoveltyType,
		Script:         renderScript(it),
	}, models.OperationResult{Success: true}
}

func (s *Service) MarkCallPending(ctx context.Context, trackingNumber string) models.OperationResult {
	return s.transition(ctx, trackingNumber, messages.RescueActionCallPending, "", func(it *models.RescueItem, now time.Time) {
		it.Status = models.RescueStatusCallPending
		addNote(it, now, "Llamada pendiente")
	})
}

func (s *Service) MarkCallCompleted(ctx context.Context, trackingNumber, notes string) models.OperationResult {
	return s.transition(ctx, trackingNumber, messages.RescueActionCallCompleted, notes, func(it *models.RescueItem, now time.Time) {
		it.Status = models.RescueStatusCallCompleted
		it.LastContactAt = &now
		it.Attempts++
		recompute(it)
		addNote(it, now, withDetail("Llamada completada", notes))
	})
}

func (s *Service) Reschedule(ctx context.Context, trackingNumber string, at time.Time, notes string) models.OperationResult {
	if at.IsZero() {
		return failed("reschedule time is required")
	}
	return s.transition(ctx, trackingNumber, messages.RescueActionRescheduled, notes, func(it *models.RescueItem, now time.Time) {
		next := at.UTC()
		it.Status = models.RescueStatusRescheduled
		it.NextActionAt = &next
		addNote(it, now, withDetail("Reprogramado para "+next.In(s.loc).Format("2006-01-02 15:04"), notes))
	})
}

func (s *Service) MarkRecovered(ctx context.Context, trackingNumber, notes string) models.OperationResult {
	return s.transition(ctx, trackingNumber, messages.RescueActionRecovered, notes, func(it *models.RescueItem, now time.Time) {
		it.Status = models.RescueStatusRecovered
		addNote(it, now, withDetail("Recuperado", notes))
	})
}

func (s *Service) MarkLost(ctx context.Context, trackingNumber, reason string) models.OperationResult {
	return s.transition(ctx, trackingNumber, messages.RescueActionLost, reason, func(it *models.RescueItem, now time.Time) {
		it.Status = models.RescueStatusLost
		addNote(it, now, withDetail("Perdido", reason))
	})
}

func (s *Service) Cancel(ctx context.Context, trackingNumber, reason string) models.OperationResult {
	return s.transition(ctx, trackingNumber, messages.RescueActionCancelled, reason, func(it *models.RescueItem, now time.Time) {
		it.Status = models.RescueStatusCancelled
		addNote(it, now, withDetail("Cancelado", reason))
	})
}

// transition применяет изменение к живому элементу; терминальный статус переносит элемент в историю.
func (s *Service) transition(ctx context.Context, trackingNumber string, action messages.RescueAction, note string,
	apply func(it *models.RescueItem, now time.Time)) models.OperationResult {
	tn := normalize(trackingNumber)
	now := s.now()

	s.mu.Lock()
	it, msg := s.live(tn)
	if it == nil {
		s.mu.Unlock()
		return failed(msg)
	}
	from := it.Status
	apply(it, now)
	if it.Status.IsTerminal() {
		it.ResolvedAt = &now
		delete(s.queue, tn)
		s.history = append(s.history, it.Clone())
	}
	out := it.Clone()
	act := s.activity(it, action, from, note, "", now)
	s.refreshGauges()
	s.mu.Unlock()

	metrics.RescueTransitions.WithLabelValues(string(out.Status)).Inc()
	s.emit(ctx, act)
	return models.OperationResult{Success: true, Message: string(action), Item: &out}
}

// live must be called with mu held.
func (s *Service) live(tn string) (*models.RescueItem, string) {
	if tn == "" {
		return nil, "tracking number is required"
	}
	if it, ok := s.queue[tn]; ok {
		return it, ""
	}
	if it, ok := s.resolved(tn); ok {
		return nil, fmt.Sprintf("item already resolved as %s", it.Status)
	}
	return nil, "item not found in rescue queue"
}

// resolved must be called with mu held.
func (s *Service) resolved(tn string) (*models.RescueItem, bool) {
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].TrackingNumber == tn {
			return &s.history[i], true
		}
	}
	return nil, false
}

// refreshGauges must be called with mu held.
func (s *Service) refreshGauges() {
	counts := make(map[models.RescuePriority]int, 4)
	for _, it := range s.queue {
		counts[it.Priority]++
	}
	for _, p := range models.Priorities() {
		metrics.RescueQueueSize.WithLabelValues(string(p)).Set(float64(counts[p]))
	}
}

func (s *Service) activity(it *models.RescueItem, action messages.RescueAction, from models.RescueStatus, note, messageID string, now time.Time) messages.RescueActivity {
	return messages.RescueActivity{
		ID:             uuid.NewString(),
		TrackingNumber: it.TrackingNumber,
		Carrier:        it.Carrier,
		Action:         action,
		FromStatus:     from,
		ToStatus:       it.Status,
		Priority:       it.Priority,
		Attempts:       it.Attempts,
		Note:           note,
		MessageID:      messageID,
		At:             now,
	}
}

func (s *Service) emit(ctx context.Context, a messages.RescueActivity) {
	slog.Info("rescue activity",
		"tracking_number", a.TrackingNumber,
		"action", string(a.Action),
		"status", string(a.ToStatus),
		"priority", string(a.Priority),
		"attempts", a.Attempts,
	)
	if s.sink != nil {
		s.sink.RecordActivity(ctx, a)
	}
}

func sortTriage(items []models.RescueItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		if a.RecoveryProbability != b.RecoveryProbability {
			return a.RecoveryProbability > b.RecoveryProbability
		}
		if a.DaysWithoutMovement != b.DaysWithoutMovement {
			return a.DaysWithoutMovement > b.DaysWithoutMovement
		}
		return a.TrackingNumber < b.TrackingNumber
	})
}

func addNote(it *models.RescueItem, at time.Time, text string) {
	it.Notes = append(it.Notes, models.RescueNote{At: at, Text: text})
}

func withDetail(head, detail string) string {
	detail = strings.TrimSpace(detail)
	if detail == "" {
		return head
	}
	return head + ": " + detail
}

func setIfNotEmpty(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func failed(msg string) models.OperationResult {
	return models.OperationResult{Success: false, Error: msg}
}

func normalize(tn string) string {
	return strings.ToUpper(strings.TrimSpace(tn))
}
