package activity

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/litperpro/litper/internal/broker/messages"
)

const (
	DefaultBuffer  = 1024
	defaultTimeout = 5 * time.Second
)

type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, v any) error
}

type Store interface {
	InsertRescueActivity(ctx context.Context, a messages.RescueActivity) error
}

// Dispatcher асинхронно пишет журнал очереди спасения в Kafka и Postgres
// из одной фоновой горутины. Переполнение буфера не блокирует вызывающего, запись теряется.
type Dispatcher struct {
	pub     Publisher
	topic   string
	store   Store
	timeout time.Duration

	ch      chan messages.RescueActivity
	once    sync.Once
	done    chan struct{}
	dropped atomic.Int64
	failed  atomic.Int64
}

// New: pub или store могут быть nil, тогда соответствующий канал вывода выключен.
func New(pub Publisher, topic string, store Store, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Dispatcher{
		pub:     pub,
		topic:   topic,
		store:   store,
		timeout: defaultTimeout,
		ch:      make(chan messages.RescueActivity, buffer),
		done:    make(chan struct{}),
	}
}

func (d *Dispatcher) RecordActivity(_ context.Context, a messages.RescueActivity) {
	select {
	case d.ch <- a:
	default:
		d.dropped.Add(1)
		slog.Warn("rescue activity dropped", "tracking_number", a.TrackingNumber, "action", a.Action)
	}
}

// Run обрабатывает записи, пока не закрыт буфер. После отмены ctx дописывает остаток.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case a, ok := <-d.ch:
			if !ok {
				return
			}
			d.deliver(ctx, a)
		case <-ctx.Done():
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	ctx := context.Background()
	for {
		select {
		case a := <-d.ch:
			d.deliver(ctx, a)
		default:
			return
		}
	}
}

// Close останавливает приём и ждёт, пока Run допишет буфер.
func (d *Dispatcher) Close() {
	d.once.Do(func() { close(d.ch) })
	<-d.done
}

// Done закрывается, когда Run завершился и буфер дописан.
func (d *Dispatcher) Done() <-chan struct{} { return d.done }

func (d *Dispatcher) Dropped() int64 { return d.dropped.Load() }

func (d *Dispatcher) Failed() int64 { return d.failed.Load() }

func (d *Dispatcher) deliver(ctx context.Context, a messages.RescueActivity) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	if d.pub != nil && d.topic != "" {
		if err := d.pub.PublishJSON(ctx, d.topic, a.TrackingNumber, a); err != nil {
			d.failed.Add(1)
			slog.Error("publish rescue activity", "id", a.ID, "error", err.Error())
		}
	}
	if d.store != nil {
		if err := d.store.InsertRescueActivity(ctx, a); err != nil {
			d.failed.Add(1)
			slog.Error("store rescue activity", "id", a.ID, "error", err.Error())
		}
	}
}
