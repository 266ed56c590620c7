package eventbus

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event представляет собой любое событие в системе.
type Event interface {
	Name() string
}

// Listener - это обработчик (слушатель) событий.
type Listener func(ctx context.Context, event Event) error

// DropHandler вызывается, когда очередь подписчика переполнена.
type DropHandler func(event Event, subscriber string)

const (
	defaultQueueSize  = 256
	listenerTimeout   = 30 * time.Second
	subscriberAllName = "*"
)

var ErrBusClosed = errors.New("шина событий закрыта")

// subscription - один подписчик со своей ограниченной очередью и воркером.
type subscription struct {
	name     string
	listener Listener
	queue    chan Event
}

// Bus - это наша шина событий. Publish никогда не блокирует вызывающего.
type Bus struct {
	subs      map[string][]*subscription
	mu        sync.RWMutex
	logger    *zap.Logger
	queueSize int
	onDrop    DropHandler
	closed    bool
	wg        sync.WaitGroup
}

// New создает новую шину событий. queueSize <= 0 означает размер по умолчанию.
func New(logger *zap.Logger, queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Bus{
		subs:      make(map[string][]*subscription),
		logger:    logger,
		queueSize: queueSize,
	}
}

// OnDrop задает обработчик отброшенных событий (например, метрику).
func (b *Bus) OnDrop(fn DropHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDrop = fn
}

// Subscribe подписывает слушателя на событие. eventName "*" - все события.
func (b *Bus) Subscribe(eventName, subscriberName string, listener Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		b.logger.Warn("Подписка на закрытую шину проигнорирована", zap.String("subscriber", subscriberName))
		return
	}

	sub := &subscription{
		name:     subscriberName,
		listener: listener,
		queue:    make(chan Event, b.queueSize),
	}
	b.subs[eventName] = append(b.subs[eventName], sub)

	b.wg.Add(1)
	go b.run(sub)
}

// SubscribeAll подписывает слушателя на все события.
func (b *Bus) SubscribeAll(subscriberName string, listener Listener) {
	b.Subscribe(subscriberAllName, subscriberName, listener)
}

func (b *Bus) run(sub *subscription) {
	defer b.wg.Done()
	for event := range sub.queue {
		b.deliver(sub, event)
	}
}

func (b *Bus) deliver(sub *subscription, event Event) {
	defer func() {
		if p := recover(); p != nil {
			b.logger.Error("Паника в обработчике события",
				zap.String("event", event.Name()),
				zap.String("subscriber", sub.name),
				zap.Any("panic", p),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), listenerTimeout)
	defer cancel()

	if err := sub.listener(ctx, event); err != nil {
		b.logger.Error("Ошибка в обработчике события",
			zap.String("event", event.Name()),
			zap.String("subscriber", sub.name),
			zap.Error(err),
		)
	}
}

// Publish ставит событие в очередь каждого подписчика.
// При переполненной очереди событие для этого подписчика отбрасывается.
func (b *Bus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	targets := make([]*subscription, 0, len(b.subs[event.Name()])+len(b.subs[subscriberAllName]))
	targets = append(targets, b.subs[event.Name()]...)
	targets = append(targets, b.subs[subscriberAllName]...)

	for _, sub := range targets {
		select {
		case sub.queue <- event:
		default:
			b.logger.Warn("Очередь подписчика переполнена, событие отброшено",
				zap.String("event", event.Name()),
				zap.String("subscriber", sub.name),
			)
			if b.onDrop != nil {
				b.onDrop(event, sub.name)
			}
		}
	}
}

// Close прекращает прием событий и ждет, пока воркеры разберут очереди.
func (b *Bus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, sub := range subs {
			close(sub.queue)
		}
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
