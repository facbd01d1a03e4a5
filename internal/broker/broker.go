// Package broker implements an in-memory message broker with named queues,
// at-least-once delivery, and per-message TTL dead-lettering.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/flash-sale-order-simulator/internal/obs"
)

var (
	// ErrClosed is returned by Publish once intake has been closed.
	ErrClosed = errors.New("broker: intake closed")
	// ErrUnknownQueue is returned for operations on undeclared queues.
	ErrUnknownQueue = errors.New("broker: unknown queue")
)

const (
	sweepInterval   = 20 * time.Millisecond
	pollInterval    = 50 * time.Millisecond
	redeliveryDelay = 100 * time.Millisecond
)

// Message is a delivered queue payload.
type Message struct {
	ID   string
	Body string
}

// item wraps a message with its optional expiry deadline.
type item struct {
	msg      Message
	expireAt time.Time
}

func (it item) expired(now time.Time) bool {
	return !it.expireAt.IsZero() && !now.Before(it.expireAt)
}

// queue is a mutex-guarded backlog with a wakeup channel, one per declared
// queue name. Delivery order within a queue is FIFO.
type queue struct {
	name   string
	notify chan struct{}

	mu      sync.Mutex
	backlog []item

	// deadLetterTo, when set, marks this as a delay queue: messages are
	// never consumed directly, they re-route to the named queue on expiry.
	deadLetterTo string

	delivered atomic.Uint64
	acked     atomic.Uint64
	inflight  atomic.Int64
}

func (q *queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *queue) push(it item) {
	q.mu.Lock()
	q.backlog = append(q.backlog, it)
	q.mu.Unlock()
	q.wake()
}

// pushFront requeues a failed delivery at the head so FIFO order holds
// across redeliveries.
func (q *queue) pushFront(it item) {
	q.mu.Lock()
	q.backlog = append([]item{it}, q.backlog...)
	q.mu.Unlock()
	q.wake()
}

func (q *queue) pop() (item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.backlog) == 0 {
		return item{}, false
	}
	it := q.backlog[0]
	q.backlog = q.backlog[1:]
	return it, true
}

// takeExpired removes and returns every expired item.
func (q *queue) takeExpired(now time.Time) []item {
	q.mu.Lock()
	defer q.mu.Unlock()
	var expired, live []item
	for _, it := range q.backlog {
		if it.expired(now) {
			expired = append(expired, it)
		} else {
			live = append(live, it)
		}
	}
	q.backlog = live
	return expired
}

func (q *queue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog)
}

// Broker owns the declared queues and the expiry sweeper.
type Broker struct {
	mu            sync.Mutex
	queues        map[string]*queue
	shuttingDown  atomic.Bool
	highWatermark int
}

// New creates a broker with no queues declared.
func New() *Broker {
	return &Broker{queues: make(map[string]*queue)}
}

// SetHighWatermark enables a warning log when any queue backlog exceeds n.
func (b *Broker) SetHighWatermark(n int) { b.highWatermark = n }

// DeclareQueue registers a consumable queue. Declaring an existing name is a
// no-op.
func (b *Broker) DeclareQueue(name string) {
	b.declare(name, "")
}

// DeclareDelayQueue registers a queue whose messages are never consumed
// directly: when a message's TTL elapses, the sweeper re-routes it to the
// deadLetterTo queue. This is the broker-hosted one-shot timer.
func (b *Broker) DeclareDelayQueue(name, deadLetterTo string) {
	b.declare(name, deadLetterTo)
}

func (b *Broker) declare(name, deadLetterTo string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.queues[name]; ok {
		return
	}
	b.queues[name] = &queue{
		name:         name,
		notify:       make(chan struct{}, 1),
		deadLetterTo: deadLetterTo,
	}
}

func (b *Broker) queue(name string) (*queue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQueue, name)
	}
	return q, nil
}

// Start runs the expiry sweeper until ctx is cancelled.
func (b *Broker) Start(ctx context.Context) {
	go b.sweeper(ctx)
}

func (b *Broker) sweeper(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.sweepOnce(time.Now())
		}
	}
}

// sweepOnce moves expired messages from delay queues to their dead-letter
// targets, preserving message identity.
func (b *Broker) sweepOnce(now time.Time) {
	b.mu.Lock()
	delayQueues := make([]*queue, 0, len(b.queues))
	for _, q := range b.queues {
		if q.deadLetterTo != "" {
			delayQueues = append(delayQueues, q)
		}
	}
	b.mu.Unlock()

	for _, dq := range delayQueues {
		expired := dq.takeExpired(now)
		if len(expired) == 0 {
			continue
		}
		target, err := b.queue(dq.deadLetterTo)
		if err != nil {
			obs.Logger.Error("dead_letter_target_missing", "queue", dq.name, "target", dq.deadLetterTo)
			continue
		}
		for _, it := range expired {
			target.push(item{msg: it.msg})
			obs.Logger.Info("message_dead_lettered",
				"queue", dq.name, "target", dq.deadLetterTo, "message_id", it.msg.ID)
		}
	}
}

// Publish appends a message to the named queue.
func (b *Broker) Publish(name, body string) error {
	return b.publish(name, body, 0)
}

// PublishWithTTL appends a message that expires after ttl. Meaningful only on
// delay queues; on a plain queue the message would simply never expire before
// a consumer takes it.
func (b *Broker) PublishWithTTL(name, body string, ttl time.Duration) error {
	return b.publish(name, body, ttl)
}

func (b *Broker) publish(name, body string, ttl time.Duration) error {
	if b.shuttingDown.Load() {
		return ErrClosed
	}
	q, err := b.queue(name)
	if err != nil {
		return err
	}
	it := item{msg: Message{ID: uuid.NewString(), Body: body}}
	if ttl > 0 {
		it.expireAt = time.Now().Add(ttl)
	}
	q.push(it)
	if b.highWatermark > 0 {
		if d := q.depth(); d > b.highWatermark {
			obs.Logger.Warn("queue_backlog_exceeds_high_watermark",
				"queue", name, "backlog_size", d, "high_watermark", b.highWatermark)
		}
	}
	return nil
}

// Handler processes one delivered message. Returning nil acknowledges the
// message; returning an error requeues it for redelivery.
type Handler func(ctx context.Context, msg Message) error

// Consume delivers messages from the named queue to handler one at a time.
// Acknowledgment is the handler returning nil, taken only after its side
// effects completed; a failed handler puts the message back at the head of
// the queue, so delivery is at-least-once. Blocks until ctx is cancelled.
func (b *Broker) Consume(ctx context.Context, name string, handler Handler) error {
	q, err := b.queue(name)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if it, ok := q.pop(); ok {
			q.delivered.Add(1)
			q.inflight.Add(1)
			herr := handler(ctx, it.msg)
			q.inflight.Add(-1)
			if herr != nil {
				obs.Logger.Warn("message_redelivery",
					"queue", name, "message_id", it.msg.ID, "error", herr)
				q.pushFront(it)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(redeliveryDelay):
				}
				continue
			}
			q.acked.Add(1)
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.notify:
		case <-ticker.C:
		}
	}
}

// Depth returns the backlog size of the named queue.
func (b *Broker) Depth(name string) (int, error) {
	q, err := b.queue(name)
	if err != nil {
		return 0, err
	}
	return q.depth(), nil
}

// Depths returns the backlog size of every declared queue.
func (b *Broker) Depths() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]int, len(b.queues))
	for name, q := range b.queues {
		out[name] = q.depth()
	}
	return out
}

// QueueMetrics returns delivery counters and backlog size for the named queue.
func (b *Broker) QueueMetrics(name string) (delivered, acked uint64, depth int, err error) {
	q, err := b.queue(name)
	if err != nil {
		return 0, 0, 0, err
	}
	return q.delivered.Load(), q.acked.Load(), q.depth(), nil
}

// CloseIntake disallows future publishes. In-flight messages still deliver.
func (b *Broker) CloseIntake() { b.shuttingDown.Store(true) }

// IsShuttingDown reports whether intake has been closed.
func (b *Broker) IsShuttingDown() bool { return b.shuttingDown.Load() }

// quiescent reports whether every consumable queue is empty and every
// delivered message has been acknowledged. Delay queues are excluded: an
// unexpired deadline is not pending work.
func (b *Broker) quiescent() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, q := range b.queues {
		if q.deadLetterTo != "" {
			continue
		}
		if q.depth() > 0 || q.inflight.Load() != 0 {
			return false
		}
	}
	return true
}

// DrainUntil blocks until every consumable queue is quiescent or ctx is done.
func (b *Broker) DrainUntil(ctx context.Context) bool {
	for {
		if b.quiescent() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(pollInterval):
		}
	}
}
