package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lunate/websearch/pkg/kafka"
)

const publishTimeout = 5 * time.Second

// Collector publishes analytics events to Kafka off the request path. Events
// are queued on a bounded channel and dropped with a warning when the queue
// is full; search latency is never spent waiting on a broker.
type Collector struct {
	producer *kafka.Producer
	queue    chan kafka.Event
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	logger   *slog.Logger

	mu      sync.Mutex
	dropped int64
}

// NewCollector starts the background publish loop. A nil producer yields a
// no-op collector.
func NewCollector(producer *kafka.Producer) *Collector {
	c := &Collector{
		producer: producer,
		logger:   slog.Default().With("component", "analytics_collector"),
	}
	if producer == nil {
		return c
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.queue = make(chan kafka.Event, 1024)
	c.wg.Add(1)
	go c.run(ctx)
	return c
}

func (c *Collector) run(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			// Drain what is already queued before stopping.
			for {
				select {
				case ev := <-c.queue:
					c.publish(ev)
				default:
					return
				}
			}
		case ev := <-c.queue:
			c.publish(ev)
		}
	}
}

func (c *Collector) publish(ev kafka.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := c.producer.Publish(ctx, ev); err != nil {
		c.logger.Warn("failed to publish analytics event", "error", err)
	}
}

// RecordSearch enqueues a search event, dropping it if the queue is full.
func (c *Collector) RecordSearch(ev SearchEvent) {
	c.enqueue("search", ev)
}

// RecordBuild enqueues a build event.
func (c *Collector) RecordBuild(ev BuildEvent) {
	c.enqueue("build", ev)
}

func (c *Collector) enqueue(key string, payload any) {
	if c.producer == nil {
		return
	}
	select {
	case c.queue <- kafka.Event{Key: key, Value: payload}:
	default:
		c.mu.Lock()
		c.dropped++
		dropped := c.dropped
		c.mu.Unlock()
		c.logger.Warn("analytics queue full, event dropped", "dropped_total", dropped)
	}
}

// Close stops the publish loop after draining queued events.
func (c *Collector) Close() {
	if c.producer == nil {
		return
	}
	c.cancel()
	c.wg.Wait()
}
