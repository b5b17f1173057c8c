package workers

import (
	"context"
	"time"

	"github.com/cbodonnell/battlecards/pkg/log"
	"github.com/cbodonnell/battlecards/pkg/queue"
	"github.com/cbodonnell/battlecards/pkg/relay"
)

const (
	// DefaultRelayInterval is how often the event queue is drained
	DefaultRelayInterval = 100 * time.Millisecond
	relayPublishTimeout  = 5 * time.Second
)

// RelayWorker drains room events from the queue and publishes them to every relay.
type RelayWorker struct {
	eventQueue queue.Queue
	relays     []relay.Relay
	interval   time.Duration
}

type NewRelayWorkerOptions struct {
	EventQueue queue.Queue
	Relays     []relay.Relay
	Interval   time.Duration
}

func NewRelayWorker(opts NewRelayWorkerOptions) *RelayWorker {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultRelayInterval
	}
	return &RelayWorker{
		eventQueue: opts.EventQueue,
		relays:     opts.Relays,
		interval:   interval,
	}
}

func (w *RelayWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.publishPending(context.Background())
			return
		case <-ticker.C:
			w.publishPending(ctx)
		}
	}
}

func (w *RelayWorker) publishPending(ctx context.Context) {
	for _, item := range w.eventQueue.ReadAllMessages() {
		event, ok := item.(*relay.Event)
		if !ok {
			log.Error("Unexpected item in event queue: %T", item)
			continue
		}
		for _, r := range w.relays {
			publishCtx, cancel := context.WithTimeout(ctx, relayPublishTimeout)
			if err := r.Publish(publishCtx, event); err != nil {
				log.Error("Failed to publish %s for game %s to %s: %v", event.Type, event.GameID, r.Name(), err)
			}
			cancel()
		}
	}
}
