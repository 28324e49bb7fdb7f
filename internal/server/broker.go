package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/kubikal7/ski-jumping-management/internal/model"
	"github.com/kubikal7/ski-jumping-management/internal/storage"
)

// Notifier is the LISTEN/NOTIFY surface the broker consumes.
type Notifier interface {
	Listen(ctx context.Context, channel string) error
	WaitForNotification(ctx context.Context) (channel, payload string, err error)
	ReconnectNotify(ctx context.Context, channels ...string) error
}

// Message is one live result change delivered to a subscriber.
type Message struct {
	Event model.ResultEvent
	SSE   []byte
}

const (
	subscriberBuffer = 64
	maxReconnectWait = 30 * time.Second
)

// Broker fans out result notifications to SSE subscribers. Start runs the
// listen loop; Subscribe and Unsubscribe are safe for concurrent use.
type Broker struct {
	notifier Notifier
	logger   *slog.Logger

	mu          sync.RWMutex
	subscribers map[chan Message]struct{}
	listening   bool
}

// NewBroker creates a broker. Call Start to begin listening.
func NewBroker(notifier Notifier, logger *slog.Logger) *Broker {
	return &Broker{
		notifier:    notifier,
		logger:      logger,
		subscribers: make(map[chan Message]struct{}),
	}
}

// Start listens on the results channel until ctx is cancelled. A broken
// notify connection is replaced with exponential backoff.
func (b *Broker) Start(ctx context.Context) {
	if err := b.notifier.Listen(ctx, storage.ChannelResults); err != nil {
		b.logger.Error("broker: listen results", "error", err)
		return
	}
	b.setListening(true)
	defer b.setListening(false)
	b.logger.Info("broker: listening for notifications", "channel", storage.ChannelResults)

	wait := time.Second
	for {
		channel, payload, err := b.notifier.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.setListening(false)
			b.logger.Warn("broker: notification error, reconnecting", "error", err, "backoff", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			if err := b.notifier.ReconnectNotify(ctx, storage.ChannelResults); err != nil {
				wait = min(wait*2, maxReconnectWait)
				continue
			}
			wait = time.Second
			b.setListening(true)
			continue
		}

		var ev model.ResultEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			b.logger.Warn("broker: malformed payload", "channel", channel, "error", err)
			continue
		}
		b.broadcast(Message{Event: ev, SSE: formatSSE(ev.Action, payload)})
	}
}

func (b *Broker) setListening(v bool) {
	b.mu.Lock()
	b.listening = v
	b.mu.Unlock()
}

// Listening reports whether the listen loop currently holds a working
// connection.
func (b *Broker) Listening() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.listening
}

// Subscribe returns a channel that receives live result messages. The caller
// must call Unsubscribe when done.
func (b *Broker) Subscribe() chan Message {
	ch := make(chan Message, subscriberBuffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
func (b *Broker) Unsubscribe(ch chan Message) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	b.mu.Unlock()
	close(ch)
}

// broadcast drops the message for subscribers whose buffer is full so one
// slow client cannot stall the others.
func (b *Broker) broadcast(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- msg:
		default:
		}
	}
}

// formatSSE formats a notification as a Server-Sent Events message.
func formatSSE(eventType, data string) []byte {
	return []byte("event: " + eventType + "\ndata: " + data + "\n\n")
}
