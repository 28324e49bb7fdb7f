package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubikal7/ski-jumping-management/internal/model"
	"github.com/kubikal7/ski-jumping-management/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type note struct {
	payload string
	err     error
}

// fakeNotifier replays queued notifications, then blocks until ctx ends.
type fakeNotifier struct {
	mu         sync.Mutex
	notes      chan note
	listened   []string
	reconnects int
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{notes: make(chan note, 16)}
}

func (f *fakeNotifier) Listen(_ context.Context, channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listened = append(f.listened, channel)
	return nil
}

func (f *fakeNotifier) WaitForNotification(ctx context.Context) (string, string, error) {
	select {
	case <-ctx.Done():
		return "", "", ctx.Err()
	case n := <-f.notes:
		if n.err != nil {
			return "", "", n.err
		}
		return storage.ChannelResults, n.payload, nil
	}
}

func (f *fakeNotifier) ReconnectNotify(_ context.Context, channels ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnects++
	f.listened = append(f.listened, channels...)
	return nil
}

func (f *fakeNotifier) reconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reconnects
}

func receive(t *testing.T, ch chan Message) Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestBrokerFanOut(t *testing.T) {
	broker := NewBroker(newFakeNotifier(), testLogger())
	ch1 := broker.Subscribe()
	ch2 := broker.Subscribe()

	msg := Message{Event: model.ResultEvent{Action: "recorded", ResultID: 1}, SSE: formatSSE("recorded", `{"result_id":1}`)}
	broker.broadcast(msg)
	assert.Equal(t, msg, receive(t, ch1))
	assert.Equal(t, msg, receive(t, ch2))

	broker.Unsubscribe(ch1)
	msg2 := Message{Event: model.ResultEvent{Action: "deleted", ResultID: 2}}
	broker.broadcast(msg2)
	assert.Equal(t, msg2, receive(t, ch2))
	broker.Unsubscribe(ch2)
}

func TestFormatSSE(t *testing.T) {
	got := string(formatSSE("recorded", `{"result_id":123}`))
	assert.Equal(t, "event: recorded\ndata: {\"result_id\":123}\n\n", got)
}

func TestBrokerSlowSubscriber(t *testing.T) {
	broker := NewBroker(newFakeNotifier(), testLogger())
	slow := broker.Subscribe()
	fast := broker.Subscribe()

	for i := range subscriberBuffer + 10 {
		broker.broadcast(Message{Event: model.ResultEvent{ResultID: int64(i)}})
		<-fast
	}
	assert.Len(t, slow, subscriberBuffer)
	broker.Unsubscribe(slow)
	broker.Unsubscribe(fast)
}

func TestBrokerStartDecodesAndReconnects(t *testing.T) {
	n := newFakeNotifier()
	broker := NewBroker(n, testLogger())
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		broker.Start(ctx)
		close(done)
	}()

	n.notes <- note{payload: `{"action":"recorded","result_id":7,"event_id":3,"athlete_id":9,"season":"2025/2026"}`}
	msg := receive(t, sub)
	assert.Equal(t, model.ResultEvent{Action: "recorded", ResultID: 7, EventID: 3, AthleteID: 9, Season: "2025/2026"}, msg.Event)
	assert.Contains(t, string(msg.SSE), "event: recorded\n")
	assert.True(t, broker.Listening())

	n.notes <- note{payload: "not json"}
	n.notes <- note{err: errors.New("connection reset")}
	n.notes <- note{payload: `{"action":"deleted","result_id":8}`}
	msg = receive(t, sub)
	assert.Equal(t, int64(8), msg.Event.ResultID)
	assert.Equal(t, 1, n.reconnectCount())

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broker did not stop")
	}
	require.False(t, broker.Listening())
}
