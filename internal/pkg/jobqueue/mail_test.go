package jobqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ReportFox/internal/pkg/mail"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (s *recordingSender) Send(_ context.Context, to, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, mail.Message{To: to, Subject: subject, Body: body})
	return nil
}

func (s *recordingSender) messages() []mail.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]mail.Message(nil), s.sent...)
}

func TestMailDispatcherQueuesAndDelivers(t *testing.T) {
	q, _ := newTestQueue(t)
	sender := &recordingSender{}
	d := NewMailDispatcher(q, sender)
	ctx := context.Background()

	d.Dispatch(ctx, mail.Message{To: "jane@example.com", Subject: "Order Confirmation", Body: "thanks"})
	assert.Empty(t, sender.messages(), "nothing is sent before a worker runs")

	q.Start()
	defer q.Stop()

	assert.Eventually(t, func() bool { return len(sender.messages()) == 1 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "Order Confirmation", sender.messages()[0].Subject)
}

func TestMailDispatcherFallsBackInline(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	sender := &recordingSender{}
	d := NewMailDispatcher(NewQueue(client, 1), sender)
	d.Dispatch(context.Background(), mail.Message{To: "jane@example.com", Subject: "Verify Your Email"})

	require.Len(t, sender.messages(), 1)
	assert.Equal(t, "jane@example.com", sender.messages()[0].To)
}
