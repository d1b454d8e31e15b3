package orchestrator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopchat/internal/consumer"
	"shopchat/internal/model"
	"shopchat/pkg/bus"
)

func TestPipelineOverMemoryBus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.NewMemoryBus(nil)
	defer b.Close()

	f := newFixture(t, "")
	cfg := busConfig("")
	for _, ex := range f.o.OutboundExchanges() {
		require.NoError(t, b.Declare(ctx, ex))
	}
	require.NoError(t, b.Bind(ctx, cfg.Exchanges.Responses, "whatsapp_connector_responses"))
	for _, binding := range f.o.Bindings() {
		require.NoError(t, b.Bind(ctx, binding.Exchange, binding.Queue))
	}

	replies := make(chan model.AIResponseReadyEvent, 4)
	go func() {
		_ = b.Subscribe(ctx, cfg.Exchanges.Responses, "whatsapp_connector_responses", func(ctx context.Context, ch bus.Publisher, d *bus.Delivery) {
			var ev model.AIResponseReadyEvent
			if err := json.Unmarshal(d.Body, &ev); err == nil {
				replies <- ev
			}
			_ = d.Ack()
		})
	}()

	s := consumer.NewSupervisor(b, 10*time.Millisecond, f.o.Bindings()...)
	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	require.NoError(t, b.Publish(ctx, cfg.Exchanges.Users, []byte(userCreated(1, "shoes-and-hats"))))
	require.NoError(t, b.Publish(ctx, cfg.Exchanges.Products, []byte(productCreated(100, 1, "Red Shoe", "RS1", 49.5, 3))))
	require.Eventually(t, func() bool { return f.store.ProductCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, b.Publish(ctx, cfg.Exchanges.Messages, []byte(newMessage(1, 7, 1, "how much is the Red Shoe"))))

	select {
	case ev := <-replies:
		assert.Equal(t, int64(1), ev.MessageID)
		assert.Equal(t, "primary reply", ev.AIResponse)
	case <-time.After(2 * time.Second):
		t.Fatal("ai_response_ready not published")
	}

	assert.Eventually(t, func() bool {
		return b.Unacked() == 0 && b.Depth(cfg.Queues.Messages) == 0
	}, time.Second, 10*time.Millisecond)
}
