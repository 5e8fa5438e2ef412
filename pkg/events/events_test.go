package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage(t *testing.T) {
	t.Parallel()

	ev := New(ProductCreated, map[string]any{"productId": 7, "name": "Widget-9000"})
	msg, err := newMessage(TopicProducts, "7", ev)
	require.NoError(t, err)

	assert.Equal(t, TopicProducts, msg.Topic)
	assert.Equal(t, "7", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, ProductCreated, string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, ev.ID, decoded.ID)
	assert.Equal(t, ProductCreated, decoded.Type)
	assert.Equal(t, "Widget-9000", decoded.Payload["name"])
}

func TestNewKafkaProducer_RequiresBrokers(t *testing.T) {
	t.Parallel()

	_, err := NewKafkaProducer(nil)
	require.Error(t, err)

	p, err := NewKafkaProducer([]string{"localhost:9092"})
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}

func TestRecorder(t *testing.T) {
	t.Parallel()

	var r Recorder
	ctx := context.Background()
	require.NoError(t, r.Publish(ctx, TopicUsers, "alice_1", New(UserRegistered, nil)))
	require.NoError(t, r.Publish(ctx, TopicUsers, "alice_1", New(UserLoggedIn, nil)))

	assert.Equal(t, []string{UserRegistered, UserLoggedIn}, r.Types())
	assert.Equal(t, "alice_1", r.Events()[0].Key)
	assert.NoError(t, Nop{}.Publish(ctx, TopicUsers, "k", New(UserLoggedIn, nil)))
}
