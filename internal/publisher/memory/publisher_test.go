package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New(0)
	_, ok := pub.Last()
	require.False(t, ok)

	id1, err := pub.Publish(context.Background(), "runs", map[string]string{"status": "succeeded"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	_, err = pub.Publish(context.Background(), "runs", "payload")
	require.NoError(t, err)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	msgs[0].Topic = "modified"
	require.Equal(t, "runs", pub.Messages()[0].Topic)

	last, ok := pub.Last()
	require.True(t, ok)
	require.Equal(t, "payload", last.Payload)
}

func TestPublisherLimit(t *testing.T) {
	t.Parallel()

	pub := New(2)
	for _, p := range []string{"a", "b", "c"} {
		_, err := pub.Publish(context.Background(), "runs", p)
		require.NoError(t, err)
	}
	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "b", msgs[0].Payload)
	require.Equal(t, "c", msgs[1].Payload)
}
