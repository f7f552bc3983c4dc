package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type event struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

func (e event) Attributes() map[string]string {
	return map[string]string{"event": "run.completed", "status": e.Status}
}

func TestPublishWithoutClient(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Publish(context.Background(), "runs", event{})
	require.ErrorContains(t, err, "not configured")
}

func TestBuildMessageCopiesAttributes(t *testing.T) {
	t.Parallel()

	msg, err := buildMessage(context.Background(), event{RunID: "r1", Status: "partial"})
	require.NoError(t, err)
	require.Equal(t, "run.completed", msg.Attributes["event"])
	require.Equal(t, "partial", msg.Attributes["status"])

	var decoded event
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	require.Equal(t, "r1", decoded.RunID)
}

func TestBuildMessageRejectsUnmarshalable(t *testing.T) {
	t.Parallel()

	_, err := buildMessage(context.Background(), make(chan int))
	require.ErrorContains(t, err, "marshal payload")
}

func TestCarrierRoundTripsTraceContext(t *testing.T) {
	t.Parallel()

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	prop := propagation.TraceContext{}
	carrier := &pubsubCarrier{attrs: map[string]string{}}
	prop.Inject(ctx, carrier)
	require.Contains(t, carrier.Keys(), "traceparent")

	extracted := trace.SpanContextFromContext(prop.Extract(context.Background(), carrier))
	require.Equal(t, traceID, extracted.TraceID())
}
