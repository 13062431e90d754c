package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestNewMessageRoundTripsMeta(t *testing.T) {
	msg := NewMessage(EventMeta{EventID: "evt-1", EventType: "booking.appointment.booked.v1"}, "appt-1", []byte(`{}`))
	if msg.Topic != "booking.appointment.booked.v1" {
		t.Fatalf("unexpected topic %q", msg.Topic)
	}
	meta := ExtractEventMeta(msg)
	if meta.EventID != "evt-1" || meta.EventType != "booking.appointment.booked.v1" {
		t.Fatalf("unexpected meta %+v", meta)
	}
}

func TestExtractEventMetaFallbacks(t *testing.T) {
	meta := ExtractEventMeta(kafka.Message{Topic: "t", Key: []byte("k")})
	if meta.EventID != "k" || meta.EventType != "t" {
		t.Fatalf("unexpected fallback meta %+v", meta)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka:9092, ,kafka-2:9092 ")
	if len(got) != 2 || got[0] != "kafka:9092" || got[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %#v", got)
	}
}

func TestHeaderCarrierOverwrites(t *testing.T) {
	c := &headerCarrier{}
	c.Set("traceparent", "a")
	c.Set("traceparent", "b")
	if len(c.headers) != 1 || c.Get("traceparent") != "b" {
		t.Fatalf("unexpected headers %#v", c.headers)
	}
}

func TestTraceContextPropagates(t *testing.T) {
	prop := propagation.TraceContext{}
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	carrier := &headerCarrier{}
	prop.Inject(ctx, carrier)
	out := trace.SpanContextFromContext(prop.Extract(context.Background(), carrier))
	if out.TraceID() != traceID {
		t.Fatalf("trace id not propagated: %s", out.TraceID())
	}
}
