package observability

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestNewTracerNoopWithoutEndpoint(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{})
	if tracer == nil {
		t.Fatalf("NewTracer returned nil")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown error = %v", err)
	}

	ctx, span := tracer.Start(context.Background(), "test")
	defer span.End()
	if ctx == nil {
		t.Fatalf("Start returned nil context")
	}
	// A no-op tracer produces non-recording spans with invalid IDs.
	if GetTraceID(ctx) != "" {
		t.Errorf("GetTraceID = %q, want empty for no-op tracer", GetTraceID(ctx))
	}
}

func TestWithSpanPropagatesError(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{})
	defer shutdown(context.Background())

	want := errors.New("boom")
	err := WithSpan(context.Background(), tracer, "op", func(ctx context.Context, span trace.Span) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("WithSpan error = %v, want %v", err, want)
	}

	err = WithSpan(context.Background(), tracer, "op", func(ctx context.Context, span trace.Span) error {
		return nil
	})
	if err != nil {
		t.Errorf("WithSpan error = %v, want nil", err)
	}
}

func TestDomainSpanHelpers(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{})
	defer shutdown(context.Background())

	ctx := context.Background()
	_, span := tracer.TraceMessageProcessing(ctx, "telegram", "42")
	span.End()
	_, span = tracer.TraceLLMRequest(ctx, "openai", "gpt-4o")
	span.End()
	_, span = tracer.TraceToolExecution(ctx, "read_file")
	span.End()
	_, span = tracer.TraceMCPCall(ctx, "calc", "math_add")
	span.End()
	_, span = tracer.TraceStoreOperation(ctx, "append", "sqlite")
	span.End()
}

func TestAttributeFromValue(t *testing.T) {
	cases := []struct {
		key string
		val any
	}{
		{"s", "x"},
		{"b", true},
		{"i", 42},
		{"i64", int64(42)},
		{"f", 4.2},
		{"slice", []string{"a", "b"}},
		{"other", struct{ X int }{1}},
	}
	for _, tc := range cases {
		kv := attributeFromValue(tc.key, tc.val)
		if string(kv.Key) != tc.key {
			t.Errorf("key = %q, want %q", kv.Key, tc.key)
		}
	}
}
