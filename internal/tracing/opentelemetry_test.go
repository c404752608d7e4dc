package tracing

import (
	"context"
	"errors"
	"testing"

	"dailypost/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

// recordSpans installs a tracer provider that keeps finished spans in memory
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(previous)
	})
	return recorder
}

func TestApplyDefaults(t *testing.T) {
	config := ApplyDefaults(models.TracingConfig{ServiceVersion: "1.2.3", SampleRate: 0.5})

	assert.Equal(t, TracerName, config.ServiceName)
	assert.Equal(t, "1.2.3", config.ServiceVersion)
	assert.Equal(t, "development", config.Environment)
	assert.Equal(t, 0.5, config.SampleRate)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  models.TracingConfig
		wantErr string
	}{
		{"disabled is never checked", models.TracingConfig{SampleRate: 7}, ""},
		{"stdout", models.TracingConfig{Enabled: true, ServiceName: "s", SampleRate: 1, UseStdout: true}, ""},
		{"otlp", models.TracingConfig{Enabled: true, ServiceName: "s", SampleRate: 0.2, OTLPEndpoint: "collector:4318"}, ""},
		{"missing service name", models.TracingConfig{Enabled: true, UseStdout: true}, "service_name"},
		{"negative sample rate", models.TracingConfig{Enabled: true, ServiceName: "s", SampleRate: -0.1, UseStdout: true}, "sample_rate"},
		{"sample rate above one", models.TracingConfig{Enabled: true, ServiceName: "s", SampleRate: 1.5, UseStdout: true}, "sample_rate"},
		{"otlp without endpoint", models.TracingConfig{Enabled: true, ServiceName: "s", SampleRate: 1}, "otlp_endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.config)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestManager_Disabled(t *testing.T) {
	m := NewManager(models.TracingConfig{}, quietLogger())

	require.NoError(t, m.Initialize(context.Background()))
	assert.Nil(t, m.tracerProvider)
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_StdoutLifecycle(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	m := NewManager(models.TracingConfig{Enabled: true, UseStdout: true, SampleRate: 0}, quietLogger())

	require.NoError(t, m.Initialize(context.Background()))
	require.NotNil(t, m.tracerProvider)

	assert.NoError(t, m.Shutdown(context.Background()))
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_RejectsInvalidConfig(t *testing.T) {
	m := NewManager(models.TracingConfig{Enabled: true, UseStdout: true, SampleRate: 2}, quietLogger())
	assert.Error(t, m.Initialize(context.Background()))
}

func TestStartSpan(t *testing.T) {
	recorder := recordSpans(t)

	ctx, span := StartSpan(context.Background(), "scheduler.tick", attribute.String("tick.id", "t-1"))
	assert.NotEmpty(t, OtelTraceID(ctx))
	AddSpanAttributes(ctx, attribute.Int("tick.due", 2))
	SetSpanStatus(ctx, codes.Ok, "")
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "scheduler.tick", spans[0].Name())
	assert.Equal(t, TracerName, spans[0].InstrumentationScope().Name)
	assert.Contains(t, spans[0].Attributes(), attribute.String("tick.id", "t-1"))
	assert.Contains(t, spans[0].Attributes(), attribute.Int("tick.due", 2))
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
}

func TestRecordError(t *testing.T) {
	recorder := recordSpans(t)

	ctx, span := StartSpan(context.Background(), "dispatcher.dispatch")
	RecordError(ctx, errors.New("publish rejected"))
	RecordError(ctx, nil)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "publish rejected", spans[0].Status().Description)
	require.Len(t, spans[0].Events(), 1)
}

func TestHelpersWithoutSpan(t *testing.T) {
	ctx := context.Background()
	assert.NotPanics(t, func() {
		AddSpanAttributes(ctx, attribute.String("k", "v"))
		SetSpanStatus(ctx, codes.Error, "x")
		RecordError(ctx, errors.New("x"))
	})
	assert.Empty(t, OtelTraceID(ctx))
}
