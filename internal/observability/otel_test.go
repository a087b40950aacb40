package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/mkaramanlis/oracle-backend/internal/config"
)

// swapGlobals snapshots the process-wide tracer provider and propagator and
// restores them when the test ends, since SetupOTel mutates both.
func swapGlobals(t *testing.T) {
	t.Helper()
	tp := otel.GetTracerProvider()
	prop := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
	})
}

func otelCfg(mutate func(*config.OTELConfig)) config.OTELConfig {
	cfg := config.OTELConfig{
		Enabled:     true,
		Endpoint:    "127.0.0.1:4317",
		Insecure:    true,
		ServiceName: "oracle-backend",
		Environment: "staging",
		SampleRatio: 1.0,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return cfg
}

func TestSetupOTel_DisabledLeavesGlobalsAlone(t *testing.T) {
	swapGlobals(t)
	before := otel.GetTracerProvider()

	shutdown, err := SetupOTel(context.Background(), otelCfg(func(c *config.OTELConfig) {
		c.Enabled = false
	}), "v0")
	if err != nil {
		t.Fatalf("SetupOTel: %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Fatalf("disabled setup replaced the tracer provider")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown: %v", err)
	}
}

func TestSetupOTel_InstallsProviderAndPropagator(t *testing.T) {
	for _, tc := range []struct {
		name     string
		insecure bool
	}{
		{"insecure", true},
		{"tls", false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			swapGlobals(t)

			shutdown, err := SetupOTel(context.Background(), otelCfg(func(c *config.OTELConfig) {
				c.Insecure = tc.insecure
			}), "v1.0.0")
			if err != nil {
				t.Fatalf("SetupOTel: %v", err)
			}
			defer func() {
				// Bounded: no collector is listening, so flushing must not hang.
				sctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
				defer cancel()
				_ = shutdown(sctx)
			}()

			if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
				t.Fatalf("global provider is %T; want *sdktrace.TracerProvider", otel.GetTracerProvider())
			}

			// A sampled span must travel through the W3C propagator.
			ctx, span := otel.Tracer("setup-test").Start(context.Background(), "outbound")
			carrier := propagation.MapCarrier{}
			otel.GetTextMapPropagator().Inject(ctx, carrier)
			span.End()
			if carrier.Get("traceparent") == "" {
				t.Fatalf("traceparent not injected; carrier = %v", carrier)
			}
		})
	}
}

func TestSetupOTel_ResourceCarriesDeploymentAttributes(t *testing.T) {
	res, err := newTraceResource(context.Background(), otelCfg(nil), "v2.3.4")
	if err != nil {
		t.Fatalf("newTraceResource: %v", err)
	}

	want := map[attribute.Key]string{
		"service.name":           "oracle-backend",
		"service.namespace":      serviceNamespace,
		"service.version":        "v2.3.4",
		"deployment.environment": "staging",
	}
	got := map[attribute.Key]string{}
	for _, kv := range res.Attributes() {
		got[kv.Key] = kv.Value.AsString()
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("resource attribute %s = %q; want %q (all: %v)", k, got[k], v, got)
		}
	}
}

func TestSetupOTel_ExporterFailureLeavesGlobalsAlone(t *testing.T) {
	swapGlobals(t)

	orig := newTraceExporter
	t.Cleanup(func() { newTraceExporter = orig })
	newTraceExporter = func(context.Context, otlptrace.Client) (*otlptrace.Exporter, error) {
		return nil, errors.New("collector unreachable")
	}

	before := otel.GetTracerProvider()
	if _, err := SetupOTel(context.Background(), otelCfg(nil), "v0"); err == nil {
		t.Fatalf("expected exporter error")
	}
	if otel.GetTracerProvider() != before {
		t.Fatalf("failed setup replaced the tracer provider")
	}
}

func TestSetupOTel_ResourceFailureLeavesGlobalsAlone(t *testing.T) {
	swapGlobals(t)

	orig := newTraceResource
	t.Cleanup(func() { newTraceResource = orig })
	newTraceResource = func(context.Context, config.OTELConfig, string) (*resource.Resource, error) {
		return nil, errors.New("resource detection failed")
	}

	before := otel.GetTracerProvider()
	if _, err := SetupOTel(context.Background(), otelCfg(nil), "v0"); err == nil {
		t.Fatalf("expected resource error")
	}
	if otel.GetTracerProvider() != before {
		t.Fatalf("failed setup replaced the tracer provider")
	}
}

func TestSetupOTel_ShutdownWithEmptyQueueSucceeds(t *testing.T) {
	swapGlobals(t)

	shutdown, err := SetupOTel(context.Background(), otelCfg(nil), "v1")
	if err != nil {
		t.Fatalf("SetupOTel: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
