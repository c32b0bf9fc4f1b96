package observability

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetupLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupLogger("info", "json", &buf)

	logger.Info("hello", "key", "value")
	out := buf.String()
	if !strings.Contains(out, `"msg":"hello"`) {
		t.Errorf("JSON output missing message: %s", out)
	}
	if !strings.Contains(out, `"key":"value"`) {
		t.Errorf("JSON output missing attr: %s", out)
	}
}

func TestSetupLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupLogger("warn", "json", &buf)

	logger.Info("dropped")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("info line emitted at warn level: %s", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("warn line missing: %s", out)
	}
}

func TestPrettyHandlerOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupLogger("debug", "pretty", &buf)

	logger.Debug("probe", "n", 7)
	out := buf.String()
	if !strings.Contains(out, "probe") || !strings.Contains(out, "n=7") {
		t.Errorf("pretty output = %q", out)
	}
}

func TestOperationRecordsMetrics(t *testing.T) {
	m := NewMetrics()
	ctx := context.Background()

	op, _ := StartOperation(ctx, m, "carve")
	op.End(nil)

	op, _ = StartOperation(ctx, m, "carve")
	op.End(errors.New("boom"))

	if got := counterValue(t, m.OperationTotal, "carve", "ok"); got != 1 {
		t.Errorf("ok count = %v, want 1", got)
	}
	if got := counterValue(t, m.OperationTotal, "carve", "error"); got != 1 {
		t.Errorf("error count = %v, want 1", got)
	}
}

func TestAuthFailureCounter(t *testing.T) {
	m := NewMetrics()
	op, _ := StartOperation(context.Background(), m, "publicize")
	op.AuthFailure("invalid_signature")
	op.End(errors.New("invalid signature"))

	if got := counterValue(t, m.AuthFailures, "publicize", "invalid_signature"); got != 1 {
		t.Errorf("auth failure count = %v, want 1", got)
	}
}

func TestShutdownOrder(t *testing.T) {
	var order []string
	s := &ShutdownCoordinator{}
	s.Register("first", func(context.Context) error {
		order = append(order, "first")
		return nil
	})
	s.Register("second", func(context.Context) error {
		order = append(order, "second")
		return nil
	})

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Errorf("shutdown order = %v, want [second first]", order)
	}
}

func TestShutdownCollectsErrors(t *testing.T) {
	s := &ShutdownCoordinator{}
	s.Register("bad", func(context.Context) error { return errors.New("nope") })
	if err := s.Shutdown(context.Background()); err == nil {
		t.Error("Shutdown returned nil despite handler error")
	}
}

func TestNewWithoutTracing(t *testing.T) {
	var buf bytes.Buffer
	obs, err := New(context.Background(), ObsConfig{
		LogLevel:    "info",
		LogFormat:   "json",
		ServiceName: "tree-node",
	}, &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer obs.Close(context.Background())

	if obs.TracerProvider == nil {
		t.Error("TracerProvider is nil")
	}
	if obs.Metrics == nil {
		t.Error("Metrics is nil")
	}
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	return testutil.ToFloat64(vec.WithLabelValues(labels...))
}
