package observability

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// NewMetrics registers with the global default registry, so it is only
// exercised once per process (see TestNewMetrics_Once); every other test
// here builds an isolated registry with the same label shapes to avoid
// cross-test duplicate-registration panics.

func TestNewMetrics_Once(t *testing.T) {
	m := NewMetrics()
	if m.LLMRequestCounter == nil || m.ToolExecutionCounter == nil || m.TurnDuration == nil {
		t.Fatal("NewMetrics returned a Metrics with nil vectors")
	}
}

func TestRecordLLMRequest(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "test_llm_requests_total", Help: "test"},
		[]string{"provider", "model", "status"},
	)
	tokens := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "test_llm_tokens_total", Help: "test"},
		[]string{"provider", "model", "type"},
	)
	registry.MustRegister(counter, tokens)

	counter.WithLabelValues("anthropic", "claude-sonnet-4-5", "success").Inc()
	tokens.WithLabelValues("anthropic", "claude-sonnet-4-5", "prompt").Add(120)
	tokens.WithLabelValues("anthropic", "claude-sonnet-4-5", "completion").Add(480)

	expected := `
		# HELP test_llm_requests_total test
		# TYPE test_llm_requests_total counter
		test_llm_requests_total{model="claude-sonnet-4-5",provider="anthropic",status="success"} 1
	`
	if err := testutil.CollectAndCompare(counter, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metric value: %v", err)
	}
}

func TestRecordToolExecution(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "test_tool_executions_total", Help: "test"},
		[]string{"tool_name", "status"},
	)
	registry.MustRegister(counter)

	counter.WithLabelValues("web_search", "success").Inc()
	counter.WithLabelValues("web_search", "success").Inc()
	counter.WithLabelValues("browser", "rate_limited").Inc()

	if count := testutil.CollectAndCount(counter); count != 2 {
		t.Errorf("expected 2 label combinations, got %d", count)
	}
}

func TestTurnLifecycle(t *testing.T) {
	registry := prometheus.NewRegistry()
	active := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_active_turns", Help: "test"})
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "test_turn_duration_seconds", Help: "test", Buckets: []float64{1, 5, 30}},
		[]string{"status"},
	)
	registry.MustRegister(active, duration)

	active.Inc()
	active.Inc()
	active.Dec()
	duration.WithLabelValues("completed").Observe(4.2)

	if got := testutil.ToFloat64(active); got != 1 {
		t.Errorf("active turns = %v, want 1", got)
	}
	if testutil.CollectAndCount(duration) < 1 {
		t.Error("expected turn duration histogram to have an observation")
	}
}

func TestEventAppendCounter(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "test_events_appended_total", Help: "test"},
		[]string{"kind"},
	)
	registry.MustRegister(counter)

	counter.WithLabelValues("content_delta").Inc()
	counter.WithLabelValues("content_delta").Inc()
	counter.WithLabelValues("tool_use").Inc()

	if count := testutil.CollectAndCount(counter); count != 2 {
		t.Errorf("expected 2 label combinations, got %d", count)
	}
}

func TestConcurrentMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "test_concurrent_total", Help: "test"},
		[]string{"label"},
	)
	registry.MustRegister(counter)

	done := make(chan bool)
	iterations := 100

	go func() {
		for i := 0; i < iterations; i++ {
			counter.WithLabelValues("a").Inc()
			time.Sleep(time.Microsecond)
		}
		done <- true
	}()
	go func() {
		for i := 0; i < iterations; i++ {
			counter.WithLabelValues("b").Inc()
			time.Sleep(time.Microsecond)
		}
		done <- true
	}()
	<-done
	<-done

	if testutil.CollectAndCount(counter) < 1 {
		t.Error("expected concurrent metric recording to work")
	}
}
