// Package observability provides metrics, structured logging, and
// distributed tracing for the agent runtime.
//
// # Overview
//
// The package implements three independent pillars:
//
//  1. Metrics - LLM request, tool execution, and turn-lifecycle counters
//     and histograms via Prometheus
//  2. Logging - structured logs with sensitive-data redaction, built on
//     log/slog
//  3. Tracing - distributed request tracing via OpenTelemetry
//
// # Metrics
//
// Metrics are implemented using the Prometheus client library and track:
//   - LLM API request latency, token usage, and estimated cost
//   - Tool execution counts and latency
//   - Turn loop throughput and in-flight turn count
//   - Event log append volume by event kind
//
// Example usage:
//
//	metrics := observability.NewMetrics()
//
//	metrics.TurnStarted()
//	start := time.Now()
//	// ... run a turn ...
//	metrics.TurnEnded("completed", time.Since(start).Seconds(), turnCount)
//
//	// Track LLM requests
//	llmStart := time.Now()
//	// ... make LLM request ...
//	metrics.RecordLLMRequest("anthropic", "claude-sonnet-4-5", "success",
//	    time.Since(llmStart).Seconds(), promptTokens, completionTokens)
//
//	// Track tool execution
//	toolStart := time.Now()
//	// ... execute tool ...
//	metrics.RecordToolExecution("web_search", "success", time.Since(toolStart).Seconds())
//
// # Logging
//
// Logging is built on Go's slog package with enhancements for:
//   - Automatic request/session/user/instance ID correlation from context
//   - Sensitive data redaction (API keys, passwords, tokens, private keys)
//   - JSON output for production, text for development
//   - Configurable log levels
//
// Example usage:
//
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    AddSource: true,
//	})
//
//	ctx := observability.AddRequestID(ctx, requestID)
//	ctx = observability.AddSessionID(ctx, sessionID)
//	ctx = observability.AddInstanceID(ctx, instanceID)
//
//	logger.Info(ctx, "running turn",
//	    "instance_id", instanceID,
//	    "turn_input_length", len(input),
//	)
//
//	// Automatically redacted
//	logger.Error(ctx, "llm request failed",
//	    "error", err,
//	    "provider", "anthropic",
//	    "api_key", apiKey,
//	)
//
// # Tracing
//
// Distributed tracing uses OpenTelemetry to track a turn across the
// orchestrator, tool executor, and LLM provider:
//   - End-to-end turn visualization
//   - LLM and tool call latency breakdown
//   - Error correlation across spans
//
// Example usage:
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName:    "agentd",
//	    ServiceVersion: "1.0.0",
//	    Environment:    "production",
//	    Endpoint:       "localhost:4317", // OTLP collector
//	    SamplingRate:   0.1,
//	})
//	defer shutdown(context.Background())
//
//	ctx, llmSpan := tracer.TraceLLMRequest(ctx, "anthropic", "claude-sonnet-4-5")
//	defer llmSpan.End()
//
//	ctx, toolSpan := tracer.TraceToolExecution(ctx, "web_search")
//	defer toolSpan.End()
//
// # Context Propagation
//
// All three components integrate with Go's context for automatic
// correlation:
//
//	ctx = observability.AddRequestID(ctx, "req-123")
//	ctx = observability.AddSessionID(ctx, "sess-456")
//	ctx = observability.AddInstanceID(ctx, "inst-1")
//
//	logger.Info(ctx, "processing") // includes request_id, session_id, instance_id
//
// # Security Considerations
//
// The logging component automatically redacts:
//   - API keys (Anthropic, generic)
//   - Passwords and secrets
//   - JWT and bearer tokens
//   - Custom patterns via configuration
//
// Sensitive map fields are also redacted: password, passwd, pwd, secret,
// api_key, apikey, token, auth, authorization, private_key, privatekey.
//
// The compactor package applies an overlapping but independent set of
// redaction patterns (see compactor.Config.SanitizeSecrets) to tool
// results before they are written to the content-addressed store, since
// those never pass through the logger.
//
// # Testing
//
//   - Metrics are verified with prometheus/client_golang/prometheus/testutil
//   - Logging writes to a bytes.Buffer for assertions
//   - Tracing uses the OpenTelemetry no-op exporter in tests
package observability
