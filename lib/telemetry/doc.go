// Package telemetry sets up tracing and exposes the metrics of the process.
//
// Metrics are recorded with github.com/VictoriaMetrics/metrics wherever they occur
// (the lock service, the rpc server, the REST API) and need no setup. WriteMetrics
// renders them for a /metrics endpoint.
//
// Traces are created with the otel API everywhere. Setup installs an OTLP/HTTP
// exporter if DLOCK_OTEL_ENDPOINT is set:
//
//	cfg, err := telemetry.LoadConfigFromEnv()
//	shutdown, err := telemetry.Setup(ctx, "dlock-api", cfg)
//	defer shutdown(context.Background())
package telemetry
