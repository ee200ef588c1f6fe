// Package telemetry provides logging, tracing and metrics for the seeding
// CLI and the change notifier.
//
// Logging uses zerolog behind a small Logger wrapper with component
// loggers and structured fields. Tracing uses OpenTelemetry with a none,
// stdout or OTLP gRPC exporter. Metrics are Prometheus collectors held in a
// private registry and exposed through Metrics.Handler.
//
// Initialize telemetry at command startup:
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	logger := tel.Logger.NewComponentLogger("seeder")
//
// All Metrics methods are safe to call on a nil or disabled *Metrics.
package telemetry
