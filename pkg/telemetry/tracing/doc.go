// Package tracing exports OpenTelemetry spans for the request path.
//
// Spans are exported over OTLP gRPC to a collector. When tracing is
// disabled in configuration the tracer is a no-op and adds negligible
// overhead, so call sites never need to branch on the setting.
//
// Incoming requests carry W3C Trace Context headers; the HTTP middleware
// extracts them so a bridge request dispatched on behalf of a traced
// client joins the caller's trace.
//
// Usage:
//
//	tracer, err := tracing.New(cfg.Telemetry.Tracing)
//	if err != nil {
//		return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "broker.dispatch")
//	defer span.End()
package tracing
