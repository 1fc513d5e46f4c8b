package observability

import (
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// opHTTPPrefix prefixes the RED operation name of diagnostics routes.
const opHTTPPrefix = "http."

// recordingWriter remembers the first status code written.
type recordingWriter struct {
	http.ResponseWriter

	status int
}

func (rw *recordingWriter) WriteHeader(code int) {
	if rw.status == 0 {
		rw.status = code
	}

	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recordingWriter) Write(buf []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}

	n, err := rw.ResponseWriter.Write(buf)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}

	return n, nil
}

// HTTPMiddleware traces each request as a server span named "METHOD /path",
// continuing any W3C trace context in the headers. When red is non-nil the
// request is also counted under op "http./path".
func HTTPMiddleware(tracer trace.Tracer, red *REDMetrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		started := time.Now()
		parent := otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))

		ctx, span := tracer.Start(parent, req.Method+" "+req.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(req.Method),
				attribute.String("http.target", req.URL.Path),
			),
		)
		defer span.End()

		rw := &recordingWriter{ResponseWriter: w}
		next.ServeHTTP(rw, req.WithContext(ctx))

		if rw.status == 0 {
			rw.status = http.StatusOK
		}

		span.SetAttributes(semconv.HTTPResponseStatusCode(rw.status))

		status := statusOK
		if rw.status >= http.StatusInternalServerError {
			status = statusError

			span.SetStatus(codes.Error, http.StatusText(rw.status))
		}

		if red != nil {
			red.RecordRequest(ctx, opHTTPPrefix+req.URL.Path, status, time.Since(started))
		}
	})
}
