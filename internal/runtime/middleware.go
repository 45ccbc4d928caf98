package runtime

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	idspkg "github.com/drblury/netshell/internal/runtime/ids"
	loggingpkg "github.com/drblury/netshell/internal/runtime/logging"
)

// RequestIDHeader carries the request identifier.
const RequestIDHeader = "X-Request-Id"

// DefaultMiddlewares returns the middleware chain installed by the CLI in
// front of the request listeners.
func DefaultMiddlewares(log loggingpkg.ServiceLogger, metrics *RequestMetrics) []Middleware {
	mws := []Middleware{RequestIDMiddleware(), TracerMiddleware()}
	if metrics != nil {
		mws = append(mws, MetricsMiddleware(metrics))
	}
	if log != nil {
		mws = append(mws, LogRequestsMiddleware(log))
	}
	return mws
}

// RequestIDMiddleware makes sure every request and its response carry an
// X-Request-Id. Incoming identifiers are preserved.
func RequestIDMiddleware() Middleware {
	return MiddlewareFunc(func(req *Request, next Handler) (*Response, error) {
		id := req.Header.Get(RequestIDHeader)
		if id == "" {
			id = idspkg.CreateULID()
			req.Header.Set(RequestIDHeader, id)
		}
		resp, err := next.Handle(req)
		if resp != nil && resp.Header.Get(RequestIDHeader) == "" {
			resp.Header.Set(RequestIDHeader, id)
		}
		return resp, err
	})
}

// TracerMiddleware wraps the rest of the chain in an OpenTelemetry span.
func TracerMiddleware() Middleware {
	return MiddlewareFunc(func(req *Request, next Handler) (*Response, error) {
		tracer := otel.Tracer("netshell-http-tracer")
		ctx, span := tracer.Start(
			req.Context(),
			"HandleRequest",
			trace.WithSpanKind(trace.SpanKindServer),
		)
		defer span.End()

		span.SetAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.Path()),
			attribute.Int("netshell.client_id", req.ClientID),
		)
		if id := req.Header.Get(RequestIDHeader); id != "" {
			span.SetAttributes(attribute.String("netshell.request_id", id))
		}

		resp, err := next.Handle(req.WithContext(ctx))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return resp, err
		}
		if resp != nil {
			span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
			if resp.StatusCode >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
			}
		}
		return resp, nil
	})
}

// RequestMetrics holds the Prometheus collectors of MetricsMiddleware.
type RequestMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewRequestMetrics creates the request collectors and registers them with
// registerer, prometheus.DefaultRegisterer when nil.
func NewRequestMetrics(registerer prometheus.Registerer) (*RequestMetrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &RequestMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netshell",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		}, []string{"method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "netshell",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Time spent producing HTTP responses",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	if err := registerCollectors(registerer, m.requests, m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

// MetricsMiddleware counts requests by status and observes their duration.
// Failures that escape the chain are counted as 500.
func MetricsMiddleware(m *RequestMetrics) Middleware {
	return MiddlewareFunc(func(req *Request, next Handler) (*Response, error) {
		started := time.Now()
		resp, err := next.Handle(req)

		status := http.StatusInternalServerError
		if err == nil && resp != nil {
			status = resp.StatusCode
		}
		m.requests.WithLabelValues(req.Method, strconv.Itoa(status)).Inc()
		m.duration.WithLabelValues(req.Method).Observe(time.Since(started).Seconds())
		return resp, err
	})
}

// LogRequestsMiddleware logs every request with its outcome at debug level.
func LogRequestsMiddleware(log loggingpkg.ServiceLogger) Middleware {
	return MiddlewareFunc(func(req *Request, next Handler) (*Response, error) {
		started := time.Now()
		resp, err := next.Handle(req)

		fields := loggingpkg.LogFields{
			"method":      req.Method,
			"uri":         req.URI,
			"client_id":   req.ClientID,
			"duration_ms": time.Since(started).Milliseconds(),
		}
		if id := req.Header.Get(RequestIDHeader); id != "" {
			fields["request_id"] = id
		}
		if err != nil {
			log.Error("Request failed", err, fields)
			return resp, err
		}
		if resp != nil {
			fields["status"] = resp.StatusCode
			fields["bytes"] = len(resp.Body())
		}
		log.Debug(fmt.Sprintf("%s %s", req.Method, req.URI), fields)
		return resp, nil
	})
}
