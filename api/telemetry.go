package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/kroma-labs/sentinel-executor/logging"
	"github.com/kroma-labs/sentinel-executor/tracing"
)

const (
	HeaderCaptureTelemetry = "X-Capture-Telemetry"

	// CaptureTracing is the token that enables span capture.
	CaptureTracing = "tracing"
)

// captureSettings is the parsed X-Capture-Telemetry header.
type captureSettings struct {
	spans  bool
	levels []logging.Level
}

func (s captureSettings) enabled() bool {
	return s.spans || len(s.levels) > 0
}

// parseCaptureSettings parses a comma separated list of "tracing" and log
// level names.
func parseCaptureSettings(header string) (captureSettings, error) {
	var s captureSettings
	for _, token := range strings.Split(header, ",") {
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" {
			continue
		}
		if token == CaptureTracing {
			s.spans = true
			continue
		}
		level, err := logging.ParseLevel(token)
		if err != nil {
			return captureSettings{}, badRequest(
				fmt.Sprintf("invalid %s header value %q", HeaderCaptureTelemetry, token), nil)
		}
		s.levels = append(s.levels, level)
	}
	return s, nil
}

// Extensions carries the telemetry captured for one request.
type Extensions struct {
	Logs  []logging.ExportedEvent   `json:"logs"`
	Spans []tracing.ExportableSpan `json:"spans"`
}

type capture struct {
	logs      *logging.CapturingSink
	collector *tracing.Collector
}

type captureKey struct{}

// extensionsFrom returns the captured telemetry of the request, or nil when
// the client did not ask for any.
func extensionsFrom(ctx context.Context) *Extensions {
	c, ok := ctx.Value(captureKey{}).(*capture)
	if !ok {
		return nil
	}
	ext := &Extensions{
		Logs:  []logging.ExportedEvent{},
		Spans: []tracing.ExportableSpan{},
	}
	if c.logs != nil {
		ext.Logs = c.logs.ExportedEvents()
	}
	if c.collector != nil {
		ext.Spans = c.collector.Spans()
	}
	return ext
}

// telemetry binds the request logger, and the span collector when the
// client asked for spans. Captured spans are re-rooted at the span active
// when the request reached the handler, normally the HTTP server span.
func (h *handler) telemetry(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		settings, err := parseCaptureSettings(r.Header.Get(HeaderCaptureTelemetry))
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		ctx := r.Context()
		sink := h.logger.Sink()

		if settings.enabled() {
			c := &capture{}
			if len(settings.levels) > 0 {
				c.logs = logging.NewCapturingSink()
				sink = logging.NewCompositeSink(
					sink,
					logging.NewFilteringSink(c.logs, logging.DiscreteFilter(settings.levels...)),
				)
			}
			if settings.spans {
				c.collector = tracing.NewCollectorInCurrentContext(ctx)
				ctx = tracing.WithActiveCollector(ctx, c.collector)
			}
			ctx = context.WithValue(ctx, captureKey{}, c)
		}

		ctx = logging.WithActiveLogger(ctx, logging.NewLogger(sink))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
