package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/skylens/skylens/internal/analysis"
	"github.com/skylens/skylens/internal/health"
	"github.com/skylens/skylens/internal/metrics"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	engine  *analysis.Engine
	checker *health.Checker
	logger  zerolog.Logger

	metricsHandler fasthttp.RequestHandler
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(engine *analysis.Engine, checker *health.Checker, m *metrics.Metrics, logger zerolog.Logger) *Handlers {
	h := &Handlers{
		engine:  engine,
		checker: checker,
		logger:  logger.With().Str("component", "handlers").Logger(),
	}
	if m != nil {
		h.metricsHandler = fasthttpadaptor.NewFastHTTPHandler(m.Handler())
	}
	return h
}

// Index handles GET /: the single-page EventSource consumer.
func (h *Handlers) Index(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.SendString(indexHTML)
}

// Analyze handles GET /analyze/:handle. It creates an analysis session and
// streams ranked snapshots to the client as server-sent events until the
// client disconnects.
func (h *Handlers) Analyze(c *fiber.Ctx) error {
	handle := NormalizeHandle(c.Params("handle"))
	if handle == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_handle", "Bad Request",
			"Handle must not be empty")
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	engine := h.engine
	logger := h.logger
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		push := func(ev analysis.Event) error {
			if ev.Name == "" {
				// Keepalive: an SSE comment line the browser ignores.
				if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
					return err
				}
				return w.Flush()
			}
			data, err := json.Marshal(ev.Data)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data); err != nil {
				return err
			}
			// A failed flush is the disconnect signal.
			return w.Flush()
		}

		if err := engine.CreateAndStream(context.Background(), handle, push); err != nil {
			logger.Error().Err(err).Str("handle", handle).Msg("analysis stream ended with error")
		}
	}))

	return nil
}

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Readiness handles GET /readyz.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	ready := h.checker.IsReady(c.Context())
	if !ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not_ready",
		})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

// Metrics handles GET /metrics.
func (h *Handlers) Metrics(c *fiber.Ctx) error {
	if h.metricsHandler == nil {
		return c.SendString("# No metrics collector configured\n")
	}
	h.metricsHandler(c.Context())
	return nil
}

// NormalizeHandle canonicalizes user input: leading @ stripped, lowercased,
// and bare names get the default .bsky.social suffix.
func NormalizeHandle(raw string) string {
	handle := strings.TrimSpace(raw)
	handle = strings.TrimPrefix(handle, "@")
	handle = strings.ToLower(handle)
	if handle == "" {
		return ""
	}
	if !strings.Contains(handle, ".") {
		handle += ".bsky.social"
	}
	return handle
}
