package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/announcement-call/internal/app"
	"github.com/acme/announcement-call/internal/domain"
	"github.com/acme/announcement-call/internal/queue"
	"github.com/acme/announcement-call/internal/service/audio"
	"github.com/acme/announcement-call/pkg/logger"
)

type callPlacer interface {
	PlaceAnnouncementCall(ctx context.Context, req domain.CallRequest) (*domain.CallOutcome, error)
}

type audioFetcher interface {
	FetchAudioAsset(ctx context.Context) (*audio.Asset, error)
}

type eventPublisher interface {
	PublishCallEvent(ctx context.Context, event queue.CallEvent) error
}

// HandlerSet bundles all HTTP handlers.
type HandlerSet struct {
	logger *logger.Logger
	calls  callPlacer
	audio  audioFetcher
	events eventPublisher
}

// NewHandlerSet creates a new handler bundle.
func NewHandlerSet(container *app.Container) *HandlerSet {
	services := container.Services()
	return &HandlerSet{
		logger: container.Logger,
		calls:  services.Call,
		audio:  services.Audio,
		events: container.Events(),
	}
}

// Register wires all routes onto the fiber app.
func (h *HandlerSet) Register(app *fiber.App) {
	app.Get("/healthz", h.health)

	api := app.Group("/api")
	api.Get("/CallWebhook", h.callWebhook)
	api.Post("/CallWebhook", h.callWebhook)
	api.Get("/GetAudio", h.getAudio)
	api.Post("/CallEvents", h.callEvents)
}

// ErrorHandler provides centralized error responses.
func (h *HandlerSet) ErrorHandler(ctx *fiber.Ctx, err error) error {
	err = translateError(err)
	code := fiber.StatusInternalServerError
	message := err.Error()

	if fiberErr, ok := err.(*fiber.Error); ok {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	if code == fiber.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}

	return ctx.Status(code).JSON(fiber.Map{
		"error":    message,
		"trace_id": traceID(ctx),
	})
}

// traceID returns the id of the request span started by otelfiber, or ""
// when the request is not traced.
func traceID(ctx *fiber.Ctx) string {
	sc := trace.SpanContextFromContext(ctx.UserContext())
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

func (h *HandlerSet) health(ctx *fiber.Ctx) error {
	return ctx.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
}
