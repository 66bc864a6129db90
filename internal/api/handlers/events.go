package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/acme/announcement-call/internal/queue"
)

// cloudEvent is the envelope the platform posts to the callback URL.
type cloudEvent struct {
	ID     string          `json:"id"`
	Source string          `json:"source"`
	Type   string          `json:"type"`
	Time   time.Time       `json:"time"`
	Data   json.RawMessage `json:"data"`
}

type callEventData struct {
	CallConnectionID string `json:"callConnectionId"`
}

// callEvents acknowledges platform callbacks. Events are logged and
// forwarded to the event stream; they never drive an in-flight call.
func (h *HandlerSet) callEvents(ctx *fiber.Ctx) error {
	var events []cloudEvent
	if err := json.Unmarshal(ctx.Body(), &events); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid event payload")
	}

	for _, ev := range events {
		var data callEventData
		if len(ev.Data) > 0 {
			_ = json.Unmarshal(ev.Data, &data)
		}
		h.logger.Info("platform call event",
			zap.String("event_id", ev.ID),
			zap.String("type", ev.Type),
			zap.String("call_connection_id", data.CallConnectionID))

		err := h.events.PublishCallEvent(ctx.UserContext(), queue.CallEvent{
			Type:             queue.EventTypePlatformCallback,
			CallConnectionID: data.CallConnectionID,
			State:            ev.Type,
			Payload:          ev.Data,
			OccurredAt:       ev.Time,
		})
		if err != nil {
			h.logger.Warn("forward platform event failed", zap.String("event_id", ev.ID), zap.Error(err))
		}
	}

	return ctx.Status(http.StatusOK).JSON(fiber.Map{"received": len(events)})
}
