package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/acme/announcement-call/internal/domain"
	apperrors "github.com/acme/announcement-call/pkg/errors"
)

type callWebhookRequest struct {
	ToPhoneNumber string `json:"toPhoneNumber"`
	AudioURL      string `json:"audioUrl"`
}

func (h *HandlerSet) callWebhook(ctx *fiber.Ctx) error {
	h.logger.Info("call webhook request", zap.String("url", ctx.OriginalURL()), zap.String("method", ctx.Method()))

	var req callWebhookRequest
	if body := ctx.Body(); len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid request body")
		}
	}

	outcome, err := h.calls.PlaceAnnouncementCall(ctx.UserContext(), domain.CallRequest{
		DestinationNumber: req.ToPhoneNumber,
		AudioURL:          req.AudioURL,
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			return err
		}
		h.logger.Error("making call failed", zap.Error(err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to make call",
			"details": err.Error(),
		})
	}

	return ctx.Status(http.StatusOK).JSON(outcome)
}
