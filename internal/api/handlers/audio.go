package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	apperrors "github.com/acme/announcement-call/pkg/errors"
)

func (h *HandlerSet) getAudio(ctx *fiber.Ctx) error {
	asset, err := h.audio.FetchAudioAsset(ctx.UserContext())
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.logger.Warn("audio file not found", zap.Error(err))
			return ctx.Status(http.StatusNotFound).SendString("Audio file not found")
		}
		h.logger.Error("serving audio file failed", zap.Error(err))
		return ctx.Status(http.StatusInternalServerError).SendString("Error: " + err.Error())
	}

	h.logger.Debug("serving audio file", zap.Int("bytes", len(asset.Data)))
	ctx.Set(fiber.HeaderContentType, asset.ContentType)
	ctx.Set(fiber.HeaderCacheControl, asset.CacheControl)
	return ctx.Status(http.StatusOK).Send(asset.Data)
}
