package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/acme/announcement-call/pkg/errors"
)

func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, apperrors.ErrValidation) {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return err
}
