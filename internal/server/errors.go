package server

import (
	"errors"
	"fmt"
	"strconv"

	"study-planner/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

const retryAfterSeconds = 5

// ErrorHandler maps domain errors onto status codes.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var (
		apiErr   Error
		valErr   ValidationError
		fiberErr *fiber.Error
	)
	switch {
	case errors.As(err, &valErr):
		return c.Status(valErr.Status).JSON(valErr)
	case errors.As(err, &apiErr):
	case errors.Is(err, models.ErrInput):
		apiErr = NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrExtractionEmpty):
		apiErr = NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, models.ErrNotFound):
		apiErr = NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrUpstream):
		if models.IsRetryable(err) {
			apiErr = NewError(fiber.StatusServiceUnavailable, err.Error())
			apiErr.Retryable = true
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfterSeconds))
		} else {
			apiErr = NewError(fiber.StatusBadGateway, err.Error())
		}
	case errors.As(err, &fiberErr):
		apiErr = NewError(fiberErr.Code, fiberErr.Message)
	default:
		apiErr = NewError(fiber.StatusInternalServerError, "internal server error")
	}

	if apiErr.Code >= fiber.StatusInternalServerError {
		log.Error().Err(err).Int("status", apiErr.Code).Str("path", c.Path()).Msg("request failed")
	} else {
		log.Debug().Err(err).Int("status", apiErr.Code).Str("path", c.Path()).Msg("request rejected")
	}
	return c.Status(apiErr.Code).JSON(apiErr)
}

type Error struct {
	Code      int    `json:"code"`
	Message   string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Error implements the Error interface
func (e Error) Error() string {
	return e.Message
}

func NewError(code int, err string) Error {
	return Error{
		Code:    code,
		Message: err,
	}
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: fiber.StatusUnprocessableEntity,
		Errors: errors,
	}
}

func ErrBadRequest() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid request body",
	}
}

func ErrInvalidID(param string) Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: fmt.Sprintf("invalid %s given", param),
	}
}
