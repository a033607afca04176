package handlers

import (
	"errors"
	"fmt"
	"strings"

	"bloomshop/internal/apperr"
	"bloomshop/internal/middleware"
	"bloomshop/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var validate = validator.New()

func success(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(fiber.Map{
		"status": "success",
		"data":   data,
	})
}

// fail renders err with the status of its kind. Unclassified errors are logged and
// rendered without their detail.
func fail(c *fiber.Ctx, logger *zap.Logger, err error) error {
	kind := apperr.KindOf(err)
	status := kind.HTTPStatus()
	message := err.Error()
	if kind == apperr.KindInternal {
		logger.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		message = "internal server error"
	}
	return c.Status(status).JSON(fiber.Map{
		"status":  "error",
		"message": message,
	})
}

// ErrorHandler renders errors that escape the handlers (unknown routes, panics turned into
// errors by the recover middleware) in the same envelope.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{
				"status":  "error",
				"message": fe.Message,
			})
		}
		return fail(c, logger, err)
	}
}

// bind parses the JSON body into dst and validates its struct tags.
func bind(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return apperr.Validation("invalid request body: %v", err)
	}
	return validateStruct(dst)
}

func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return apperr.Validation("%v", err)
	}
	fields := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		fields = append(fields, fmt.Sprintf("field '%s' failed on the '%s' tag", e.Namespace(), e.Tag()))
	}
	return apperr.Validation("validation failed: %s", strings.Join(fields, "; "))
}

func caller(c *fiber.Ctx) models.Caller {
	return middleware.CallerFrom(c)
}
