package web

import (
	"github.com/dukex/toolflow/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

// handleServiceError maps service errors to problem details.
func handleServiceError(c fiber.Ctx, err error) error {
	code := services.ErrorCode(err)

	switch {
	case services.IsValidationError(err):
		if code == "" {
			code = "validation_error"
		}

		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType(code).
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	case services.IsNotFound(err):
		if code == "" {
			code = "not_found"
		}

		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType(code).
			WithDetail(err.Error())

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case services.IsConflictError(err):
		if code == "" {
			code = "conflict"
		}

		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType(code).
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	default:
		problem := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(problem)
	}
}
