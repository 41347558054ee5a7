package web

import (
	"net/http"
	"time"

	"github.com/dukex/toolflow/pkg/models"
	"github.com/dukex/toolflow/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	engine    *services.Engine
	validator *validator.Validate
}

func NewAPIHandlers(engine *services.Engine, validator *validator.Validate) *APIHandlers {
	return &APIHandlers{
		engine:    engine,
		validator: validator,
	}
}

// Routes registers every API endpoint on router.
func (h *APIHandlers) Routes(router fiber.Router) {
	t := router.Group("/tools")
	t.Get("/", h.ListTools)
	t.Post("/", h.RegisterTool)
	t.Get("/:id", h.GetTool)
	t.Delete("/:id", h.RemoveTool)
	t.Post("/:id/install", h.InstallTool)
	t.Post("/:id/reset", h.ResetTool)
	t.Post("/:id/cancel", h.CancelInstall)

	w := router.Group("/workflows")
	w.Get("/", h.ListWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Post("/import", h.ImportWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Put("/:id", h.UpdateWorkflow)
	w.Delete("/:id", h.RemoveWorkflow)
	w.Get("/:id/export", h.ExportWorkflow)
	w.Post("/:id/draft", h.OpenDraft)
	w.Get("/:id/draft", h.GetDraft)
	w.Delete("/:id/draft", h.DiscardDraft)
	w.Post("/:id/save", h.SaveDraft)
	w.Post("/:id/run", h.RunWorkflow)
	w.Post("/:id/steps", h.AddStep)
	w.Patch("/:id/steps/:stepId", h.UpdateStep)
	w.Delete("/:id/steps/:stepId", h.RemoveStep)

	r := router.Group("/runs")
	r.Get("/", h.ListRuns)
	r.Get("/:id", h.GetRun)
	r.Post("/:id/cancel", h.CancelRun)

	router.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, ok := h.engine.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Toolflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		message = "Toolflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) ListTools(c fiber.Ctx) error {
	return c.JSON(h.engine.ListTools())
}

func (h *APIHandlers) RegisterTool(c fiber.Ctx) error {
	var req RegisterToolRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	tool, err := h.engine.RegisterTool(c.Context(), &models.Tool{
		Repository:     req.Repository,
		Name:           req.Name,
		Description:    req.Description,
		InstallMethod:  models.InstallMethod(req.InstallMethod),
		InstallCommand: req.InstallCommand,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(tool)
}

func (h *APIHandlers) GetTool(c fiber.Ctx) error {
	tool, err := h.engine.GetTool(c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(tool)
}

func (h *APIHandlers) RemoveTool(c fiber.Ctx) error {
	if err := h.engine.RemoveTool(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// InstallTool starts an install and answers with the tool in the installing state.
func (h *APIHandlers) InstallTool(c fiber.Ctx) error {
	id := c.Params("id")

	if _, err := h.engine.InstallTool(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	tool, err := h.engine.GetTool(id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(tool)
}

func (h *APIHandlers) ResetTool(c fiber.Ctx) error {
	tool, err := h.engine.ResetTool(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(tool)
}

func (h *APIHandlers) CancelInstall(c fiber.Ctx) error {
	if err := h.engine.CancelInstall(c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandlers) ListWorkflows(c fiber.Ctx) error {
	return c.JSON(h.engine.ListWorkflows())
}

// CreateWorkflow saves a new workflow. Without a name it is called "New Workflow".
func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req SaveWorkflowRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow := req.toWorkflow("")
	if workflow.Name == "" {
		workflow.Name = models.DefaultWorkflowName
	}

	created, err := h.engine.SaveWorkflow(c.Context(), workflow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.engine.GetWorkflow(c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

// UpdateWorkflow replaces a stored workflow, keeping its listing position.
func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")

	if _, err := h.engine.GetWorkflow(id); err != nil {
		return handleServiceError(c, err)
	}

	var req SaveWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.engine.SaveWorkflow(c.Context(), req.toWorkflow(id))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) RemoveWorkflow(c fiber.Ctx) error {
	if err := h.engine.RemoveWorkflow(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ImportWorkflow(c fiber.Ctx) error {
	workflow, err := h.engine.ImportWorkflow(c.Context(), c.Body())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

func (h *APIHandlers) ExportWorkflow(c fiber.Ctx) error {
	document, err := h.engine.ExportWorkflow(c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	return c.Send(document)
}

// GetDraft returns the edited copy of a workflow, opening an edit session when needed.
func (h *APIHandlers) OpenDraft(c fiber.Ctx) error {
	draft, err := h.engine.EditWorkflow(c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(draft)
}

func (h *APIHandlers) GetDraft(c fiber.Ctx) error {
	draft, err := h.engine.DraftWorkflow(c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(draft)
}

func (h *APIHandlers) DiscardDraft(c fiber.Ctx) error {
	if err := h.engine.DiscardDraft(c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) SaveDraft(c fiber.Ctx) error {
	saved, err := h.engine.SaveDraft(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(saved)
}

func (h *APIHandlers) AddStep(c fiber.Ctx) error {
	var req AddStepRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	step, err := h.engine.AddStep(c.Params("id"), req.Tool, req.Command)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(step)
}

func (h *APIHandlers) UpdateStep(c fiber.Ctx) error {
	var req UpdateStepRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	step, err := h.engine.UpdateStep(c.Params("id"), c.Params("stepId"), models.StepField(req.Field), req.Value)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(step)
}

func (h *APIHandlers) RemoveStep(c fiber.Ctx) error {
	if err := h.engine.RemoveStep(c.Params("id"), c.Params("stepId")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// RunWorkflow starts a run and answers before it finishes.
func (h *APIHandlers) RunWorkflow(c fiber.Ctx) error {
	run, err := h.engine.RunWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(RunResponse{
		RunID:  run.ID,
		Report: run.Report(),
	})
}

func (h *APIHandlers) ListRuns(c fiber.Ctx) error {
	return c.JSON(h.engine.Runs())
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	report, err := h.engine.RunReport(c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(report)
}

func (h *APIHandlers) CancelRun(c fiber.Ctx) error {
	if err := h.engine.CancelRun(c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}
