package api

import (
	"log/slog"
	"net/http"

	"github.com/cpcomms/dispatch/internal/api/shared"
	"github.com/cpcomms/dispatch/internal/domain"
	"github.com/cpcomms/dispatch/internal/platform/logger"
	"github.com/cpcomms/dispatch/internal/service"
)

// TaskHandler serves the task and history routes.
type TaskHandler struct {
	tasks  *service.TaskService
	logger *slog.Logger
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(tasks *service.TaskService, logger *slog.Logger) *TaskHandler {
	if tasks == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("task service cannot be nil for TaskHandler")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{
		tasks:  tasks,
		logger: logger.With(slog.String("component", "task_handler")),
	}
}

// ListTasks handles GET /api/tasks.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	actor, ok := requireActor(w, r, log)
	if !ok {
		return
	}

	tasks, err := h.tasks.List(r.Context(), actor)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list tasks")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, tasksToResponse(tasks, h.tasks.Now()))
}

// GetBoard handles GET /api/tasks/board.
func (h *TaskHandler) GetBoard(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	actor, ok := requireActor(w, r, log)
	if !ok {
		return
	}

	board, err := h.tasks.Board(r.Context(), actor)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load board")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, boardToResponse(board, h.tasks.Now()))
}

// CreateTask handles POST /api/tasks.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	actor, ok := requireActor(w, r, log)
	if !ok {
		return
	}

	var req CreateTaskRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	task, err := h.tasks.Create(r.Context(), actor, service.CreateTaskInput{
		Signature:   req.Signature,
		Description: req.Description,
		Urgency:     domain.Urgency(req.Urgency),
		Category:    domain.Category(req.Category),
		AssignedTo:  req.AssignedTo,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, taskToResponse(task, h.tasks.Now()))
}

// SetState handles PATCH /api/tasks/{id}/state.
func (h *TaskHandler) SetState(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	actor, id, ok := handleActorAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}

	var req SetStateRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	var expected *domain.State
	if req.ExpectedState != nil {
		s := domain.State(*req.ExpectedState)
		expected = &s
	}

	task, err := h.tasks.SetState(r.Context(), actor, id, domain.State(req.State), expected)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to update task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task, h.tasks.Now()))
}

// Assign handles PATCH /api/tasks/{id}/assign.
func (h *TaskHandler) Assign(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	actor, id, ok := handleActorAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}

	var req AssignRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	task, err := h.tasks.Assign(r.Context(), actor, id, req.FleetID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to assign task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task, h.tasks.Now()))
}

// Reject handles POST /api/tasks/{id}/reject.
func (h *TaskHandler) Reject(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	actor, id, ok := handleActorAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}

	var req RejectRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	task, err := h.tasks.Reject(r.Context(), actor, id, req.Reason)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to reject task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task, h.tasks.Now()))
}

// ListHistory handles GET /api/history?month=&year=.
func (h *TaskHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	actor, ok := requireActor(w, r, log)
	if !ok {
		return
	}

	month, err := getQueryInt(r, "month")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	year, err := getQueryInt(r, "year")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	records, err := h.tasks.ListHistory(r.Context(), actor, month, year)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list history")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, historyToResponse(records))
}
