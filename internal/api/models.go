package api

import (
	"time"

	"github.com/cpcomms/dispatch/internal/domain"
	"github.com/google/uuid"
)

// CreateTaskRequest is the payload of POST /api/tasks.
type CreateTaskRequest struct {
	Signature   string  `json:"signature"   validate:"required,max=8"`
	Description string  `json:"description" validate:"required,max=2000"`
	Urgency     string  `json:"urgency"     validate:"required,oneof=now 15min 1hour today"`
	Category    string  `json:"category"    validate:"required,oneof=product pallets carton material label task"`
	AssignedTo  *string `json:"assigned_to" validate:"omitempty,max=64"`
}

// SetStateRequest is the payload of PATCH /api/tasks/{id}/state.
type SetStateRequest struct {
	State         string  `json:"state"          validate:"required"`
	ExpectedState *string `json:"expected_state" validate:"omitempty,oneof=requested in_progress paused completed rejected"`
}

// AssignRequest is the payload of PATCH /api/tasks/{id}/assign.
type AssignRequest struct {
	FleetID string `json:"fleet_id" validate:"required,max=64"`
}

// RejectRequest is the payload of POST /api/tasks/{id}/reject. Length and
// emptiness after trimming are checked by the rejection manager.
type RejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// TaskResponse is a task as seen by clients, with the derived flags
// computed at response time.
type TaskResponse struct {
	ID               uuid.UUID  `json:"id"`
	CreatedBy        string     `json:"created_by"`
	Signature        string     `json:"signature"`
	Category         string     `json:"category"`
	Description      string     `json:"description"`
	Urgency          string     `json:"urgency"`
	AssignedTo       *string    `json:"assigned_to"`
	State            string     `json:"state"`
	StateChangedAt   time.Time  `json:"state_changed_at"`
	CreatedAt        time.Time  `json:"created_at"`
	Deadline         time.Time  `json:"deadline"`
	RejectionReason  *string    `json:"rejection_reason"`
	RejectionExpires *time.Time `json:"rejection_expires"`
	Stale            bool       `json:"stale"`
	Overdue          bool       `json:"overdue"`
}

// BoardResponse is the active list partitioned by assignment.
type BoardResponse struct {
	Unassigned []TaskResponse            `json:"unassigned"`
	Fleets     map[string][]TaskResponse `json:"fleets"`
	Other      []TaskResponse            `json:"other"`
}

// HistoryResponse is one archived task.
type HistoryResponse struct {
	ID             uuid.UUID    `json:"id"`
	OriginalTaskID uuid.UUID    `json:"original_task_id"`
	TaskSnapshot   TaskResponse `json:"task_snapshot"`
	CompletedAt    time.Time    `json:"completed_at"`
	DeleteAfter    time.Time    `json:"delete_after"`
}

func taskToResponse(t *domain.Task, now time.Time) TaskResponse {
	return TaskResponse{
		ID:               t.ID,
		CreatedBy:        t.CreatedBy,
		Signature:        t.Signature,
		Category:         string(t.Category),
		Description:      t.Description,
		Urgency:          string(t.Urgency),
		AssignedTo:       t.AssignedTo,
		State:            string(t.State),
		StateChangedAt:   t.StateChangedAt,
		CreatedAt:        t.CreatedAt,
		Deadline:         t.Deadline,
		RejectionReason:  t.RejectionReason,
		RejectionExpires: t.RejectionExpires,
		Stale:            t.Stale(now),
		Overdue:          t.Overdue(now),
	}
}

func tasksToResponse(tasks []*domain.Task, now time.Time) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskToResponse(t, now))
	}
	return out
}

func boardToResponse(b domain.Board, now time.Time) BoardResponse {
	fleets := make(map[string][]TaskResponse, len(b.Fleets))
	for id, tasks := range b.Fleets {
		fleets[id] = tasksToResponse(tasks, now)
	}
	return BoardResponse{
		Unassigned: tasksToResponse(b.Unassigned, now),
		Fleets:     fleets,
		Other:      tasksToResponse(b.Other, now),
	}
}

func historyToResponse(records []*domain.HistoryRecord) []HistoryResponse {
	out := make([]HistoryResponse, 0, len(records))
	for _, rec := range records {
		snapshot := rec.TaskSnapshot
		out = append(out, HistoryResponse{
			ID:             rec.ID,
			OriginalTaskID: rec.OriginalTaskID,
			// Flags are frozen at completion time.
			TaskSnapshot: taskToResponse(&snapshot, rec.CompletedAt),
			CompletedAt:  rec.CompletedAt,
			DeleteAfter:  rec.DeleteAfter,
		})
	}
	return out
}
