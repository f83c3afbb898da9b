package api

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/cpcomms/dispatch/internal/api/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTask(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	task := ts.createTask(t, factory, "15min")
	assert.Equal(t, "J.D", task.Signature)
	assert.Equal(t, "requested", task.State)
	assert.Equal(t, factory.ID, task.CreatedBy)
	assert.Equal(t, t0.Add(15*time.Minute), task.Deadline)
	assert.Nil(t, task.AssignedTo)
	assert.False(t, task.Overdue)
	assert.False(t, task.Stale)
}

func TestCreateTask_Validation(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	tests := []struct {
		name string
		body any
	}{
		{"malformed json", `{"signature":`},
		{"unknown field", `{"signature":"jd","description":"x","urgency":"now","category":"task","priority":1}`},
		{"missing description", CreateTaskRequest{Signature: "jd", Urgency: "now", Category: "task"}},
		{"bad urgency", CreateTaskRequest{Signature: "jd", Description: "x", Urgency: "soon", Category: "task"}},
		{"bad category", CreateTaskRequest{Signature: "jd", Description: "x", Urgency: "now", Category: "misc"}},
		{"bad signature", CreateTaskRequest{Signature: "j1", Description: "x", Urgency: "now", Category: "task"}},
		{"blank description", CreateTaskRequest{Signature: "jd", Description: "   ", Urgency: "now", Category: "task"}},
		{"long description", CreateTaskRequest{Signature: "jd", Description: strings.Repeat("a", 501), Urgency: "now", Category: "task"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			resp := ts.do(t, office, http.MethodPost, "/api/tasks", tc.body)
			body := requireError(t, resp, http.StatusBadRequest, shared.ClassValidation)
			assert.False(t, body.Retryable)
		})
	}
}

func TestRoutes_RequireAuthentication(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/tasks"},
		{http.MethodGet, "/api/tasks/board"},
		{http.MethodPost, "/api/tasks"},
		{http.MethodPatch, "/api/tasks/" + uuid.NewString() + "/state"},
		{http.MethodGet, "/api/history"},
		{http.MethodGet, "/ws"},
	} {
		resp := ts.do(t, zeroActor, route.method, route.path, nil)
		requireError(t, resp, http.StatusUnauthorized, shared.ClassUnauthenticated)
	}

	for _, path := range []string{"/health", "/api/health"} {
		resp := ts.do(t, zeroActor, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestListTasks_OrderAndFlags(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	later := ts.createTask(t, office, "today")
	soon := ts.createTask(t, office, "now")
	working := ts.createTask(t, office, "1hour")

	resp := ts.do(t, crown, http.MethodPatch, "/api/tasks/"+working.ID.String()+"/state", SetStateRequest{State: "in_progress"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ts.clock.Advance(3 * time.Hour)

	resp = ts.do(t, office, http.MethodGet, "/api/tasks", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]TaskResponse](t, resp)

	require.Len(t, list, 3)
	assert.Equal(t, []uuid.UUID{working.ID, soon.ID, later.ID}, []uuid.UUID{list[0].ID, list[1].ID, list[2].ID})
	assert.True(t, list[0].Stale, "in progress for three hours")
	assert.True(t, list[0].Overdue)
	assert.True(t, list[1].Overdue)
	assert.False(t, list[2].Overdue)
}

func TestSetState(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	task := ts.createTask(t, office, "now")
	path := "/api/tasks/" + task.ID.String() + "/state"

	resp := ts.do(t, crown, http.MethodPatch, path, SetStateRequest{State: "paused"})
	requireError(t, resp, http.StatusConflict, shared.ClassConflict)

	resp = ts.do(t, crown, http.MethodPatch, path, SetStateRequest{State: "rejected"})
	requireError(t, resp, http.StatusBadRequest, shared.ClassValidation)

	resp = ts.do(t, crown, http.MethodPatch, path, SetStateRequest{State: "in_progress"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	claimed := decode[TaskResponse](t, resp)
	require.NotNil(t, claimed.AssignedTo)
	assert.Equal(t, crown.ID, *claimed.AssignedTo, "claiming an unassigned task assigns it")

	stale := "requested"
	resp = ts.do(t, crown, http.MethodPatch, path, SetStateRequest{State: "paused", ExpectedState: &stale})
	requireError(t, resp, http.StatusConflict, shared.ClassConflict)

	resp = ts.do(t, crown, http.MethodPatch, path, SetStateRequest{State: "completed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completed", decode[TaskResponse](t, resp).State)

	resp = ts.do(t, office, http.MethodGet, "/api/tasks", nil)
	assert.Empty(t, decode[[]TaskResponse](t, resp), "completed tasks leave the active list")

	resp = ts.do(t, crown, http.MethodPatch, "/api/tasks/"+uuid.NewString()+"/state", SetStateRequest{State: "in_progress"})
	requireError(t, resp, http.StatusNotFound, shared.ClassNotFound)

	resp = ts.do(t, crown, http.MethodPatch, "/api/tasks/not-a-uuid/state", SetStateRequest{State: "in_progress"})
	requireError(t, resp, http.StatusBadRequest, shared.ClassValidation)
}

func TestAssign(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	task := ts.createTask(t, office, "now")
	path := "/api/tasks/" + task.ID.String() + "/assign"

	resp := ts.do(t, office, http.MethodPatch, path, AssignRequest{FleetID: "crown"})
	requireError(t, resp, http.StatusForbidden, shared.ClassForbidden)

	resp = ts.do(t, triage, http.MethodPatch, path, AssignRequest{FleetID: "bicycle"})
	requireError(t, resp, http.StatusBadRequest, shared.ClassValidation)

	resp = ts.do(t, triage, http.MethodPatch, path, AssignRequest{FleetID: "crown"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[TaskResponse](t, resp)
	require.NotNil(t, got.AssignedTo)
	assert.Equal(t, "crown", *got.AssignedTo)
	assert.Equal(t, "requested", got.State)

	resp = ts.do(t, crown, http.MethodGet, "/api/tasks/board", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	board := decode[BoardResponse](t, resp)
	assert.Empty(t, board.Unassigned)
	require.Len(t, board.Fleets["crown"], 1)
	assert.Equal(t, task.ID, board.Fleets["crown"][0].ID)
	assert.NotNil(t, board.Fleets["electric"])
	assert.Empty(t, board.Other)
}

func TestReject(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	task := ts.createTask(t, office, "now")
	path := "/api/tasks/" + task.ID.String() + "/reject"

	resp := ts.do(t, factory, http.MethodPost, path, RejectRequest{Reason: "no stock"})
	requireError(t, resp, http.StatusForbidden, shared.ClassForbidden)

	resp = ts.do(t, triage, http.MethodPost, path, RejectRequest{Reason: "   "})
	requireError(t, resp, http.StatusBadRequest, shared.ClassValidation)

	resp = ts.do(t, triage, http.MethodPost, path, RejectRequest{Reason: strings.Repeat("r", 151)})
	requireError(t, resp, http.StatusBadRequest, shared.ClassValidation)

	resp = ts.do(t, triage, http.MethodPost, path, RejectRequest{Reason: "  no stock  "})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[TaskResponse](t, resp)
	assert.Equal(t, "rejected", got.State)
	require.NotNil(t, got.RejectionReason)
	assert.Equal(t, "no stock", *got.RejectionReason)
	require.NotNil(t, got.RejectionExpires)
	assert.Equal(t, t0.Add(time.Hour), *got.RejectionExpires)

	resp = ts.do(t, triage, http.MethodPost, path, RejectRequest{Reason: "again"})
	requireError(t, resp, http.StatusConflict, shared.ClassConflict)

	ts.clock.Advance(time.Hour + time.Second)
	resp = ts.do(t, office, http.MethodGet, "/api/tasks", nil)
	assert.Empty(t, decode[[]TaskResponse](t, resp), "expired rejections are hidden")
}

func TestListHistory(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	task := ts.createTask(t, office, "now")
	for _, state := range []string{"in_progress", "completed"} {
		resp := ts.do(t, crown, http.MethodPatch, "/api/tasks/"+task.ID.String()+"/state", SetStateRequest{State: state})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp := ts.do(t, office, http.MethodGet, "/api/history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	all := decode[[]HistoryResponse](t, resp)
	require.Len(t, all, 1)
	assert.Equal(t, task.ID, all[0].OriginalTaskID)
	assert.Equal(t, "completed", all[0].TaskSnapshot.State)
	assert.Equal(t, t0, all[0].CompletedAt)
	assert.Equal(t, t0.Add(180*24*time.Hour), all[0].DeleteAfter)

	resp = ts.do(t, office, http.MethodGet, "/api/history?month=3&year=2025", nil)
	assert.Len(t, decode[[]HistoryResponse](t, resp), 1)

	resp = ts.do(t, office, http.MethodGet, "/api/history?month=4&year=2025", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]HistoryResponse](t, resp))

	for _, q := range []string{"month=3", "year=2025", "month=13&year=2025", "month=x&year=2025"} {
		resp = ts.do(t, office, http.MethodGet, fmt.Sprintf("/api/history?%s", q), nil)
		requireError(t, resp, http.StatusBadRequest, shared.ClassValidation)
	}
}
