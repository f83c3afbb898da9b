package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

func validParams() NewTaskParams {
	return NewTaskParams{
		CreatedBy:   "1",
		Signature:   "jd",
		Description: "Two pallets of 330ml cans to line 4",
		Urgency:     Urgency15Min,
		Category:    CategoryPallets,
	}
}

func TestNewTask_DeadlinePerUrgency(t *testing.T) {
	t.Parallel()

	cases := map[Urgency]time.Duration{
		UrgencyNow:   0,
		Urgency15Min: 15 * time.Minute,
		Urgency1Hour: time.Hour,
		UrgencyToday: 24 * time.Hour,
	}

	for urgency, want := range cases {
		t.Run(string(urgency), func(t *testing.T) {
			t.Parallel()
			p := validParams()
			p.Urgency = urgency

			task, err := NewTask(p, t0)
			require.NoError(t, err)
			assert.Equal(t, t0, task.CreatedAt)
			assert.Equal(t, t0.Add(want), task.Deadline)
		})
	}
}

func TestNewTask_Defaults(t *testing.T) {
	t.Parallel()

	task, err := NewTask(validParams(), t0)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, task.ID)
	assert.Equal(t, "J.D", task.Signature)
	assert.Equal(t, StateRequested, task.State)
	assert.Equal(t, t0, task.StateChangedAt)
	assert.Equal(t, t0.Add(15*time.Minute), task.Deadline)
	assert.Nil(t, task.AssignedTo)
	assert.Nil(t, task.RejectionReason)
	assert.Nil(t, task.RejectionExpires)
	assert.NoError(t, task.Validate())
}

func TestNewTask_Validation(t *testing.T) {
	t.Parallel()

	blank := "   "
	tests := []struct {
		name    string
		mutate  func(*NewTaskParams)
		wantErr error
	}{
		{"bad signature", func(p *NewTaskParams) { p.Signature = "j1" }, ErrInvalidSignature},
		{"long signature", func(p *NewTaskParams) { p.Signature = "jdx" }, ErrInvalidSignature},
		{"unknown urgency", func(p *NewTaskParams) { p.Urgency = "asap" }, ErrInvalidUrgency},
		{"unknown category", func(p *NewTaskParams) { p.Category = "forklift" }, ErrInvalidCategory},
		{"empty description", func(p *NewTaskParams) { p.Description = " \n " }, ErrEmptyDescription},
		{"long description", func(p *NewTaskParams) { p.Description = strings.Repeat("x", MaxDescriptionLength+1) }, ErrDescriptionTooLong},
		{"missing creator", func(p *NewTaskParams) { p.CreatedBy = "" }, ErrValidation},
		{"blank assignee is ignored", func(p *NewTaskParams) { p.AssignedTo = &blank }, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := validParams()
			tc.mutate(&p)

			task, err := NewTask(p, t0)
			if tc.wantErr == nil {
				require.NoError(t, err)
				assert.Nil(t, task.AssignedTo)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Nil(t, task)
		})
	}
}

func TestTask_Active(t *testing.T) {
	t.Parallel()

	now := t0.Add(time.Hour)
	past := now.Add(-time.Second)
	future := now.Add(time.Minute)
	reason := "Floor blocked"

	tests := []struct {
		name string
		task Task
		want bool
	}{
		{"requested", Task{State: StateRequested}, true},
		{"in progress", Task{State: StateInProgress}, true},
		{"paused", Task{State: StatePaused}, true},
		{"completed", Task{State: StateCompleted}, false},
		{"rejected not yet expired", Task{State: StateRejected, RejectionReason: &reason, RejectionExpires: &future}, true},
		{"rejected expires exactly now", Task{State: StateRejected, RejectionReason: &reason, RejectionExpires: &now}, true},
		{"rejected one second past expiry", Task{State: StateRejected, RejectionReason: &reason, RejectionExpires: &past}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.task.Active(now))
		})
	}
}

func TestTask_StaleAndOverdue(t *testing.T) {
	t.Parallel()

	task := Task{State: StateInProgress, StateChangedAt: t0, Deadline: t0.Add(15 * time.Minute)}

	assert.False(t, task.Stale(t0.Add(2*time.Hour)))
	assert.True(t, task.Stale(t0.Add(2*time.Hour+time.Second)))
	assert.False(t, task.Overdue(t0.Add(15*time.Minute)))
	assert.True(t, task.Overdue(t0.Add(16*time.Minute)))

	task.State = StatePaused
	assert.False(t, task.Stale(t0.Add(3*time.Hour)))

	task.State = StateCompleted
	assert.False(t, task.Overdue(t0.Add(3*time.Hour)))
}

func TestTask_ValidateRejectionFields(t *testing.T) {
	t.Parallel()

	task, err := NewTask(validParams(), t0)
	require.NoError(t, err)

	reason := "Floor blocked"
	task.RejectionReason = &reason
	assert.ErrorIs(t, task.Validate(), ErrValidation)

	expires := t0.Add(RejectionTTL)
	task.State = StateRejected
	task.RejectionExpires = &expires
	assert.NoError(t, task.Validate())

	task.RejectionReason = nil
	assert.ErrorIs(t, task.Validate(), ErrValidation)
}

func TestTask_CloneIsDeep(t *testing.T) {
	t.Parallel()

	fleet := "crown"
	task, err := NewTask(validParams(), t0)
	require.NoError(t, err)
	task.AssignedTo = &fleet

	clone := task.Clone()
	*clone.AssignedTo = "electric"

	assert.Equal(t, "crown", *task.AssignedTo)
}
