package events

import (
	"testing"
	"time"

	"github.com/cpcomms/dispatch/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

func sampleTask(t *testing.T) *domain.Task {
	t.Helper()
	crown := "crown"
	task, err := domain.NewTask(domain.NewTaskParams{
		CreatedBy:   "office",
		Signature:   "kl",
		Description: "Label run for line 2",
		Urgency:     domain.Urgency1Hour,
		Category:    domain.CategoryLabel,
		AssignedTo:  &crown,
	}, t0)
	require.NoError(t, err)
	return task
}

func TestEventConstructors(t *testing.T) {
	t.Parallel()
	task := sampleTask(t)
	local := t0.In(time.FixedZone("CET", 3600))

	created := TaskCreated(task, local)
	assert.Equal(t, TypeCreated, created.Type)
	assert.Equal(t, task.ID, created.TaskID)
	assert.Equal(t, AudienceAll, created.Audience)
	assert.Equal(t, time.UTC, created.OccurredAt.Location())
	assert.NotSame(t, task, created.Task, "events carry their own copy")

	deleted := TaskDeleted(task.ID, t0)
	assert.Equal(t, TypeDeleted, deleted.Type)
	assert.Nil(t, deleted.Task)
}

func TestCodecRoundTrip(t *testing.T) {
	t.Parallel()
	task := sampleTask(t)

	for _, e := range []Event{TaskCreated(task, t0), TaskUpdated(task, t0), TaskDeleted(task.ID, t0)} {
		data, err := Encode(e)
		require.NoError(t, err)

		got, err := Decode(data)
		require.NoError(t, err)
		if diff := cmp.Diff(e, got); diff != "" {
			t.Errorf("%s round trip mismatch (-want +got):\n%s", e.Type, diff)
		}
	}
}

func TestEncodeWireShape(t *testing.T) {
	t.Parallel()
	id := uuid.MustParse("6f1c2b4e-8a7d-4c55-9e0b-1b2f3c4d5e6f")

	data, err := Encode(TaskDeleted(id, t0))
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"task:deleted","id":"6f1c2b4e-8a7d-4c55-9e0b-1b2f3c4d5e6f","audience":"all","occurred_at":"2025-03-03T09:00:00Z"}`,
		string(data))
}

func TestDecodeRejectsMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"unknown type", `{"type":"task:moved","id":"6f1c2b4e-8a7d-4c55-9e0b-1b2f3c4d5e6f","audience":"all"}`},
		{"update without task", `{"type":"task:updated","id":"6f1c2b4e-8a7d-4c55-9e0b-1b2f3c4d5e6f","audience":"all"}`},
		{"bad audience", `{"type":"task:deleted","id":"6f1c2b4e-8a7d-4c55-9e0b-1b2f3c4d5e6f","audience":"fleet:"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode([]byte(tc.data))
			assert.ErrorIs(t, err, ErrMalformedEvent)
		})
	}
}

func TestAudienceValid(t *testing.T) {
	t.Parallel()
	assert.True(t, AudienceAll.Valid())
	assert.True(t, FleetAudience("crown").Valid())
	assert.False(t, FleetAudience("").Valid())
	assert.False(t, Audience("everyone").Valid())
}
