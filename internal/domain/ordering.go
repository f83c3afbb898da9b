package domain

import (
	"slices"
	"strings"
)

var statePriority = map[State]int{
	StateInProgress: 1,
	StatePaused:     2,
	StateRequested:  3,
	StateRejected:   5,
}

// StatePriority returns the sort rank of s. Completed tasks never appear
// in active listings and rank last.
func StatePriority(s State) int {
	if p, ok := statePriority[s]; ok {
		return p
	}
	return 99
}

// CompareTasks orders by state priority, then deadline, then id.
func CompareTasks(a, b *Task) int {
	if d := StatePriority(a.State) - StatePriority(b.State); d != 0 {
		return d
	}
	if c := a.Deadline.Compare(b.Deadline); c != 0 {
		return c
	}
	return strings.Compare(a.ID.String(), b.ID.String())
}

// SortTasks sorts tasks in place in canonical listing order.
func SortTasks(tasks []*Task) {
	slices.SortStableFunc(tasks, CompareTasks)
}

// Board is the active listing split by assignment.
type Board struct {
	Unassigned []*Task            `json:"unassigned"`
	Fleets     map[string][]*Task `json:"fleets"`
	Other      []*Task            `json:"other"`
}

// Partition splits tasks by their current assigned_to value. Every fleet in
// fleets gets a bucket, even when empty. Input order is preserved within
// each bucket.
func Partition(tasks []*Task, fleets []string) Board {
	b := Board{
		Unassigned: []*Task{},
		Fleets:     make(map[string][]*Task, len(fleets)),
		Other:      []*Task{},
	}
	for _, f := range fleets {
		b.Fleets[f] = []*Task{}
	}

	for _, t := range tasks {
		switch {
		case t.AssignedTo == nil:
			b.Unassigned = append(b.Unassigned, t)
		default:
			if bucket, ok := b.Fleets[*t.AssignedTo]; ok {
				b.Fleets[*t.AssignedTo] = append(bucket, t)
			} else {
				b.Other = append(b.Other, t)
			}
		}
	}
	return b
}
