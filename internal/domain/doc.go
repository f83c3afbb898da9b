// Package domain contains the task lifecycle model: tasks and their states,
// urgency deadlines, signatures, the transition table, canonical ordering,
// archival snapshots, and the role capability table. It has no knowledge of
// storage or transport.
package domain
