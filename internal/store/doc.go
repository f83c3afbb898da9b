// Package store defines the persistence contracts for active tasks and the
// completed-task history. Implementations live under internal/platform.
//
// The task store is the only shared mutable resource in the system. Every
// state change goes through ApplyTransition, a compare-and-update keyed on the
// state the caller observed, so any number of processes can serve requests
// without in-process locking.
package store
