// Package service implements the task lifecycle: the transition authority,
// fleet assignment, the rejection sub-state, and archival of completed
// tasks. TaskService is the facade the transports call.
//
// Services never hold locks across requests. Concurrent writers are
// serialized by the stores' compare-and-update, and an event is published
// only after the change it describes has been stored.
package service
