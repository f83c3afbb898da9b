// Package postgres implements the store interfaces on PostgreSQL through the
// pgx stdlib driver. Conditional transitions are single UPDATE statements
// guarded on the observed state, so concurrent writers are serialised by the
// database rather than by the service.
package postgres
