// Package memory provides in-process implementations of the store
// interfaces. They back the server when no database URL is configured and
// give service tests the same compare-and-update semantics as PostgreSQL.
package memory
