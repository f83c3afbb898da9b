// Package scheduler runs named maintenance jobs on fixed intervals. Each job
// gets its own goroutine, runs once at start, and survives failures and
// panics in individual runs. The task service's retention sweeps are the
// jobs it was built for.
package scheduler
