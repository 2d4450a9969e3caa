// Package pool owns task admission, lifecycle bookkeeping, and result
// retention for the murmur server.
//
// Tasks live in memory under a single coarse mutex: capacity gates how many
// jobs may queue, while execution concurrency is the worker's concern. The
// FIFO dequeue order follows submission order explicitly rather than map
// iteration. Results are indexed in SQLite with subtitle text on disk so
// completed work survives a daemon restart; a periodic sweep enforces the
// retention window.
//
// State machine: pending -> processing -> completed|failed, with cancelled
// reachable from pending or processing. No transition leaves a terminal
// status.
package pool
