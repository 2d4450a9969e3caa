// Package daemon wires the murmur server together: the task pool, the
// single-consumer worker loop, the retention sweeper, and the HTTP API.
// A file lock guarantees only one daemon instance operates over a given
// set of storage directories.
package daemon
