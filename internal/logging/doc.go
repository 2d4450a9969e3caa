// Package logging constructs the slog loggers used across murmur.
//
// Output is either a human-oriented console format or JSON, optionally teed
// to a file under the configured log directory. Attr helpers keep call sites
// terse and NewNop gives tests a silent logger.
package logging
