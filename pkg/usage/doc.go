// Package usage records consuming guard checks as an append-only event log.
//
// PostgresRecorder writes to the usage_events table; LogRecorder writes
// structured log lines. Multi fans one event out to several recorders.
package usage
