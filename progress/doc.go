// Package progress defines primitives for reporting and aggregating the
// progress of hosted world loops.  It abstracts away the underlying
// communication mechanism so that callers can consume progress updates in a
// uniform way regardless of whether they are delivered via in-memory
// callbacks, metrics or external observers.
package progress
