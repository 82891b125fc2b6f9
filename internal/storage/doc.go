// Package storage persists the bot's durable state in SQLite.
//
// The store is the sole source of truth: the scheduler's timer set is derived
// from the reminders table at startup and is never persisted. Writes are
// single-row operations; no multi-statement transactions are needed.
package storage
