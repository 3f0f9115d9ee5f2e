// Package tasks implements per-owner task management: persistence over
// Postgres or SQLite, the service layer that scopes every operation to the
// authenticated identity, and the HTTP handlers.
//
// Mutations are announced to a Notifier after they commit; the realtime
// package fans them out to the owner's WebSocket connections.
package tasks
