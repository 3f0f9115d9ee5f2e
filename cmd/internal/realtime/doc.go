// Package realtime pushes task mutations to their owner's WebSocket
// connections.
//
// Connections authenticate with a bearer token during the handshake and are
// registered in a Hub keyed by identity id. The Hub implements
// tasks.Notifier; every committed task mutation is fanned out to the owner's
// connections only. Each connection has a bounded send queue and a consumer
// that falls behind is disconnected instead of blocking publishers.
package realtime
