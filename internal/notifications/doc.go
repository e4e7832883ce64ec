// Package notifications pushes analysis lifecycle events to an ntfy topic.
// Without a configured topic every notification is a silent no-op.
package notifications
