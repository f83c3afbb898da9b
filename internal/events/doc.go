// Package events carries task lifecycle events from the service that
// committed a change to every connected client.
//
// A Bus encodes events onto a Backplane (in-process or NATS) and relays
// everything the backplane delivers into the local Hub, which fans out to
// subscribers. Audience membership is fixed when a subscriber joins, and a
// subscriber that cannot keep up is disconnected rather than silently
// skipped, so clients always know when they must resynchronize.
package events
