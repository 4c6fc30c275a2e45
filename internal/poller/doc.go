// Package poller periodically asks the backend for a full state snapshot.
//
// Pushed updates are applied incrementally, so a missed frame leaves the
// local mirror stale until the next App:OnInitialize. The poller requests
// one on a fixed interval while the session is connected.
package poller
