// Package notifier turns content lifecycle events into debounced rebuild
// notifications.
//
// A Receiver accepts the content store's entry webhooks and feeds them to a
// Notifier. The first qualifying event arms the notifier and schedules one
// flush after a fixed delay; further events only increase the count of the
// pending flush. On flush a single Notification is handed to a Dispatcher,
// normally a repository_dispatch style webhook. Delivery failures are logged
// and never reach the caller that reported the change.
package notifier
