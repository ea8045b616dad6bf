// Package fanout broadcasts a fired reminder to the event's subscribers.
//
// The subscriber list is loaded at fire time, so opt-ins that arrived after
// scheduling are included. Sends run on a small worker pool behind a shared
// rate limiter; each recipient fails independently. A permanently
// unreachable recipient is unsubscribed before Deliver returns, a transient
// failure is logged and dropped (a missed one-shot reminder has no recovery
// value once its moment passed).
package fanout
