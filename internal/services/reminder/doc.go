// Package reminder keeps one pending one-shot timer per event.
//
// A timer is installed at fire time (event start minus the reminder lead) and
// replaced in place when the event is rescheduled, so an event never has two
// concurrent timers. Nothing about pending timers is persisted: on startup
// RestoreAll rebuilds them from the event store, which makes restore
// idempotent and silently drops reminders whose window already closed.
package reminder
