// Package events is the orchestration layer between the presentation code
// and the storage/scheduler pair. It owns the coupling rule that keeps
// reminders honest: any store mutation that can move a fire time is followed
// by the matching scheduler call in the same operation.
package events
