// Package cron schedules recurring jobs using cron expressions.
//
// Entries are persisted through [Store], so schedules survive restarts
// and are shared by every instance in the fleet. A [Scheduler] ticks on
// an interval and enqueues a job for each due entry. Double-firing is
// prevented twice over: only the instance holding the scheduler lock
// processes ticks, and each firing additionally takes a short per-entry
// lock.
//
// Expressions use the standard 5-field syntax plus descriptors, so
// "@every 30m" schedules the recurring listing sync cycle.
package cron
