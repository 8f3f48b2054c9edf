// Package core contains the domain types shared across logwarden:
//   - LogEntry: an enriched administrative action record
//   - SecurityEvent: a persisted detection or alert trigger
//   - AlertRule / NotificationChannel: user-configured alerting
//   - Condition: the boolean condition tree evaluated against log entries
//
// Types here carry no I/O. Evaluation lives in detect, persistence in
// storage, orchestration in service and alert.
package core
